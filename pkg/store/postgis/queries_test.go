package postgis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualify(t *testing.T) {
	assert.Equal(t, `"public"."bubd_2016_1465"`, qualify("public", "bubd_2016_1465"))
	assert.Equal(t, `"bdot"."a""b"`, qualify("bdot", `a"b`))
}

func TestExistsQuery(t *testing.T) {
	query, args, err := existsQuery("public", "bubd_2016_1465")
	require.NoError(t, err)

	assert.Contains(t, query, "FROM information_schema.tables")
	assert.Contains(t, query, "$1")
	assert.Contains(t, query, "$2")
	assert.ElementsMatch(t, []interface{}{"public", "bubd_2016_1465"}, args)
}

func TestLockQuery(t *testing.T) {
	query, args, err := lockQuery(`"public"."bubd_merged_2016"`)
	require.NoError(t, err)

	assert.Equal(t, "SELECT pg_advisory_xact_lock(hashtext($1))", query)
	assert.Equal(t, []interface{}{`"public"."bubd_merged_2016"`}, args)
}

func TestInsertQuery(t *testing.T) {
	batch := []feature{
		{FID: 0, Attrs: `{"X_KOD":"BUBD01"}`, WKT: "MULTILINESTRING ((0 0, 0 1, 1 1, 0 0))"},
		{FID: 1, Attrs: `{}`, WKT: "MULTILINESTRING ((2 2, 2 3, 3 3, 2 2))"},
	}

	query, args, err := insertQuery(`"public"."bubd_2016_1465"`, "bubd_2016_1465", 2180, batch)
	require.NoError(t, err)

	assert.Contains(t, query, `INSERT INTO "public"."bubd_2016_1465"`)
	assert.Contains(t, query, "$3::jsonb")
	assert.Contains(t, query, "ST_Multi(ST_BuildArea(ST_GeomFromText($4, $5)))")
	assert.Contains(t, query, "ST_GeomFromText($9, $10)")
	require.Len(t, args, 10)
	assert.Equal(t, "bubd_2016_1465", args[0])
	assert.Equal(t, 1, args[6])
	assert.Equal(t, 2180, args[9])
}

func TestMergeQuery(t *testing.T) {
	query, args, err := mergeQuery(`"public"."bubd_merged_2016"`, []string{`"public"."bubd_2016_1465"`, `"public"."bubd_2016_1261"`})
	require.NoError(t, err)

	assert.Empty(t, args)
	assert.Contains(t, query, `INSERT INTO "public"."bubd_merged_2016" (source_layer, source_fid, attrs, geom)`)
	assert.Contains(t, query, `FROM "public"."bubd_2016_1465" UNION ALL SELECT`)
	assert.Contains(t, query, `FROM "public"."bubd_2016_1261"`)
}

func TestDisjointQuery(t *testing.T) {
	query, args, err := disjointQuery(`"public"."bubd_merged_new_2016"`, `"public"."bubd_merged_2016"`, `"public"."bubd_merged_2015"`)
	require.NoError(t, err)

	assert.Empty(t, args)
	assert.Contains(t, query, `INSERT INTO "public"."bubd_merged_new_2016"`)
	assert.Contains(t, query, `FROM "public"."bubd_merged_2016" AS c`)
	assert.Contains(t, query, `NOT EXISTS (SELECT 1 FROM "public"."bubd_merged_2015" AS p WHERE ST_Intersects(c.geom, p.geom))`)
	assert.Contains(t, query, "WHERE c.geom IS NOT NULL AND NOT ST_IsEmpty(c.geom) AND NOT EXISTS", "features without an area are never new")
}

func TestDeleteEmptyQuery(t *testing.T) {
	query, args, err := deleteEmptyQuery(`"public"."bubd_2016_1465"`)
	require.NoError(t, err)

	assert.Equal(t, `DELETE FROM "public"."bubd_2016_1465" WHERE (geom IS NULL OR ST_IsEmpty(geom))`, query)
	assert.Empty(t, args)
}

func TestLineageQueries(t *testing.T) {
	table := qualify("public", lineageTable)
	assert.Equal(t, `"public"."_derived_layers"`, table)
	assert.Error(t, validName(lineageTable), "the lineage table can never be a layer")

	query, args, err := lineageQuery(table, "bubd_merged_2016")
	require.NoError(t, err)
	assert.Equal(t, `SELECT lineage FROM "public"."_derived_layers" WHERE name = $1`, query)
	assert.Equal(t, []interface{}{"bubd_merged_2016"}, args)

	query, args, err = recordLineageQuery(table, "bubd_merged_2016", "merge(bubd_2016_1465,bubd_2016_2261)")
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "public"."_derived_layers" (name,lineage) VALUES ($1,$2) `+
		`ON CONFLICT (name) DO UPDATE SET lineage = EXCLUDED.lineage, built_at = now()`, query)
	assert.Equal(t, []interface{}{"bubd_merged_2016", "merge(bubd_2016_1465,bubd_2016_2261)"}, args)

	assert.Contains(t, createLineageSQL(table), `CREATE TABLE IF NOT EXISTS "public"."_derived_layers" (name text PRIMARY KEY`)
	assert.Equal(t, `DROP TABLE "public"."bubd_merged_2016"`, dropTableSQL(`"public"."bubd_merged_2016"`))
}

func TestCreateTableSQL(t *testing.T) {
	ddl := createTableSQL(`"public"."bubd_2016_1465"`, 2180)

	assert.Contains(t, ddl, `CREATE TABLE "public"."bubd_2016_1465"`)
	assert.Contains(t, ddl, "geometry(Geometry, 2180)")
	assert.Equal(t, `CREATE INDEX ON "public"."bubd_2016_1465" USING GIST (geom)`, createIndexSQL(`"public"."bubd_2016_1465"`))
}

func TestValidName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"bubd_2016_1465", true},
		{"bubd_merged_new_2016", true},
		{"BUBD_2016", false},
		{"bubd;drop", false},
		{"", false},
		{"2016_bubd", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validName(tt.name)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{DSN: "postgres://localhost/footprint"}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "public", cfg.Schema)
	assert.Equal(t, 2180, cfg.SRID)
	assert.Equal(t, 500, cfg.BatchSize)

	assert.ErrorIs(t, (&Config{}).Validate(), ErrDSNRequired)

	bad := *cfg
	bad.Schema = "Public Schema"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSchema)

	bad = *cfg
	bad.SRID = -1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSRID)
}
