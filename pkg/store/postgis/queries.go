package postgis

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

//nolint:gochecknoglobals // stateless statement builder
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var layerColumns = []string{"source_layer", "source_fid", "attrs", "geom"}

// lineageTable records what each derived layer was built from. Layer names start
// with a letter, so it never collides with one.
const lineageTable = "_derived_layers"

func qualify(schema, name string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(name)
}

func existsQuery(schema, name string) (string, []interface{}, error) {
	return psql.Select("count(*)").
		From("information_schema.tables").
		Where(sq.Eq{"table_schema": schema, "table_name": name}).
		ToSql()
}

func countQuery(table string) (string, []interface{}, error) {
	return psql.Select("count(*)").From(table).ToSql()
}

func lockQuery(table string) (string, []interface{}, error) {
	return psql.Select().Column(sq.Expr("pg_advisory_xact_lock(hashtext(?))", table)).ToSql()
}

func createTableSQL(table string, srid int) string {
	return fmt.Sprintf(
		`CREATE TABLE %s (fid bigserial PRIMARY KEY, source_layer text NOT NULL, `+
			`source_fid integer NOT NULL, attrs jsonb NOT NULL DEFAULT '{}'::jsonb, `+
			`geom geometry(Geometry, %d))`,
		table, srid)
}

func createIndexSQL(table string) string {
	return fmt.Sprintf("CREATE INDEX ON %s USING GIST (geom)", table)
}

func dropTableSQL(table string) string {
	return "DROP TABLE " + table
}

func createLineageSQL(table string) string {
	return fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (name text PRIMARY KEY, lineage text NOT NULL, `+
			`built_at timestamptz NOT NULL DEFAULT now())`,
		table)
}

func lineageQuery(table, name string) (string, []interface{}, error) {
	return psql.Select("lineage").From(table).Where(sq.Eq{"name": name}).ToSql()
}

func recordLineageQuery(table, name, lineage string) (string, []interface{}, error) {
	return psql.Insert(table).
		Columns("name", "lineage").
		Values(name, lineage).
		Suffix("ON CONFLICT (name) DO UPDATE SET lineage = EXCLUDED.lineage, built_at = now()").
		ToSql()
}

// deleteEmptyQuery removes rows whose rings did not form an area
func deleteEmptyQuery(table string) (string, []interface{}, error) {
	return psql.Delete(table).Where(sq.Or{sq.Eq{"geom": nil}, sq.Expr("ST_IsEmpty(geom)")}).ToSql()
}

func insertQuery(table, source string, srid int, batch []feature) (string, []interface{}, error) {
	ins := psql.Insert(table).Columns(layerColumns...)

	for _, f := range batch {
		ins = ins.Values(
			source,
			f.FID,
			sq.Expr("?::jsonb", f.Attrs),
			sq.Expr("ST_Multi(ST_BuildArea(ST_GeomFromText(?, ?)))", f.WKT, srid),
		)
	}

	return ins.ToSql()
}

func mergeQuery(table string, sources []string) (string, []interface{}, error) {
	selects := make([]string, 0, len(sources))

	for _, src := range sources {
		query, _, err := psql.Select(layerColumns...).From(src).ToSql()
		if err != nil {
			return "", nil, err
		}

		selects = append(selects, query)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) %s",
		table, strings.Join(layerColumns, ", "), strings.Join(selects, " UNION ALL ")), nil, nil
}

func disjointQuery(table, source, against string) (string, []interface{}, error) {
	sel := psql.Select("c.source_layer", "c.source_fid", "c.attrs", "c.geom").
		From(source + " AS c").
		Where(sq.NotEq{"c.geom": nil}).
		Where("NOT ST_IsEmpty(c.geom)").
		Where(fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s AS p WHERE ST_Intersects(c.geom, p.geom))", against))

	query, args, err := sel.ToSql()
	if err != nil {
		return "", nil, err
	}

	return fmt.Sprintf("INSERT INTO %s (%s) %s", table, strings.Join(layerColumns, ", "), query), args, nil
}
