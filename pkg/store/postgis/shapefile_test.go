package postgis

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
	"golang.org/x/text/encoding/charmap"
)

func square(x, y float64) []shp.Point {
	return []shp.Point{{X: x, Y: y}, {X: x, Y: y + 1}, {X: x + 1, Y: y + 1}, {X: x + 1, Y: y}, {X: x, Y: y}}
}

func writeShapefile(t *testing.T, dir string, names []string, polygons ...[][]shp.Point) string {
	t.Helper()

	path := filepath.Join(dir, "BUBD_TEMP.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAZWA", 32)}))

	for i, rings := range polygons {
		polygon := shp.Polygon(*shp.NewPolyLine(rings))
		n := w.Write(&polygon)
		require.NoError(t, w.WriteAttribute(int(n), 0, names[i]))
	}

	w.Close()

	// go-shp names the attribute sidecar without the dot before the extension.
	base := strings.TrimSuffix(path, ".shp")
	if _, err := os.Stat(base + "dbf"); err == nil {
		require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	}

	require.FileExists(t, base+".dbf")

	return path
}

func TestReadShapefile(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, []string{"szkoła", "dom"},
		[][]shp.Point{square(0, 0)},
		[][]shp.Point{square(10, 10), square(10.25, 10.25)},
	)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BUBD_TEMP.cpg"), []byte("UTF-8"), 0o600))

	features, skipped, err := readShapefile(path)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, features, 2)

	assert.Equal(t, 0, features[0].FID)
	assert.Equal(t, 1, features[1].FID)

	var attrs map[string]string
	require.NoError(t, json.Unmarshal([]byte(features[0].Attrs), &attrs))
	assert.Equal(t, map[string]string{"NAZWA": "szkoła"}, attrs)

	require.NoError(t, json.Unmarshal([]byte(features[1].Attrs), &attrs))
	assert.Equal(t, "dom", attrs["NAZWA"])

	g, err := wkt.Unmarshal(features[1].WKT)
	require.NoError(t, err)

	mls, ok := g.(*geom.MultiLineString)
	require.True(t, ok)
	assert.Equal(t, 2, mls.NumLineStrings(), "shell and hole are both kept as rings")
}

func TestReadShapefile_Windows1250Attributes(t *testing.T) {
	dir := t.TempDir()

	encoded, err := charmap.Windows1250.NewEncoder().String("Gdańsk")
	require.NoError(t, err)

	path := writeShapefile(t, dir, []string{encoded}, [][]shp.Point{square(0, 0)})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BUBD_TEMP.cpg"), []byte("1250\n"), 0o600))

	features, _, err := readShapefile(path)
	require.NoError(t, err)
	require.Len(t, features, 1)

	var attrs map[string]string
	require.NoError(t, json.Unmarshal([]byte(features[0].Attrs), &attrs))
	assert.Equal(t, "Gdańsk", attrs["NAZWA"])
}

func TestReadShapefile_ISO88592Attributes(t *testing.T) {
	dir := t.TempDir()

	encoded, err := charmap.ISO8859_2.NewEncoder().String("Łódź")
	require.NoError(t, err)

	path := writeShapefile(t, dir, []string{encoded}, [][]shp.Point{square(0, 0)})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BUBD_TEMP.cpg"), []byte("ISO-8859-2"), 0o600))

	features, _, err := readShapefile(path)
	require.NoError(t, err)
	require.Len(t, features, 1)

	var attrs map[string]string
	require.NoError(t, json.Unmarshal([]byte(features[0].Attrs), &attrs))
	assert.Equal(t, "Łódź", attrs["NAZWA"])
}

func TestReadShapefile_Missing(t *testing.T) {
	_, _, err := readShapefile(filepath.Join(t.TempDir(), "BUBD_TEMP.shp"))
	require.Error(t, err)
}

func TestRingsWKT(t *testing.T) {
	points := append(square(0, 0), square(5, 5)...)

	text, err := ringsWKT([]int32{0, 5}, points)
	require.NoError(t, err)

	g, err := wkt.Unmarshal(text)
	require.NoError(t, err)

	mls, ok := g.(*geom.MultiLineString)
	require.True(t, ok)
	require.Equal(t, 2, mls.NumLineStrings())
	assert.Equal(t, []float64{5, 5}, []float64(mls.LineString(1).Coord(0)))
}

func TestAttributeDecoder(t *testing.T) {
	dir := t.TempDir()

	assert.Nil(t, attributeDecoder(filepath.Join(dir, "missing.cpg")))

	for content, wantDecoder := range map[string]bool{
		"UTF-8":      false,
		"1250":       true,
		"ISO-8859-2": true,
		"unknown":    false,
	} {
		path := filepath.Join(dir, "layer.cpg")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		assert.Equal(t, wantDecoder, attributeDecoder(path) != nil, content)
	}
}
