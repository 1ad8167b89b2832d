package postgis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Shapefile errors
var (
	ErrUnsupportedGeometry = errors.New("unsupported shapefile geometry type")
)

// feature is one shapefile record ready for insertion
type feature struct {
	FID   int
	Attrs string
	WKT   string
}

// readShapefile decodes every polygon record of the file-set at shpPath. Ring
// linework is emitted as MULTILINESTRING WKT; areas are assembled by the database.
// Records with no geometry are dropped and counted in skipped.
func readShapefile(shpPath string) (features []feature, skipped int, err error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open shapefile %s: %w", shpPath, err)
	}
	defer reader.Close()

	decoder := attributeDecoder(strings.TrimSuffix(shpPath, ".shp") + ".cpg")
	fields := reader.Fields()

	for reader.Next() {
		n, shape := reader.Shape()

		parts, points, ok, err := polygonRings(shape)
		if err != nil {
			return nil, 0, fmt.Errorf("record %d: %w", n, err)
		}

		if !ok || len(points) == 0 {
			skipped++
			continue
		}

		text, err := ringsWKT(parts, points)
		if err != nil {
			return nil, 0, fmt.Errorf("record %d: %w", n, err)
		}

		attrs := make(map[string]string, len(fields))

		for i, f := range fields {
			value := strings.TrimSpace(strings.Trim(reader.ReadAttribute(n, i), "\x00"))
			if decoder != nil {
				if decoded, decErr := decoder.String(value); decErr == nil {
					value = decoded
				}
			}

			attrs[f.String()] = value
		}

		encoded, err := json.Marshal(attrs)
		if err != nil {
			return nil, 0, fmt.Errorf("record %d: %w", n, err)
		}

		features = append(features, feature{FID: n, Attrs: string(encoded), WKT: text})
	}

	if err := reader.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read shapefile %s: %w", shpPath, err)
	}

	return features, skipped, nil
}

func polygonRings(shape shp.Shape) ([]int32, []shp.Point, bool, error) {
	switch s := shape.(type) {
	case *shp.Polygon:
		return s.Parts, s.Points, true, nil
	case *shp.PolygonZ:
		return s.Parts, s.Points, true, nil
	case *shp.PolygonM:
		return s.Parts, s.Points, true, nil
	case *shp.Null, nil:
		return nil, nil, false, nil
	default:
		return nil, nil, false, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, shape)
	}
}

// ringsWKT encodes polygon parts as MULTILINESTRING linework
func ringsWKT(parts []int32, points []shp.Point) (string, error) {
	flat := make([]float64, 0, 2*len(points))
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}

	ends := make([]int, 0, len(parts))

	for i := range parts {
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}

		ends = append(ends, 2*end)
	}

	if len(ends) == 0 {
		ends = append(ends, len(flat))
	}

	return wkt.Marshal(geom.NewMultiLineStringFlat(geom.XY, flat, ends))
}

// attributeDecoder reads the .cpg companion and returns the decoder for legacy
// code pages. UTF-8 and unknown encodings are passed through.
func attributeDecoder(cpgPath string) *encoding.Decoder {
	raw, err := os.ReadFile(cpgPath)
	if err != nil {
		return nil
	}

	switch strings.ToUpper(strings.TrimSpace(string(raw))) {
	case "1250", "CP1250", "WINDOWS-1250", "ANSI 1250":
		return charmap.Windows1250.NewDecoder()
	case "8859-2", "ISO-8859-2", "ISO88592", "88592":
		return charmap.ISO8859_2.NewDecoder()
	default:
		return nil
	}
}
