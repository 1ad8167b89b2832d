package testutil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// WriteZip writes a zip archive at path holding files (slash separated name -> content).
// Names ending in "/" become directory entries.
func WriteZip(t *testing.T, path string, files map[string]string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create archive dir: %v", err)
	}

	out, err := os.Create(path) //nolint:gosec // test path
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}

		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish archive: %v", err)
	}
}

// BDOTArchive returns the file layout of a typical BDOT10k powiat archive with the
// buildings layer nested a few directories deep under its dotted upstream name.
func BDOTArchive(code string) map[string]string {
	dir := "PL.PZGiK.994." + code + "/BDOT10k/"
	stem := "PL.PZGiK.994." + code + "__OT_BUBD_A"

	return map[string]string{
		dir + stem + ".shp":                             "shp-" + code,
		dir + stem + ".shx":                             "shx-" + code,
		dir + stem + ".dbf":                             "dbf-" + code,
		dir + stem + ".prj":                             "prj-" + code,
		dir + stem + ".cpg":                             "UTF-8",
		dir + stem + ".xml":                             "metadata",
		dir + "PL.PZGiK.994." + code + "__OT_BUIN_L.shp": "other-layer",
	}
}
