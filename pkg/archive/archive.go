// Package archive unpacks downloaded archives and stages the target vector layer
// under a canonical name.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ethpandaops/footprint/pkg/layers"
	"github.com/ethpandaops/footprint/pkg/observability"
	"github.com/ethpandaops/footprint/pkg/outcome"
	"github.com/ethpandaops/footprint/pkg/regions"
	"github.com/sirupsen/logrus"
)

var errEntryEscapes = errors.New("archive entry escapes destination")

// Extractor unpacks archives and stages the configured layer
type Extractor struct {
	log     logrus.FieldLogger
	tempDir string
	layer   *layers.Config
}

// NewExtractor creates an extractor working inside tempDir
func NewExtractor(log logrus.FieldLogger, tempDir string, layer *layers.Config) *Extractor {
	layer.SetDefaults()

	return &Extractor{
		log:     log.WithField("component", "extractor"),
		tempDir: tempDir,
		layer:   layer,
	}
}

// ExtractAndLocate unpacks the archive if needed, finds the layer carrying the
// configured marker and copies its sidecar set into the region/year staging directory.
// It returns the staged .shp path.
func (e *Extractor) ExtractAndLocate(archivePath string, region regions.Region, year int) (string, error) {
	start := time.Now()
	paths := layers.TempPaths(e.tempDir, region.Code, year)

	log := e.log.WithFields(logrus.Fields{
		"region": region.Code,
		"year":   year,
	})

	staged, err := e.extractAndLocate(archivePath, paths)
	observability.RecordUnit("extract", outcome.Label(err), time.Since(start).Seconds())

	if err != nil {
		log.WithError(err).Warn("Layer could not be staged")
		return "", err
	}

	log.WithField("path", staged).Debug("Layer staged")

	return staged, nil
}

func (e *Extractor) extractAndLocate(archivePath string, paths layers.Paths) (string, error) {
	if err := Extract(archivePath, paths.Extracted); err != nil {
		return "", err
	}

	found, err := Locate(paths.Extracted, e.layer.Marker)
	if err != nil {
		return "", err
	}

	return Normalize(found, paths.Clean, e.layer.CanonicalBase, e.layer.Extensions)
}

// Extract unpacks zipPath into destDir unless destDir already exists. The archive is
// unpacked into a staging sibling first and renamed into place, so an existing destDir
// is always a complete extraction.
func Extract(zipPath, destDir string) error {
	if _, err := os.Stat(destDir); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return outcome.New(outcome.KindLocalIO, destDir, err)
	}

	staging := destDir + ".extracting"

	if err := os.RemoveAll(staging); err != nil {
		return outcome.New(outcome.KindLocalIO, staging, err)
	}

	if err := unzip(zipPath, staging); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}

	if err := os.Rename(staging, destDir); err != nil {
		_ = os.RemoveAll(staging)
		return outcome.New(outcome.KindLocalIO, destDir, err)
	}

	return nil
}

func unzip(zipPath, dest string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return outcome.New(outcome.KindLocalIO, zipPath, err)
		}

		return outcome.New(outcome.KindArchiveCorrupt, zipPath, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0o750); err != nil {
		return outcome.New(outcome.KindLocalIO, dest, err)
	}

	for _, f := range r.File {
		if err := unzipEntry(f, dest, zipPath); err != nil {
			return err
		}
	}

	return nil
}

func unzipEntry(f *zip.File, dest, zipPath string) error {
	target := filepath.Join(dest, filepath.FromSlash(f.Name)) //nolint:gosec // checked below

	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return outcome.New(outcome.KindArchiveCorrupt, zipPath, fmt.Errorf("%w: %s", errEntryEscapes, f.Name))
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o750); err != nil {
			return outcome.New(outcome.KindLocalIO, target, err)
		}

		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return outcome.New(outcome.KindLocalIO, target, err)
	}

	rc, err := f.Open()
	if err != nil {
		return outcome.New(outcome.KindArchiveCorrupt, zipPath+":"+f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return outcome.New(outcome.KindLocalIO, target, err)
	}

	_, copyErr := outcome.Copy(out, rc, outcome.KindArchiveCorrupt, zipPath+":"+f.Name)

	if closeErr := out.Close(); copyErr == nil && closeErr != nil {
		copyErr = outcome.New(outcome.KindLocalIO, target, closeErr)
	}

	return copyErr
}

// shapefilePattern matches .shp files at any depth in any letter case
const shapefilePattern = "**/*.[sS][hH][pP]"

// Locate searches root at any depth for a .shp file whose name contains marker,
// ignoring case. The lexicographically first match by relative path wins.
func Locate(root, marker string) (string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), shapefilePattern, doublestar.WithFilesOnly())
	if err != nil {
		return "", outcome.New(outcome.KindLocalIO, root, err)
	}

	sort.Strings(matches)

	needle := strings.ToLower(marker)

	for _, m := range matches {
		if strings.Contains(strings.ToLower(path.Base(m)), needle) {
			return filepath.Join(root, filepath.FromSlash(m)), nil
		}
	}

	return "", outcome.New(outcome.KindLayerNotFound, root, fmt.Errorf("no .shp containing %q", marker))
}

// Normalize recreates cleanDir and copies the sidecar set of shpPath into it as
// <base><ext>. Sidecars are matched case-insensitively; absent optional sidecars are
// skipped. It returns the staged .shp path.
func Normalize(shpPath, cleanDir, base string, extensions []string) (string, error) {
	srcDir := filepath.Dir(shpPath)
	stem := strings.TrimSuffix(filepath.Base(shpPath), filepath.Ext(shpPath))

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return "", outcome.New(outcome.KindLocalIO, srcDir, err)
	}

	byLower := make(map[string]string, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			byLower[strings.ToLower(entry.Name())] = entry.Name()
		}
	}

	if _, ok := byLower[strings.ToLower(stem+".shp")]; !ok {
		return "", outcome.New(outcome.KindLayerNotFound, shpPath, fs.ErrNotExist)
	}

	if err := os.RemoveAll(cleanDir); err != nil {
		return "", outcome.New(outcome.KindLocalIO, cleanDir, err)
	}

	if err := os.MkdirAll(cleanDir, 0o750); err != nil {
		return "", outcome.New(outcome.KindLocalIO, cleanDir, err)
	}

	for _, ext := range extensions {
		name, ok := byLower[strings.ToLower(stem+ext)]
		if !ok {
			continue
		}

		dst := filepath.Join(cleanDir, base+strings.ToLower(ext))
		if err := copyFile(filepath.Join(srcDir, name), dst); err != nil {
			return "", err
		}
	}

	return filepath.Join(cleanDir, base+".shp"), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // path found inside our own extraction dir
	if err != nil {
		return outcome.New(outcome.KindLocalIO, src, err)
	}
	defer in.Close()

	out, err := os.Create(dst) //nolint:gosec // path derived from configuration
	if err != nil {
		return outcome.New(outcome.KindLocalIO, dst, err)
	}

	_, copyErr := outcome.Copy(out, in, outcome.KindLocalIO, src)

	if closeErr := out.Close(); copyErr == nil && closeErr != nil {
		copyErr = outcome.New(outcome.KindLocalIO, dst, closeErr)
	}

	return copyErr
}
