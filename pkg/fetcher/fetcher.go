package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethpandaops/footprint/pkg/layers"
	"github.com/ethpandaops/footprint/pkg/observability"
	"github.com/ethpandaops/footprint/pkg/outcome"
	"github.com/ethpandaops/footprint/pkg/regions"
	"github.com/ethpandaops/footprint/pkg/rendering"
	"github.com/sirupsen/logrus"
)

// urlVariables feeds the URL template
type urlVariables struct {
	BaseURL string
	Year    int
	Parent  string
	Region  string
}

// Fetcher downloads archives into the local cache
type Fetcher struct {
	log       logrus.FieldLogger
	cfg       *Config
	client    *http.Client
	urlTmpl   *rendering.Template
	tempDir   string
	userAgent string
}

// New creates a fetcher writing into tempDir
func New(log logrus.FieldLogger, cfg *Config, tempDir string) (*Fetcher, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source config: %w", err)
	}

	tmpl, err := rendering.NewTemplateEngine().Compile("archive-url", cfg.URLTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid url template: %w", err)
	}

	return &Fetcher{
		log:       log.WithField("component", "fetcher"),
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		urlTmpl:   tmpl,
		tempDir:   tempDir,
		userAgent: cfg.UserAgent,
	}, nil
}

// URL builds the remote address of a region's archive for a year
func (f *Fetcher) URL(region regions.Region, year int) (string, error) {
	return f.urlTmpl.Execute(urlVariables{
		BaseURL: strings.TrimRight(f.cfg.BaseURL, "/"),
		Year:    year,
		Parent:  region.Parent,
		Region:  region.Code,
	})
}

// Fetch returns the local path of the region's archive for the year. A cached copy
// is returned without touching the network. Otherwise the archive is downloaded once;
// a non-200 answer is KindRemoteAbsent, a network failure KindTransport and a failed
// local write KindLocalIO. Nothing is left on disk unless the download completed.
func (f *Fetcher) Fetch(ctx context.Context, region regions.Region, year int) (string, error) {
	start := time.Now()
	path := layers.TempPaths(f.tempDir, region.Code, year).Archive

	log := f.log.WithFields(logrus.Fields{
		"region": region.Code,
		"year":   year,
	})

	if _, err := os.Stat(path); err == nil {
		log.WithField("path", path).Debug("Archive already cached")
		observability.RecordUnit("fetch", "cached", time.Since(start).Seconds())

		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", outcome.New(outcome.KindLocalIO, path, err)
	}

	addr, err := f.URL(region, year)
	if err != nil {
		return "", fmt.Errorf("failed to build archive url: %w", err)
	}

	log = log.WithField("url", addr)
	log.Info("Downloading archive")

	err = f.download(ctx, addr, path)
	observability.RecordUnit("fetch", outcome.Label(err), time.Since(start).Seconds())

	if err != nil {
		if kind, _ := outcome.KindOf(err); kind == outcome.KindRemoteAbsent {
			log.Info("No archive published")
		} else {
			log.WithError(err).Warn("Archive download failed")
		}

		return "", err
	}

	return path, nil
}

func (f *Fetcher) download(ctx context.Context, addr, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return outcome.New(outcome.KindTransport, addr, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.log.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		return outcome.New(outcome.KindRemoteAbsent, addr, fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return outcome.New(outcome.KindLocalIO, path, err)
	}

	partial := path + ".part"

	out, err := os.Create(partial) //nolint:gosec // path derived from region code and year
	if err != nil {
		return outcome.New(outcome.KindLocalIO, partial, err)
	}

	n, copyErr := outcome.Copy(out, resp.Body, outcome.KindTransport, addr)
	closeErr := out.Close()

	if copyErr == nil && closeErr != nil {
		copyErr = outcome.New(outcome.KindLocalIO, partial, closeErr)
	}

	if copyErr != nil {
		if rmErr := os.Remove(partial); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			f.log.WithError(rmErr).WithField("path", partial).Warn("Failed to remove partial download")
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return copyErr
	}

	if err := os.Rename(partial, path); err != nil {
		return outcome.New(outcome.KindLocalIO, path, err)
	}

	observability.RecordDownloadBytes(n)

	return nil
}
