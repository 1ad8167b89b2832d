package postgis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ethpandaops/footprint/pkg/store"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var layerNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Store keeps one table per stored layer inside a schema
type Store struct {
	log          logrus.FieldLogger
	db           *sql.DB
	schema       string
	srid         int
	batchSize    int
	queryTimeout time.Duration
}

var _ store.Store = (*Store)(nil)

// New opens a connection pool. Call Start to verify the database.
func New(log logrus.FieldLogger, cfg *Config) (*Store, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)

	return &Store{
		log:          log.WithField("component", "postgis"),
		db:           db,
		schema:       cfg.Schema,
		srid:         cfg.SRID,
		batchSize:    cfg.BatchSize,
		queryTimeout: cfg.QueryTimeout,
	}, nil
}

// Start checks connectivity and PostGIS availability and creates the schema
func (s *Store) Start(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}

	var version string
	if err := s.db.QueryRowContext(ctx, "SELECT postgis_lib_version()").Scan(&version); err != nil {
		return fmt.Errorf("postgis is not available: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(s.schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", s.schema, err)
	}

	if _, err := s.db.ExecContext(ctx, createLineageSQL(qualify(s.schema, lineageTable))); err != nil {
		return fmt.Errorf("failed to create lineage table: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"postgis": version,
		"schema":  s.schema,
	}).Info("Connected to PostGIS store")

	return nil
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Exists reports whether a layer table is present
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.exists(ctx, s.db, name)
}

// Count returns the number of features in a layer
func (s *Store) Count(ctx context.Context, name string) (int64, error) {
	if err := validName(name); err != nil {
		return 0, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := s.exists(ctx, s.db, name)
	if err != nil {
		return 0, err
	}

	if !ok {
		return 0, fmt.Errorf("%w: %s", store.ErrLayerNotFound, name)
	}

	query, args, err := countQuery(qualify(s.schema, name))
	if err != nil {
		return 0, err
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", name, err)
	}

	return n, nil
}

// Import loads the shapefile at path into a new layer. Features whose rings do not
// close into an area are dropped and counted as skipped.
func (s *Store) Import(ctx context.Context, name, path string) (bool, error) {
	return s.createIfAbsent(ctx, name, func(ctx context.Context, tx *sql.Tx, table string) error {
		features, skipped, err := readShapefile(path)
		if err != nil {
			return err
		}

		for start := 0; start < len(features); start += s.batchSize {
			end := min(start+s.batchSize, len(features))

			query, args, err := insertQuery(table, name, s.srid, features[start:end])
			if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert features %d-%d: %w", start, end, err)
			}
		}

		query, args, err := deleteEmptyQuery(table)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to drop empty geometries: %w", err)
		}

		empty, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to drop empty geometries: %w", err)
		}

		s.log.WithFields(logrus.Fields{
			"layer":    name,
			"features": int64(len(features)) - empty,
			"skipped":  int64(skipped) + empty,
		}).Debug("Shapefile loaded")

		return nil
	})
}

// Merge unions the source layers into name, rebuilding it when the sources changed
func (s *Store) Merge(ctx context.Context, name string, sources []string) (bool, error) {
	if len(sources) == 0 {
		return false, store.ErrNoSources
	}

	lineage := func(ctx context.Context, tx *sql.Tx) (string, error) {
		parts := make([]string, 0, len(sources))

		for _, src := range sources {
			l, err := s.lineage(ctx, tx, src)
			if err != nil {
				return "", err
			}

			parts = append(parts, l)
		}

		return store.MergeLineage(parts), nil
	}

	return s.derive(ctx, name, lineage, func(ctx context.Context, tx *sql.Tx, table string) error {
		tables, err := s.requireLayers(ctx, tx, sources...)
		if err != nil {
			return err
		}

		query, args, err := mergeQuery(table, tables)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to merge into %s: %w", name, err)
		}

		return nil
	})
}

// SelectDisjoint stores the features of source intersecting nothing in against,
// rebuilding name when either input changed
func (s *Store) SelectDisjoint(ctx context.Context, name, source, against string) (bool, error) {
	lineage := func(ctx context.Context, tx *sql.Tx) (string, error) {
		src, err := s.lineage(ctx, tx, source)
		if err != nil {
			return "", err
		}

		prior, err := s.lineage(ctx, tx, against)
		if err != nil {
			return "", err
		}

		return store.DisjointLineage(src, prior), nil
	}

	return s.derive(ctx, name, lineage, func(ctx context.Context, tx *sql.Tx, table string) error {
		tables, err := s.requireLayers(ctx, tx, source, against)
		if err != nil {
			return err
		}

		query, args, err := disjointQuery(table, tables[0], tables[1])
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to select disjoint features into %s: %w", name, err)
		}

		return nil
	})
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *Store) exists(ctx context.Context, q queryer, name string) (bool, error) {
	query, args, err := existsQuery(s.schema, name)
	if err != nil {
		return false, err
	}

	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check layer %s: %w", name, err)
	}

	return n > 0, nil
}

func (s *Store) requireLayers(ctx context.Context, tx *sql.Tx, names ...string) ([]string, error) {
	tables := make([]string, 0, len(names))

	for _, name := range names {
		if err := validName(name); err != nil {
			return nil, err
		}

		ok, err := s.exists(ctx, tx, name)
		if err != nil {
			return nil, err
		}

		if !ok {
			return nil, fmt.Errorf("%w: %s", store.ErrLayerNotFound, name)
		}

		tables = append(tables, qualify(s.schema, name))
	}

	return tables, nil
}

type (
	fillFunc    func(context.Context, *sql.Tx, string) error
	lineageFunc func(context.Context, *sql.Tx) (string, error)
)

// lineage is what a layer was built from: the recorded lineage of a derived layer,
// or the name itself for an imported one
func (s *Store) lineage(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	query, args, err := lineageQuery(qualify(s.schema, lineageTable), name)
	if err != nil {
		return "", err
	}

	var recorded string

	err = tx.QueryRowContext(ctx, query, args...).Scan(&recorded)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return name, nil
	case err != nil:
		return "", fmt.Errorf("failed to read lineage of %s: %w", name, err)
	}

	return recorded, nil
}

func (s *Store) createIfAbsent(ctx context.Context, name string, fill fillFunc) (bool, error) {
	return s.write(ctx, name, nil, fill)
}

func (s *Store) derive(ctx context.Context, name string, lineage lineageFunc, fill fillFunc) (bool, error) {
	return s.write(ctx, name, lineage, fill)
}

// write serializes writers of one name across connections with a
// transaction-scoped advisory lock, then checks, creates and fills the table. An
// existing table is kept unless lineage is set and differs from the recorded one,
// in which case it is dropped and rebuilt. The DDL is transactional, so a failed
// fill leaves the previous table in place.
func (s *Store) write(ctx context.Context, name string, lineage lineageFunc, fill fillFunc) (written bool, err error) {
	if err := validName(name); err != nil {
		return false, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if !written {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.WithError(rbErr).WithField("layer", name).Warn("Rollback failed")
			}
		}
	}()

	table := qualify(s.schema, name)

	lock, args, err := lockQuery(table)
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, lock, args...); err != nil {
		return false, fmt.Errorf("failed to lock %s: %w", name, err)
	}

	exists, err := s.exists(ctx, tx, name)
	if err != nil {
		return false, err
	}

	var want string

	if lineage != nil {
		if want, err = lineage(ctx, tx); err != nil {
			return false, err
		}
	}

	if exists {
		if lineage == nil {
			return false, nil
		}

		have, err := s.lineage(ctx, tx, name)
		if err != nil {
			return false, err
		}

		if have == want {
			return false, nil
		}

		s.log.WithFields(logrus.Fields{
			"layer": name,
			"was":   have,
			"now":   want,
		}).Info("Inputs changed, rebuilding derived layer")

		if _, err := tx.ExecContext(ctx, dropTableSQL(table)); err != nil {
			return false, fmt.Errorf("failed to drop %s: %w", name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, createTableSQL(table, s.srid)); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", name, err)
	}

	if err := fill(ctx, tx, table); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, createIndexSQL(table)); err != nil {
		return false, fmt.Errorf("failed to index %s: %w", name, err)
	}

	if lineage != nil {
		query, args, err := recordLineageQuery(qualify(s.schema, lineageTable), name, want)
		if err != nil {
			return false, err
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return false, fmt.Errorf("failed to record lineage of %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit %s: %w", name, err)
	}

	return true, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, s.queryTimeout)
}

func validName(name string) error {
	if !layerNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", store.ErrInvalidName, name)
	}

	return nil
}
