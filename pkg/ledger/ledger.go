// Package ledger keeps a record of what each pipeline run did to every unit, so
// operators can see the state of a sweep without querying the store. It is
// informational only: the store remains the source of truth for idempotence.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	unitsKey   = "units"
	runsKey    = "runs"
	maxHistory = 100
)

// Record is the latest outcome of one (region, year) unit
type Record struct {
	RunID     string    `json:"run_id"`
	Region    string    `json:"region"`
	Year      int       `json:"year"`
	Stage     string    `json:"stage"`
	Outcome   string    `json:"outcome"`
	Layer     string    `json:"layer,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// YearSummary is the change detection result of one year
type YearSummary struct {
	Year          int    `json:"year"`
	Outcome       string `json:"outcome"`
	Snapshot      string `json:"snapshot,omitempty"`
	Change        string `json:"change,omitempty"`
	SnapshotCount int64  `json:"snapshot_count"`
	ChangeCount   int64  `json:"change_count"`
	Error         string `json:"error,omitempty"`
}

// Run summarizes one pipeline run
type Run struct {
	ID         string         `json:"id"`
	Command    string         `json:"command"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Units      map[string]int `json:"units,omitempty"`
	Years      []YearSummary  `json:"years,omitempty"`
}

// Ledger stores unit records and run summaries
type Ledger interface {
	// Record stores the latest outcome of a unit, replacing the previous one
	Record(ctx context.Context, rec Record) error
	// Units returns the records of a year ordered by region code
	Units(ctx context.Context, year int) ([]Record, error)
	// SaveRun appends a run summary to the history
	SaveRun(ctx context.Context, run Run) error
	// Runs returns up to limit summaries, newest first
	Runs(ctx context.Context, limit int) ([]Run, error)
	// Close releases resources held by the ledger
	Close() error
}

type redisLedger struct {
	log    logrus.FieldLogger
	redis  *redis.Client
	prefix string
}

// NewRedis creates a ledger backed by Redis. Keys are namespaced by prefix.
func NewRedis(log logrus.FieldLogger, client *redis.Client, prefix string) Ledger {
	return &redisLedger{
		log:    log.WithField("component", "ledger"),
		redis:  client,
		prefix: prefix,
	}
}

func (l *redisLedger) key(parts ...string) string {
	key := l.prefix
	for _, p := range parts {
		if key == "" {
			key = p
			continue
		}

		key += ":" + p
	}

	return key
}

func (l *redisLedger) Record(ctx context.Context, rec Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	key := l.key(unitsKey, strconv.Itoa(rec.Year))

	if err := l.redis.HSet(ctx, key, rec.Region, data).Err(); err != nil {
		return fmt.Errorf("failed to record unit %s/%d: %w", rec.Region, rec.Year, err)
	}

	return nil
}

func (l *redisLedger) Units(ctx context.Context, year int) ([]Record, error) {
	values, err := l.redis.HGetAll(ctx, l.key(unitsKey, strconv.Itoa(year))).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read units for %d: %w", year, err)
	}

	out := make([]Record, 0, len(values))

	for region, raw := range values {
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			l.log.WithError(err).WithFields(logrus.Fields{
				"region": region,
				"year":   year,
			}).Warn("Skipping unreadable ledger record")

			continue
		}

		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Region < out[j].Region })

	return out, nil
}

func (l *redisLedger) SaveRun(ctx context.Context, run Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	key := l.key(runsKey)

	_, err = l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, maxHistory-1)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	return nil
}

func (l *redisLedger) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		return nil, nil
	}

	values, err := l.redis.LRange(ctx, l.key(runsKey), 0, int64(limit-1)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read runs: %w", err)
	}

	out := make([]Run, 0, len(values))

	for _, raw := range values {
		var run Run
		if err := json.Unmarshal([]byte(raw), &run); err != nil {
			l.log.WithError(err).Warn("Skipping unreadable run summary")
			continue
		}

		out = append(out, run)
	}

	return out, nil
}

func (l *redisLedger) Close() error {
	return l.redis.Close()
}

type noop struct{}

// NewNoop returns a ledger that discards everything, used when Redis is not configured
func NewNoop() Ledger {
	return noop{}
}

func (noop) Record(context.Context, Record) error         { return nil }
func (noop) Units(context.Context, int) ([]Record, error) { return nil, nil }
func (noop) SaveRun(context.Context, Run) error           { return nil }
func (noop) Runs(context.Context, int) ([]Run, error)     { return nil, nil }
func (noop) Close() error                                 { return nil }
