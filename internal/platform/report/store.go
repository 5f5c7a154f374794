package report

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the SQL migrations for the deid_report table, rooted so
// that db.Migrator can read them directly.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// StoredReport is a row of the deid_report table.
type StoredReport struct {
	ID          uuid.UUID `json:"id"`
	Kind        Kind      `json:"kind"`
	Message     string    `json:"message"`
	ComponentID string    `json:"component_id,omitempty"`
	Generator   string    `json:"generator,omitempty"`
	ReportedAt  time.Time `json:"reported_at"`
}

func newStoredReport(h Handle, err error) StoredReport {
	r := StoredReport{
		ID:         h.ID,
		Kind:       h.Kind,
		Message:    err.Error(),
		ReportedAt: h.ReportedAt,
	}
	var d Detailed
	if errors.As(err, &d) {
		r.ComponentID = d.ComponentID()
		r.Generator = d.GeneratorName()
	}
	return r
}

// Store persists reports to Postgres. Report never blocks the caller: rows
// are queued and written by a background goroutine, and reports that do not
// fit in the queue are logged and dropped.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
	queue  chan StoredReport
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewStore starts the writer goroutine. buffer is the queue capacity.
func NewStore(pool *pgxpool.Pool, logger zerolog.Logger, buffer int) *Store {
	if buffer <= 0 {
		buffer = 256
	}
	s := &Store{
		pool:   pool,
		logger: logger.With().Str("component", "deid-report-store").Logger(),
		queue:  make(chan StoredReport, buffer),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
	return s
}

func (s *Store) Report(err error) Handle {
	h := NewHandle(err)
	s.Record(h, err)
	return h
}

// Record queues err under h.
func (s *Store) Record(h Handle, err error) {
	rec := newStoredReport(h, err)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn().Str("report_id", h.ID.String()).Msg("store closed, report dropped")
		return
	}
	select {
	case s.queue <- rec:
	default:
		s.logger.Warn().Str("report_id", h.ID.String()).Str("kind", string(h.Kind)).Msg("report queue full, report dropped")
	}
}

func (s *Store) run() {
	for rec := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.Insert(ctx, rec); err != nil {
			s.logger.Error().Err(err).Str("report_id", rec.ID.String()).Msg("failed to store report")
		}
		cancel()
	}
}

// Close stops accepting reports and waits until the queue is drained.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

// Insert writes one report row.
func (s *Store) Insert(ctx context.Context, r StoredReport) error {
	const query = `
		INSERT INTO deid_report (id, kind, message, component_id, generator, reported_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)`

	if _, err := s.pool.Exec(ctx, query,
		r.ID, string(r.Kind), r.Message, r.ComponentID, r.Generator, r.ReportedAt,
	); err != nil {
		return fmt.Errorf("report store: insert: %w", err)
	}
	return nil
}

// Recent returns the newest reports, optionally filtered by kind.
func (s *Store) Recent(ctx context.Context, kind Kind, limit int) ([]StoredReport, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	const query = `
		SELECT id, kind, message, COALESCE(component_id, ''), COALESCE(generator, ''), reported_at
		FROM deid_report
		WHERE ($1 = '' OR kind = $1)
		ORDER BY reported_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("report store: query: %w", err)
	}
	defer rows.Close()

	var out []StoredReport
	for rows.Next() {
		var r StoredReport
		var k string
		if err := rows.Scan(&r.ID, &k, &r.Message, &r.ComponentID, &r.Generator, &r.ReportedAt); err != nil {
			return nil, fmt.Errorf("report store: scan: %w", err)
		}
		r.Kind = Kind(k)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("report store: iterate: %w", err)
	}
	return out, nil
}
