// Package postgres provides the Postgres-backed store.Repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pulseflow/internal/scraper"
	"github.com/JakeFAU/pulseflow/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Repository implements store.Repository on Postgres.
type Repository struct {
	pool pool
}

var _ store.Repository = (*Repository)(nil)

// New connects using cfg.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Repository{pool: p}, nil
}

// NewWithPool constructs a Repository from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Repository, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Repository{pool: p}, nil
}

// Close releases the pool.
func (r *Repository) Close() error {
	if r != nil && r.pool != nil {
		r.pool.Close()
	}
	return nil
}

// Ping verifies connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the tables when they do not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const signalColumns = `id, name, url, selector, strategy, interval_minutes, is_active, last_scraped_at, created_at`

func scanSignal(row pgx.Row) (store.Signal, error) {
	var (
		s        store.Signal
		strategy string
	)
	if err := row.Scan(&s.ID, &s.Name, &s.URL, &s.Selector, &strategy, &s.IntervalMinutes,
		&s.IsActive, &s.LastScrapedAt, &s.CreatedAt); err != nil {
		return store.Signal{}, err
	}
	s.Strategy = scraper.Strategy(strategy)
	return s, nil
}

// CreateSignal inserts a signal.
func (r *Repository) CreateSignal(ctx context.Context, s store.Signal) error {
	query := `INSERT INTO signals (` + signalColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if _, err := r.pool.Exec(ctx, query, s.ID, s.Name, s.URL, s.Selector, string(s.Strategy),
		s.IntervalMinutes, s.IsActive, s.LastScrapedAt, s.CreatedAt); err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// ListSignals pages through signals newest first.
func (r *Repository) ListSignals(ctx context.Context, filter store.SignalFilter) (store.SignalPage, error) {
	f := filter.Normalize()
	where, args := signalWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM signals`+where, args...).Scan(&total); err != nil {
		return store.SignalPage{}, fmt.Errorf("count signals: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	query := fmt.Sprintf(`SELECT %s FROM signals%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		signalColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return store.SignalPage{}, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []store.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return store.SignalPage{}, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return store.SignalPage{}, fmt.Errorf("iterate signals: %w", err)
	}
	return store.NewSignalPage(out, total, f), nil
}

func signalWhere(f store.SignalFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if search := strings.TrimSpace(f.Search); search != "" {
		args = append(args, "%"+likeEscaper.Replace(search)+"%")
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR url ILIKE $%d)", len(args), len(args)))
	}
	switch f.Status {
	case store.SignalStatusActive:
		clauses = append(clauses, "is_active")
	case store.SignalStatusInactive:
		clauses = append(clauses, "NOT is_active")
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// UpdateSignal replaces a signal's mutable fields.
func (r *Repository) UpdateSignal(ctx context.Context, s store.Signal) error {
	tag, err := r.pool.Exec(ctx, `UPDATE signals
		SET name = $2, url = $3, selector = $4, strategy = $5, interval_minutes = $6, is_active = $7
		WHERE id = $1`,
		s.ID, s.Name, s.URL, s.Selector, string(s.Strategy), s.IntervalMinutes, s.IsActive)
	if err != nil {
		return fmt.Errorf("update signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SetSignalActive flips activation and returns the updated row.
func (r *Repository) SetSignalActive(ctx context.Context, id string, active bool) (store.Signal, error) {
	row := r.pool.QueryRow(ctx, `UPDATE signals SET is_active = $2 WHERE id = $1 RETURNING `+signalColumns, id, active)
	s, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Signal{}, store.ErrNotFound
	}
	if err != nil {
		return store.Signal{}, fmt.Errorf("set signal active: %w", err)
	}
	return s, nil
}

// DeleteSignal removes a signal. Pulses, alerts and destinations follow
// through ON DELETE CASCADE.
func (r *Repository) DeleteSignal(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM signals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// FindSignal loads one signal or returns store.ErrNotFound.
func (r *Repository) FindSignal(ctx context.Context, id string) (store.Signal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = $1`, id)
	s, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Signal{}, store.ErrNotFound
	}
	if err != nil {
		return store.Signal{}, fmt.Errorf("find signal: %w", err)
	}
	return s, nil
}

// ListDueSignals returns active signals whose interval elapsed at now.
func (r *Repository) ListDueSignals(ctx context.Context, now time.Time) ([]store.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals
		WHERE is_active
		AND (last_scraped_at IS NULL OR last_scraped_at + make_interval(mins => interval_minutes) <= $1)
		ORDER BY id`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list due signals: %w", err)
	}
	defer rows.Close()

	var out []store.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return out, nil
}

// SavePulse inserts the pulse and updates the signal's last_scraped_at in
// one transaction.
func (r *Repository) SavePulse(ctx context.Context, p store.Pulse, scrapedAt time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO pulses
		(id, signal_id, raw_data, summary, status, content_hash, archive_uri, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.SignalID, p.RawData, p.Summary, string(p.Status), p.ContentHash, p.ArchiveURI, p.CreatedAt,
	); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("insert pulse: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE signals SET last_scraped_at = $1 WHERE id = $2`, scrapedAt, p.SignalID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("update signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		return store.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit pulse: %w", err)
	}
	return nil
}

// SetArchiveURI records the archive location of a pulse.
func (r *Repository) SetArchiveURI(ctx context.Context, pulseID, uri string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE pulses SET archive_uri = $1 WHERE id = $2`, uri, pulseID)
	if err != nil {
		return fmt.Errorf("update archive uri: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const pulseColumns = `id, signal_id, raw_data, summary, status, content_hash, archive_uri, created_at`

func scanPulse(row pgx.Row) (store.Pulse, error) {
	var (
		p      store.Pulse
		status string
	)
	if err := row.Scan(&p.ID, &p.SignalID, &p.RawData, &p.Summary, &status, &p.ContentHash,
		&p.ArchiveURI, &p.CreatedAt); err != nil {
		return store.Pulse{}, err
	}
	p.Status = store.PulseStatus(status)
	return p, nil
}

// FindLatestSuccessPulse returns the newest SUCCESS pulse other than excludingID.
func (r *Repository) FindLatestSuccessPulse(ctx context.Context, signalID, excludingID string) (store.Pulse, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+pulseColumns+`
		FROM pulses
		WHERE signal_id = $1 AND status = $2 AND id <> $3
		ORDER BY created_at DESC
		LIMIT 1`, signalID, string(store.PulseSuccess), excludingID)

	p, err := scanPulse(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Pulse{}, store.ErrNotFound
	}
	if err != nil {
		return store.Pulse{}, fmt.Errorf("find latest pulse: %w", err)
	}
	return p, nil
}

// FindPulse loads one pulse or returns store.ErrNotFound.
func (r *Repository) FindPulse(ctx context.Context, id string) (store.Pulse, error) {
	p, err := scanPulse(r.pool.QueryRow(ctx, `SELECT `+pulseColumns+` FROM pulses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Pulse{}, store.ErrNotFound
	}
	if err != nil {
		return store.Pulse{}, fmt.Errorf("find pulse: %w", err)
	}
	return p, nil
}

// ListPulses returns up to limit pulses of a signal, newest first.
func (r *Repository) ListPulses(ctx context.Context, signalID string, limit int) ([]store.Pulse, error) {
	if limit <= 0 {
		limit = store.MaxPageSize
	}
	rows, err := r.pool.Query(ctx, `SELECT `+pulseColumns+` FROM pulses
		WHERE signal_id = $1 ORDER BY created_at DESC LIMIT $2`, signalID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pulses: %w", err)
	}
	defer rows.Close()

	var out []store.Pulse
	for rows.Next() {
		p, err := scanPulse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pulse: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pulses: %w", err)
	}
	return out, nil
}

// CreateDestination inserts an alert destination.
func (r *Repository) CreateDestination(ctx context.Context, d store.AlertDestination) error {
	if _, err := r.pool.Exec(ctx, `INSERT INTO alert_destinations (id, signal_id, channel, destination, is_active)
		VALUES ($1,$2,$3,$4,$5)`, d.ID, d.SignalID, string(d.Channel), d.Destination, d.IsActive); err != nil {
		return fmt.Errorf("insert destination: %w", err)
	}
	return nil
}

// FindActiveDestinations lists a signal's active destinations.
func (r *Repository) FindActiveDestinations(ctx context.Context, signalID string) ([]store.AlertDestination, error) {
	return r.queryDestinations(ctx, `SELECT id, signal_id, channel, destination, is_active
		FROM alert_destinations WHERE signal_id = $1 AND is_active ORDER BY id`, signalID)
}

// ListDestinations lists all of a signal's destinations.
func (r *Repository) ListDestinations(ctx context.Context, signalID string) ([]store.AlertDestination, error) {
	return r.queryDestinations(ctx, `SELECT id, signal_id, channel, destination, is_active
		FROM alert_destinations WHERE signal_id = $1 ORDER BY id`, signalID)
}

func (r *Repository) queryDestinations(ctx context.Context, query, signalID string) ([]store.AlertDestination, error) {
	rows, err := r.pool.Query(ctx, query, signalID)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	defer rows.Close()

	var out []store.AlertDestination
	for rows.Next() {
		var (
			d       store.AlertDestination
			channel string
		)
		if err := rows.Scan(&d.ID, &d.SignalID, &channel, &d.Destination, &d.IsActive); err != nil {
			return nil, fmt.Errorf("scan destination: %w", err)
		}
		d.Channel = store.Channel(channel)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate destinations: %w", err)
	}
	return out, nil
}

// DeleteDestination removes a destination; its alerts go with it.
func (r *Repository) DeleteDestination(ctx context.Context, signalID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM alert_destinations WHERE id = $1 AND signal_id = $2`, id, signalID)
	if err != nil {
		return fmt.Errorf("delete destination: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateAlert inserts an alert row.
func (r *Repository) CreateAlert(ctx context.Context, a store.Alert) error {
	if _, err := r.pool.Exec(ctx, `INSERT INTO alerts
		(id, pulse_id, destination_id, channel, change_type, change_summary, change_details,
		 status, delivered_at, error_message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.PulseID, a.DestinationID, string(a.Channel), a.ChangeType, a.ChangeSummary, a.ChangeDetails,
		string(a.Status), a.DeliveredAt, a.ErrorMessage, a.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns a pulse's alerts in creation order.
func (r *Repository) ListAlerts(ctx context.Context, pulseID string) ([]store.Alert, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, pulse_id, destination_id, channel, change_type, change_summary,
		change_details, status, delivered_at, error_message, created_at
		FROM alerts WHERE pulse_id = $1 ORDER BY created_at, id`, pulseID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []store.Alert
	for rows.Next() {
		var (
			a       store.Alert
			channel string
			status  string
		)
		if err := rows.Scan(&a.ID, &a.PulseID, &a.DestinationID, &channel, &a.ChangeType, &a.ChangeSummary,
			&a.ChangeDetails, &status, &a.DeliveredAt, &a.ErrorMessage, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Channel = store.Channel(channel)
		a.Status = store.AlertStatus(status)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}
