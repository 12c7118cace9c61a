// Package postgres pages through the result of a configured SELECT.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/ideamans/go-sheetsync"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// Config describes the connection and the query to sync
type Config struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	SSLMode        string // default: prefer
	Query          string // SELECT producing the rows
	OrderBy        string // stable ordering for paging, e.g. "patient_id"
	FullPopulation bool   // the query returns every row of the synced entity
}

// DSN builds a postgres:// connection string
func (c Config) DSN() string {
	port := c.Port
	if port == "" {
		port = "5432"
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	return u.String()
}

// Open connects through the pgx database/sql driver and pings the server
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Host == "" || cfg.Database == "" || cfg.User == "" {
		return nil, fmt.Errorf("%w: postgres host, database and user", sheetsync.ErrMissingConfig)
	}

	connConfig, err := pgx.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}
	db := stdlib.OpenDB(*connConfig)
	db.SetMaxOpenConns(2)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", describe(err))
	}
	return db, nil
}

// Source implements sheetsync.Source over a SQL query
type Source struct {
	db     *sql.DB
	query  string
	order  string
	full   bool
	logger *zap.Logger
}

// Option customizes a Source
type Option func(*Source)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a query source on db
func New(db *sql.DB, cfg Config, opts ...Option) (*Source, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database handle", sheetsync.ErrMissingConfig)
	}
	query := trimQuery(cfg.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query", sheetsync.ErrMissingConfig)
	}

	s := &Source{
		db:     db,
		query:  query,
		order:  strings.TrimSpace(cfg.OrderBy),
		full:   cfg.FullPopulation,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Complete reports the configured FullPopulation flag
func (s *Source) Complete() bool {
	return s.full
}

// Statement returns the paged form of the query
func (s *Source) Statement() string {
	var b strings.Builder
	b.WriteString("SELECT * FROM (\n")
	b.WriteString(s.query)
	// newline keeps a trailing line comment from swallowing the alias
	b.WriteString("\n) AS q")
	if s.order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(s.order)
	}
	b.WriteString(" LIMIT $1 OFFSET $2")
	return b.String()
}

// Fetch runs the query for one page
func (s *Source) Fetch(ctx context.Context, offset, limit int) ([]*sheetsync.Record, error) {
	s.logger.Debug("querying rows", zap.Int("offset", offset), zap.Int("limit", limit))

	rows, err := s.db.QueryContext(ctx, s.Statement(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", describe(err))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var records []*sheetsync.Record
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i := range values {
			values[i] = normalize(values[i])
		}
		records = append(records, sheetsync.NewRecord(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", describe(err))
	}
	return records, nil
}

// normalize maps driver values to sink friendly values
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return val
	case float32:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return nil
		}
		return float64(val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format("2006-01-02 15:04:05")
	default:
		return v
	}
}

// trimQuery drops trailing semicolons so the query can be wrapped
func trimQuery(q string) string {
	q = strings.TrimSpace(q)
	for strings.HasSuffix(q, ";") {
		q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	}
	return q
}

// describe adds the SQLSTATE of server errors
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s (SQLSTATE %s): %w", pgErr.Message, pgErr.Code, err)
	}
	return err
}
