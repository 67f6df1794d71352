package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const defaultTable = "liru_moves"

type Postgres struct {
	db    *sql.DB
	table string
}

type PostgresOption func(*Postgres)

func WithTable(name string) PostgresOption {
	return func(p *Postgres) {
		if strings.TrimSpace(name) != "" {
			p.table = name
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db, table: defaultTable}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpenPostgres connects to DATABASE_URL, pings it and creates the table if needed.
func OpenPostgres(ctx context.Context, databaseURL string, opts ...PostgresOption) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("journal: DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	p := NewPostgres(db, opts...)
	if err := p.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL(p.table)); err != nil {
		return fmt.Errorf("journal: schema: %w", err)
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	_, err := p.db.ExecContext(ctx, insertSQL(p.table),
		e.GameID, int64(e.Version), int64(e.Ply), e.FEN,
		nullable(e.UCI), nullable(e.SAN), e.At,
	)
	if err != nil {
		return fmt.Errorf("journal: record %s v%d: %w", e.GameID, e.Version, err)
	}
	return nil
}

func (p *Postgres) Moves(ctx context.Context, gameID string) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx, selectSQL(p.table), gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e            Entry
			version, ply int64
			uci, san     sql.NullString
		)
		if err := rows.Scan(&e.GameID, &version, &ply, &e.FEN, &uci, &san, &e.At); err != nil {
			return nil, err
		}
		e.Version, e.Ply = uint64(version), uint64(ply)
		e.UCI, e.SAN = uci.String, san.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func schemaSQL(table string) string {
	t := pq.QuoteIdentifier(table)
	return `CREATE TABLE IF NOT EXISTS ` + t + ` (
        game_id    TEXT        NOT NULL,
        version    BIGINT      NOT NULL,
        ply        BIGINT      NOT NULL,
        fen        TEXT        NOT NULL,
        uci        TEXT,
        san        TEXT,
        applied_at TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (game_id, version)
      )`
}

func insertSQL(table string) string {
	return `INSERT INTO ` + pq.QuoteIdentifier(table) + ` (
        game_id, version, ply, fen, uci, san, applied_at
      ) VALUES ($1,$2,$3,$4,$5,$6,$7)
      ON CONFLICT (game_id, version) DO NOTHING`
}

func selectSQL(table string) string {
	return `SELECT game_id, version, ply, fen, uci, san, applied_at FROM ` +
		pq.QuoteIdentifier(table) + ` WHERE game_id = $1 ORDER BY version`
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
