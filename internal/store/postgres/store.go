// Package postgres provides a Postgres-backed agent store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blackbox-ai/scrape-agent/internal/scraper"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for agent rows.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store persists agent documents as jsonb rows in Postgres.
type Store struct {
	pool  pgxPool
	table string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "agents"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "agents"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Create inserts a new agent row.
func (s *Store) Create(ctx context.Context, agent scraper.Agent) error {
	if agent.ID == "" {
		return fmt.Errorf("agent id is required")
	}
	doc, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("marshal agent: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, name, document, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, query, agent.ID, agent.Name, doc, agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraper.ErrAgentExists
	}
	return nil
}

// Get loads an agent row by ID.
func (s *Store) Get(ctx context.Context, id string) (scraper.Agent, error) {
	query := fmt.Sprintf(`SELECT document FROM %s WHERE id = $1`, s.table)
	var doc []byte
	if err := s.pool.QueryRow(ctx, query, id).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scraper.Agent{}, scraper.ErrAgentNotFound
		}
		return scraper.Agent{}, fmt.Errorf("select agent: %w", err)
	}
	var agent scraper.Agent
	if err := json.Unmarshal(doc, &agent); err != nil {
		return scraper.Agent{}, fmt.Errorf("decode agent document: %w", err)
	}
	return agent, nil
}

// List returns summaries for all agent rows, ordered by ID.
func (s *Store) List(ctx context.Context) ([]scraper.AgentSummary, error) {
	query := fmt.Sprintf(`SELECT document FROM %s ORDER BY id`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select agents: %w", err)
	}
	defer rows.Close()

	var summaries []scraper.AgentSummary
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		var agent scraper.Agent
		if err := json.Unmarshal(doc, &agent); err != nil {
			return nil, fmt.Errorf("decode agent document: %w", err)
		}
		summaries = append(summaries, scraper.AgentSummary{
			ID:   agent.ID,
			Name: agent.Name,
			URLs: agent.URLs,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent rows: %w", err)
	}
	return summaries, nil
}

// Update replaces an existing agent row.
func (s *Store) Update(ctx context.Context, agent scraper.Agent) error {
	doc, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("marshal agent: %w", err)
	}
	query := fmt.Sprintf(`
UPDATE %s SET name = $2, document = $3, updated_at = $4 WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, agent.ID, agent.Name, doc, agent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraper.ErrAgentNotFound
	}
	return nil
}

// Delete removes an agent row by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraper.ErrAgentNotFound
	}
	return nil
}
