package auction

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"
)

// ResultStore keeps the public records of finished auctions.
type ResultStore interface {
	SaveRecord(ctx context.Context, r *Record) error
	// LoadRecords returns the most recent records first. limit <= 0 means all.
	LoadRecords(ctx context.Context, limit int) ([]*Record, error)
	Close() error
}

// PostgresStore implements ResultStore with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore connects to the database and creates the schema.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS auction_records (
		id CHAR(64) PRIMARY KEY,
		winner_id INTEGER NOT NULL,
		bidders BIGINT[] NOT NULL,
		parties TEXT[] NOT NULL,
		strategy VARCHAR(16) NOT NULL,
		record BYTEA NOT NULL,
		started_at TIMESTAMP WITH TIME ZONE NOT NULL,
		finished_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_auction_records_finished ON auction_records(finished_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRecord persists a sealed record. Saving the same record twice is a no-op.
func (s *PostgresStore) SaveRecord(ctx context.Context, r *Record) error {
	if err := r.Verify(); err != nil {
		return err
	}
	encoded, err := r.Encode()
	if err != nil {
		return err
	}

	bidders := make([]int64, len(r.Bidders))
	for i, id := range r.Bidders {
		bidders[i] = int64(id)
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO auction_records
		(id, winner_id, bidders, parties, strategy, record, started_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING
	`,
		r.ID,
		r.WinnerID,
		pq.Array(bidders),
		pq.Array(r.Parties),
		r.Strategy,
		encoded,
		r.StartedAt,
		r.FinishedAt,
	)
	return err
}

// LoadRecords decodes stored records and drops any whose digest no longer
// matches its ID.
func (s *PostgresStore) LoadRecords(ctx context.Context, limit int) ([]*Record, error) {
	query := `SELECT id, record FROM auction_records ORDER BY finished_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var (
			id      string
			encoded []byte
		)
		if err := rows.Scan(&id, &encoded); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		r, err := DecodeRecord(encoded)
		if err != nil || r.ID != id {
			continue
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InMemoryStore implements ResultStore without a database.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

// SaveRecord stores a sealed record in memory.
func (s *InMemoryStore) SaveRecord(_ context.Context, r *Record) error {
	if err := r.Verify(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
	return nil
}

// LoadRecords returns the stored records, most recent first.
func (s *InMemoryStore) LoadRecords(_ context.Context, limit int) ([]*Record, error) {
	s.mu.Lock()
	records := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		if !records[i].FinishedAt.Equal(records[j].FinishedAt) {
			return records[i].FinishedAt.After(records[j].FinishedAt)
		}
		return records[i].ID < records[j].ID
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error {
	return nil
}
