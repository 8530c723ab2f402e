package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// MySQLSnapshotStore appends snapshots to the marketplace_snapshots table
// and reads back the newest row.
type MySQLSnapshotStore struct{ DB *sql.DB }

func NewMySQLSnapshotStore(db *sql.DB) *MySQLSnapshotStore { return &MySQLSnapshotStore{DB: db} }

// EnsureSchema creates the snapshot table when it does not exist.
func (s *MySQLSnapshotStore) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS marketplace_snapshots (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			payload LONGBLOB NOT NULL,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
		)`)
	return err
}

func (s *MySQLSnapshotStore) Save(ctx context.Context, data []byte) error {
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO marketplace_snapshots (payload) VALUES (?)", data)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *MySQLSnapshotStore) Latest(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.DB.QueryRowContext(ctx,
		"SELECT payload FROM marketplace_snapshots ORDER BY id DESC LIMIT 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	return data, nil
}
