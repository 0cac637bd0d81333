package timer

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// Key identifies one timed training step.
type Key struct {
	Day       int
	StepIndex int
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.Day, k.StepIndex)
}

// Store persists absolute deadlines in a local sqlite file so a
// countdown survives process restarts. Only the deadline is stored;
// remaining time is always recomputed from it.
type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open deadline store: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS step_deadlines (
			day        INTEGER NOT NULL,
			step_index INTEGER NOT NULL,
			end_ts     INTEGER NOT NULL,
			PRIMARY KEY (day, step_index)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init deadline store: %w", err)
	}

	return &Store{db: db}, nil
}

// Put upserts the deadline for a key.
func (s *Store) Put(key Key, endTs int64) error {
	_, err := s.db.Exec(`
		INSERT INTO step_deadlines (day, step_index, end_ts)
		VALUES (?, ?, ?)
		ON CONFLICT (day, step_index) DO UPDATE SET end_ts = excluded.end_ts
	`, key.Day, key.StepIndex, endTs)
	if err != nil {
		return fmt.Errorf("failed to persist deadline: %w", err)
	}
	return nil
}

// Get returns the persisted deadline and whether one exists.
func (s *Store) Get(key Key) (int64, bool, error) {
	var endTs int64
	err := s.db.QueryRow(`
		SELECT end_ts FROM step_deadlines WHERE day = ? AND step_index = ?
	`, key.Day, key.StepIndex).Scan(&endTs)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read deadline: %w", err)
	}
	return endTs, true, nil
}

// Delete removes the deadline for a key; deleting a missing key is a
// no-op.
func (s *Store) Delete(key Key) error {
	_, err := s.db.Exec(`
		DELETE FROM step_deadlines WHERE day = ? AND step_index = ?
	`, key.Day, key.StepIndex)
	if err != nil {
		return fmt.Errorf("failed to delete deadline: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
