package store

import (
	"context"
	"database/sql"
	"fmt"
)

// MessageRow is one persisted, already-decrypted message, matching
// the Stored Message shape from spec.md §3. Uniqueness is enforced on
// (Source, Hash) so a redelivered retrieve page never double-inserts.
type MessageRow struct {
	ID               int64
	Source           string
	Hash             string
	Namespace        int16
	Sender           string
	Receiver         string
	Created          int64
	Expiration       int64
	QuotingTimestamp *int64
	JobState         string
	Payload          []byte
}

// InsertMessageIdempotent persists one message inside its own
// transaction. It does not touch the retrieve cursor, which is saved
// separately through SaveRetrieveState. A duplicate (source, hash) is
// silently ignored and
// inserted=false is returned, matching spec.md §4.4's "persist the
// message row idempotently" requirement.
func (s *Store) InsertMessageIdempotent(ctx context.Context, m MessageRow) (id int64, inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("store: begin insert message: %w", err)
	}
	defer tx.Rollback()

	if m.JobState == "" {
		m.JobState = "none"
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages(source, hash, namespace, sender, receiver, created, expiration, quoting_timestamp, job_state, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Source, m.Hash, m.Namespace, m.Sender, m.Receiver, m.Created, m.Expiration, m.QuotingTimestamp, m.JobState, m.Payload)
	if err != nil {
		return 0, false, fmt.Errorf("store: insert message: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if rowsAffected == 0 {
		if err := tx.Commit(); err != nil {
			return 0, false, fmt.Errorf("store: commit no-op insert message: %w", err)
		}
		return 0, false, nil
	}

	newID, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("store: commit insert message: %w", err)
	}
	s.notify("messages")
	return newID, true, nil
}

// InsertMessagesBatch persists an entire batch inside a single
// transaction, matching spec.md §4.5's "save within a single
// transaction per batch": either every still-novel row in the batch
// commits together, or none do. Rows whose (source, hash) already
// exist are silently skipped, same as InsertMessageIdempotent.
func (s *Store) InsertMessagesBatch(ctx context.Context, rows []MessageRow) (inserted int, err error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin insert messages batch: %w", err)
	}
	defer tx.Rollback()

	for _, m := range rows {
		if m.JobState == "" {
			m.JobState = "none"
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO messages(source, hash, namespace, sender, receiver, created, expiration, quoting_timestamp, job_state, payload)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.Source, m.Hash, m.Namespace, m.Sender, m.Receiver, m.Created, m.Expiration, m.QuotingTimestamp, m.JobState, m.Payload)
		if err != nil {
			return 0, fmt.Errorf("store: insert message batch row: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit insert messages batch: %w", err)
	}
	if inserted > 0 {
		s.notify("messages")
	}
	return inserted, nil
}

// MessagesSince returns messages in namespace with created >= since,
// in ascending created order — the order namespace workers must
// deliver them in (spec.md §4.7).
func (s *Store) MessagesSince(ctx context.Context, namespace int16, since int64) ([]MessageRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, hash, namespace, sender, receiver, created, expiration, quoting_timestamp, job_state, payload FROM messages
		 WHERE namespace = ? AND created >= ? ORDER BY created ASC`, namespace, since)
	if err != nil {
		return nil, fmt.Errorf("store: messages since: %w", err)
	}
	defer rows.Close()

	var out []MessageRow
	for rows.Next() {
		var m MessageRow
		if err := rows.Scan(&m.ID, &m.Source, &m.Hash, &m.Namespace, &m.Sender, &m.Receiver, &m.Created, &m.Expiration, &m.QuotingTimestamp, &m.JobState, &m.Payload); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RetrieveState is the per-namespace poll cursor: the last hash seen
// (sent back as last_hash on the next retrieve call) and the highest
// created timestamp observed so far.
type RetrieveState struct {
	LastHash    string
	LastCreated int64
}

// LoadRetrieveState returns the persisted cursor for namespaceKey, or
// the zero value if this namespace has never been polled.
func (s *Store) LoadRetrieveState(ctx context.Context, namespaceKey string) (RetrieveState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT last_hash, last_created FROM message_retrieve_state WHERE namespace = ?`, namespaceKey)
	var st RetrieveState
	if err := row.Scan(&st.LastHash, &st.LastCreated); err != nil {
		if err == sql.ErrNoRows {
			return RetrieveState{}, nil
		}
		return RetrieveState{}, fmt.Errorf("store: load retrieve state %s: %w", namespaceKey, err)
	}
	return st, nil
}

// SaveRetrieveState persists the cursor to advance to. It is
// independent of message inserts: the namespace worker saves it once
// a batch has been handed to its consumer, whether or not the consumer
// has committed those messages yet.
func (s *Store) SaveRetrieveState(ctx context.Context, namespaceKey string, st RetrieveState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_retrieve_state(namespace, last_hash, last_created) VALUES (?, ?, ?)
		 ON CONFLICT(namespace) DO UPDATE SET last_hash = excluded.last_hash, last_created = excluded.last_created`,
		namespaceKey, st.LastHash, st.LastCreated)
	if err != nil {
		return fmt.Errorf("store: save retrieve state %s: %w", namespaceKey, err)
	}
	return nil
}
