package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type snapshotRepo struct {
	s *Store
}

func (r *snapshotRepo) Save(ctx context.Context, snap *Snapshot) error {
	seqNum, err := r.s.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	raw, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}

	_, err = r.s.db.ExecContext(ctx,
		r.s.rebind(`INSERT INTO snapshots (sequence, student_id, data, created_at) VALUES (?, ?, ?, ?)`),
		seqNum, snap.StudentID, string(raw), snap.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	snap.Sequence = seqNum
	return nil
}

func (r *snapshotRepo) Latest(ctx context.Context, studentID string) (*Snapshot, error) {
	var (
		seq     int64
		raw     string
		created string
	)
	err := r.s.db.QueryRowContext(ctx,
		r.s.rebind(`SELECT sequence, data, created_at FROM snapshots WHERE student_id = ? ORDER BY sequence DESC LIMIT 1`),
		studentID,
	).Scan(&seq, &raw, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}

	snap := &Snapshot{Sequence: seq, StudentID: studentID}
	if err := json.Unmarshal([]byte(raw), &snap.Data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	snap.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
	return snap, nil
}

func (r *snapshotRepo) Prune(ctx context.Context, studentID string, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := r.s.db.ExecContext(ctx,
		r.s.rebind(`DELETE FROM snapshots WHERE student_id = ? AND sequence NOT IN (
			SELECT sequence FROM snapshots WHERE student_id = ? ORDER BY sequence DESC LIMIT ?
		)`),
		studentID, studentID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
