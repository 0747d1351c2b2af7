package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type stateRepo struct {
	s *Store
}

func (r *stateRepo) Load(ctx context.Context, studentID string) (*StudentState, error) {
	var (
		version int64
		raw     string
		updated string
	)
	err := r.s.db.QueryRowContext(ctx,
		r.s.rebind(`SELECT version, data, updated_at FROM student_state WHERE student_id = ?`),
		studentID,
	).Scan(&version, &raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %q: %w", studentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load student state: %w", err)
	}

	st := &StudentState{StudentID: studentID, Version: version}
	if err := json.Unmarshal([]byte(raw), &st.Data); err != nil {
		return nil, fmt.Errorf("unmarshal student state: %w", err)
	}
	st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return st, nil
}

func (r *stateRepo) Save(ctx context.Context, studentID string, version int64, data SnapshotData) (int64, error) {
	data.Version = SnapshotVersion
	data.StudentID = studentID
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("marshal student state: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin state tx: %w", err)
	}
	defer tx.Rollback()

	if version == 0 {
		if _, err := tx.ExecContext(ctx,
			r.s.rebind(`INSERT INTO students (id, created_at) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`),
			studentID, now,
		); err != nil {
			return 0, fmt.Errorf("insert student: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			r.s.rebind(`INSERT INTO student_state (student_id, version, data, updated_at) VALUES (?, 1, ?, ?) ON CONFLICT (student_id) DO NOTHING`),
			studentID, string(raw), now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert student state: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return 0, fmt.Errorf("student %q: %w", studentID, ErrConflict)
		}
	} else {
		res, err := tx.ExecContext(ctx,
			r.s.rebind(`UPDATE student_state SET version = version + 1, data = ?, updated_at = ? WHERE student_id = ? AND version = ?`),
			string(raw), now, studentID, version,
		)
		if err != nil {
			return 0, fmt.Errorf("update student state: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return 0, fmt.Errorf("student %q at version %d: %w", studentID, version, ErrConflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit student state: %w", err)
	}
	return version + 1, nil
}

func (r *stateRepo) Students(ctx context.Context) ([]string, error) {
	rows, err := r.s.db.QueryContext(ctx, `SELECT id FROM students ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
