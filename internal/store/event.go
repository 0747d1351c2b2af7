package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type eventRepo struct {
	s *Store
}

func (r *eventRepo) append(ctx context.Context, studentID, kind, atomID string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}
	seqNum, err := r.s.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("save %s event: %w", kind, err)
	}
	_, err = r.s.db.ExecContext(ctx,
		r.s.rebind(`INSERT INTO events (sequence, student_id, kind, atom_id, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		seqNum, studentID, kind, atomID, string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save %s event: %w", kind, err)
	}
	return nil
}

func (r *eventRepo) AppendAnswerEvent(ctx context.Context, data AnswerEventData) error {
	return r.append(ctx, data.StudentID, KindAnswer, data.AtomID, data)
}

func (r *eventRepo) AppendMasteryEvent(ctx context.Context, data MasteryEventData) error {
	return r.append(ctx, data.StudentID, KindMastery, data.AtomID, data)
}

func (r *eventRepo) AppendDiagnosisEvent(ctx context.Context, data DiagnosisEventData) error {
	return r.append(ctx, data.StudentID, KindDiagnosis, data.AtomID, data)
}

func (r *eventRepo) AppendReviewEvent(ctx context.Context, data ReviewEventData) error {
	return r.append(ctx, data.StudentID, KindReview, data.AtomID, data)
}

func (r *eventRepo) AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error {
	return r.append(ctx, "", KindLLMRequest, "", data)
}

func (r *eventRepo) List(ctx context.Context, studentID string, opts QueryOpts) ([]Event, error) {
	var (
		where = []string{"student_id = ?"}
		args  = []any{studentID}
	)
	if opts.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, opts.Kind)
	}
	if opts.After > 0 {
		where = append(where, "sequence > ?")
		args = append(args, opts.After)
	}
	q := `SELECT sequence, student_id, kind, atom_id, payload, created_at FROM events WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY sequence`
	if opts.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev      Event
			payload string
			created string
		)
		if err := rows.Scan(&ev.Sequence, &ev.StudentID, &ev.Kind, &ev.AtomID, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Payload = json.RawMessage(payload)
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, ev)
	}
	return out, rows.Err()
}
