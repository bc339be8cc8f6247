package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

// Threads

func (s *Store) CreateThread(ctx context.Context, th model.Thread) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO threads (id, tenant_id, title, summary, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, th.ID, th.TenantID, th.Title, th.Summary, th.Status, th.CreatedAt, th.UpdatedAt)
	if IsUniqueViolation(err) {
		return fmt.Errorf("thread %s: %w", th.ID, model.ErrConflict)
	}
	return err
}

func (s *Store) GetThread(ctx context.Context, tenantID, threadID string) (model.Thread, error) {
	var th model.Thread
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, title, summary, status, created_at, updated_at
		FROM threads
		WHERE id = $1 AND tenant_id = $2
	`, threadID, tenantID).Scan(&th.ID, &th.TenantID, &th.Title, &th.Summary, &th.Status, &th.CreatedAt, &th.UpdatedAt)
	if err != nil {
		return model.Thread{}, notFound(err, "thread", threadID)
	}
	return th, nil
}

func (s *Store) UpdateThread(ctx context.Context, th model.Thread) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE threads SET title = $3, summary = $4, status = $5, updated_at = $6
		WHERE id = $1 AND tenant_id = $2
	`, th.ID, th.TenantID, th.Title, th.Summary, th.Status, th.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thread %s: %w", th.ID, model.ErrNotFound)
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, tenantID string, m model.Message) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, thread_id, role, content, created_at)
		SELECT $1, t.id, $3, $4, $5
		FROM threads t
		WHERE t.id = $2 AND t.tenant_id = $6
	`, m.ID, m.ThreadID, m.Role, m.Content, m.CreatedAt, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thread %s: %w", m.ThreadID, model.ErrNotFound)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, tenantID, threadID string) ([]model.Message, error) {
	if _, err := s.GetThread(ctx, tenantID, threadID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, thread_id, role, content, created_at
		FROM messages
		WHERE thread_id = $1
		ORDER BY created_at ASC
	`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Runs

const runColumns = `id, tenant_id, thread_id, kind, state, input, result, cancel_requested, last_error, trace, created_at, updated_at`

func scanRun(row scanner) (model.Run, error) {
	var r model.Run
	var input, result, trace []byte
	if err := row.Scan(&r.ID, &r.TenantID, &r.ThreadID, &r.Kind, &r.State, &input, &result,
		&r.CancelRequested, &r.LastError, &trace, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return model.Run{}, err
	}
	if err := json.Unmarshal(input, &r.Input); err != nil {
		return model.Run{}, fmt.Errorf("decode run input: %w", err)
	}
	if len(result) > 0 {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(result, r.Result); err != nil {
			return model.Run{}, fmt.Errorf("decode run result: %w", err)
		}
	}
	if len(trace) > 0 {
		if err := json.Unmarshal(trace, &r.Trace); err != nil {
			return model.Run{}, fmt.Errorf("decode run trace: %w", err)
		}
	}
	return r, nil
}

func encodeRun(r model.Run) (input, result, trace []byte, err error) {
	if input, err = json.Marshal(r.Input); err != nil {
		return nil, nil, nil, err
	}
	if r.Result != nil {
		if result, err = json.Marshal(r.Result); err != nil {
			return nil, nil, nil, err
		}
	}
	if len(r.Trace) > 0 {
		if trace, err = json.Marshal(r.Trace); err != nil {
			return nil, nil, nil, err
		}
	}
	return input, result, trace, nil
}

func (s *Store) CreateRun(ctx context.Context, r model.Run) error {
	input, result, trace, err := encodeRun(r)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.ID, r.TenantID, r.ThreadID, r.Kind, r.State, input, result, r.CancelRequested, r.LastError, trace, r.CreatedAt, r.UpdatedAt)
	if IsUniqueViolation(err) {
		return fmt.Errorf("run %s: %w", r.ID, model.ErrConflict)
	}
	return err
}

func (s *Store) GetRun(ctx context.Context, runID string) (model.Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, runID))
	if err != nil {
		return model.Run{}, notFound(err, "run", runID)
	}
	return r, nil
}

// UpdateRun never clears a cancel request recorded by RequestRunCancel.
func (s *Store) UpdateRun(ctx context.Context, r model.Run) error {
	_, result, _, err := encodeRun(r)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_runs
		SET state = $2,
			result = $3,
			cancel_requested = cancel_requested OR $4,
			last_error = $5,
			updated_at = $6
		WHERE id = $1
	`, r.ID, r.State, result, r.CancelRequested, r.LastError, r.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", r.ID, model.ErrNotFound)
	}
	return nil
}

func (s *Store) RequestRunCancel(ctx context.Context, tenantID, runID string) (model.Run, error) {
	var out model.Run
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		r, err := scanRun(tx.QueryRow(ctx, `
			SELECT `+runColumns+` FROM workflow_runs
			WHERE id = $1 AND tenant_id = $2
			FOR UPDATE
		`, runID, tenantID))
		if err != nil {
			return notFound(err, "run", runID)
		}
		if r.State.Terminal() {
			out = r
			return fmt.Errorf("run %s is %s: %w", runID, r.State, model.ErrInvalidState)
		}
		if _, err := tx.Exec(ctx, `UPDATE workflow_runs SET cancel_requested = true WHERE id = $1`, runID); err != nil {
			return err
		}
		r.CancelRequested = true
		out = r
		return nil
	})
	return out, err
}

func (s *Store) ListStaleRuns(ctx context.Context, before time.Time, limit int) ([]model.Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM workflow_runs
		WHERE state NOT IN ('completed', 'failed', 'canceled') AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Steps

func (s *Store) SaveStep(ctx context.Context, rec model.StepRecord) error {
	var result []byte
	if rec.Result != nil {
		var err error
		if result, err = json.Marshal(rec.Result); err != nil {
			return err
		}
	}
	var output []byte
	if len(rec.Output) > 0 {
		output = rec.Output
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_steps (run_id, name, output, result, attempts, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, name) DO UPDATE
		SET output = EXCLUDED.output,
			result = EXCLUDED.result,
			attempts = EXCLUDED.attempts,
			completed_at = EXCLUDED.completed_at
	`, rec.RunID, rec.Name, output, result, rec.Attempts, rec.CompletedAt)
	return err
}

func (s *Store) ListSteps(ctx context.Context, runID string) ([]model.StepRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, name, output, result, attempts, completed_at
		FROM workflow_steps
		WHERE run_id = $1
		ORDER BY completed_at ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StepRecord
	for rows.Next() {
		var rec model.StepRecord
		var output, result []byte
		if err := rows.Scan(&rec.RunID, &rec.Name, &output, &result, &rec.Attempts, &rec.CompletedAt); err != nil {
			return nil, err
		}
		if len(output) > 0 {
			rec.Output = json.RawMessage(output)
		}
		if len(result) > 0 {
			rec.Result = &model.RunResult{}
			if err := json.Unmarshal(result, rec.Result); err != nil {
				return nil, fmt.Errorf("decode step result: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSteps(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM workflow_steps WHERE run_id = $1`, runID)
	return err
}
