package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = `id, job_id, scope_kind, scope_id, scope_name, amount, time_frame_seconds, status, clips,
	downloaded_bytes, output, error, started_at, finished_at`

// RecordRun writes a run and its dropped clips to the ledger, replacing any
// earlier record with the same id.
func (s *SQLiteStore) RecordRun(ctx context.Context, run RunRecord) (err error) {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM dropped_clips WHERE run_id = ?`, run.ID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(
		ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			job_id=excluded.job_id,
			status=excluded.status,
			clips=excluded.clips,
			downloaded_bytes=excluded.downloaded_bytes,
			output=excluded.output,
			error=excluded.error,
			finished_at=excluded.finished_at`,
		run.ID,
		run.JobID,
		run.ScopeKind,
		run.ScopeID,
		run.ScopeName,
		run.Amount,
		int64(run.TimeFrame/time.Second),
		string(run.Status),
		run.Clips,
		run.DownloadedBytes,
		run.Output,
		run.Error,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
	); err != nil {
		return err
	}
	for _, d := range run.Dropped {
		if _, err = tx.ExecContext(
			ctx,
			`INSERT INTO dropped_clips (run_id, clip_index, step, reason) VALUES (?, ?, ?, ?)`,
			run.ID, d.Index, d.Step, d.Reason,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	ret := make([]RunRecord, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		ret = append(ret, run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range ret {
		if ret[i].Dropped, err = s.loadDropped(ctx, ret[i].ID); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (RunRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, false, nil
		}
		return RunRecord{}, false, err
	}
	if run.Dropped, err = s.loadDropped(ctx, id); err != nil {
		return RunRecord{}, false, err
	}
	return run, true, nil
}

// DeleteRunsBefore removes runs started before t together with their
// dropped clips.
func (s *SQLiteStore) DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error) {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM dropped_clips WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`, t.UTC()); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, t.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) loadDropped(ctx context.Context, runID string) ([]DroppedClip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT clip_index, step, reason FROM dropped_clips WHERE run_id = ? ORDER BY clip_index ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ret []DroppedClip
	for rows.Next() {
		var d DroppedClip
		if err := rows.Scan(&d.Index, &d.Step, &d.Reason); err != nil {
			return nil, err
		}
		ret = append(ret, d)
	}
	return ret, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		run       RunRecord
		status    string
		timeFrame int64
	)
	err := row.Scan(
		&run.ID,
		&run.JobID,
		&run.ScopeKind,
		&run.ScopeID,
		&run.ScopeName,
		&run.Amount,
		&timeFrame,
		&status,
		&run.Clips,
		&run.DownloadedBytes,
		&run.Output,
		&run.Error,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return RunRecord{}, err
	}
	run.Status = RunStatus(status)
	run.TimeFrame = time.Duration(timeFrame) * time.Second
	return run, nil
}
