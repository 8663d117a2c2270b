package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tonstation_bot/internal/model"
)

// SavePass stores the summary and all of its account runs in one transaction.
// Saving the same pass twice replaces the earlier rows.
func (s *Store) SavePass(ctx context.Context, pass model.PassSummary) error {
	if pass.ID == "" {
		return errors.New("pass id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO passes (id, started_at, finished_at, accounts, succeeded, failed, farms_started, farms_claimed, quests_claimed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			accounts = excluded.accounts,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			farms_started = excluded.farms_started,
			farms_claimed = excluded.farms_claimed,
			quests_claimed = excluded.quests_claimed
	`, pass.ID, pass.StartedAt.UnixMilli(), pass.FinishedAt.UnixMilli(), pass.Accounts, pass.Succeeded, pass.Failed,
		pass.FarmsStarted, pass.FarmsClaimed, pass.QuestsClaimed)
	if err != nil {
		return fmt.Errorf("save pass: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM account_runs WHERE pass_id = ?`, pass.ID); err != nil {
		return fmt.Errorf("save pass: %w", err)
	}
	for _, run := range pass.Runs {
		if run.ID == "" {
			run.ID = uuid.NewString()
		}
		farmJSON, err := json.Marshal(run.Farm)
		if err != nil {
			return err
		}
		questsJSON, err := json.Marshal(run.Quests)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO account_runs (id, pass_id, idx, account_id, first_name, status, farm_json, quests_json, error, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, pass.ID, run.Index, run.AccountID, run.FirstName, string(run.Status), string(farmJSON), string(questsJSON),
			run.Error, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("save account run: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if s.keep > 0 {
		if _, err := s.PrunePasses(ctx, s.keep); err != nil {
			return err
		}
	}
	return nil
}

// ListPasses returns the most recent passes first, without their runs.
func (s *Store) ListPasses(ctx context.Context, limit int) ([]model.PassSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, accounts, succeeded, failed, farms_started, farms_claimed, quests_claimed
		FROM passes
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.PassSummary, 0)
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPass returns one pass with its runs. ok is false when the id is unknown.
func (s *Store) GetPass(ctx context.Context, id string) (model.PassSummary, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, accounts, succeeded, failed, farms_started, farms_claimed, quests_claimed
		FROM passes WHERE id = ?
	`, id)
	p, err := scanPass(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PassSummary{}, false, nil
		}
		return model.PassSummary{}, false, err
	}
	runs, err := s.ListAccountRuns(ctx, id)
	if err != nil {
		return model.PassSummary{}, false, err
	}
	p.Runs = runs
	return p, true, nil
}

func (s *Store) ListAccountRuns(ctx context.Context, passID string) ([]model.AccountRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pass_id, idx, account_id, first_name, status, farm_json, quests_json, error, started_at, finished_at
		FROM account_runs
		WHERE pass_id = ?
		ORDER BY idx ASC
	`, passID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.AccountRun, 0)
	for rows.Next() {
		var row struct {
			id         string
			passID     string
			idx        int
			accountID  string
			firstName  string
			status     string
			farmJSON   string
			questsJSON string
			errText    string
			startedAt  int64
			finishedAt int64
		}
		if err := rows.Scan(&row.id, &row.passID, &row.idx, &row.accountID, &row.firstName, &row.status,
			&row.farmJSON, &row.questsJSON, &row.errText, &row.startedAt, &row.finishedAt); err != nil {
			return nil, err
		}
		run := model.AccountRun{
			ID:         row.id,
			PassID:     row.passID,
			Index:      row.idx,
			AccountID:  row.accountID,
			FirstName:  row.firstName,
			Status:     model.AccountStatus(row.status),
			Error:      row.errText,
			StartedAt:  time.UnixMilli(row.startedAt),
			FinishedAt: time.UnixMilli(row.finishedAt),
		}
		if err := json.Unmarshal([]byte(row.farmJSON), &run.Farm); err != nil {
			return nil, fmt.Errorf("account run %s farm_json: %w", row.id, err)
		}
		if err := json.Unmarshal([]byte(row.questsJSON), &run.Quests); err != nil {
			return nil, fmt.Errorf("account run %s quests_json: %w", row.id, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// PrunePasses keeps the newest keep passes and deletes the rest together
// with their account runs. It returns the number of deleted passes.
func (s *Store) PrunePasses(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM passes WHERE id NOT IN (
			SELECT id FROM passes ORDER BY started_at DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune passes: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPass(r rowScanner) (model.PassSummary, error) {
	var (
		p          model.PassSummary
		startedAt  int64
		finishedAt int64
	)
	if err := r.Scan(&p.ID, &startedAt, &finishedAt, &p.Accounts, &p.Succeeded, &p.Failed,
		&p.FarmsStarted, &p.FarmsClaimed, &p.QuestsClaimed); err != nil {
		return model.PassSummary{}, err
	}
	p.StartedAt = time.UnixMilli(startedAt)
	p.FinishedAt = time.UnixMilli(finishedAt)
	return p, nil
}
