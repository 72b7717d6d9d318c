package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kodaktechie/recoveryd/internal/model"
	"github.com/kodaktechie/recoveryd/internal/store"
)

// progressColumns is the column list used for SELECT statements on the
// recovery_progress table.
const progressColumns = `identity_id, destination_wallet,
	step1_fee, step2_fee, step3_fee,
	step1_completed, step2_completed, step3_completed,
	remit_wallet, remit_network, created_at, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryGetProgress(ctx context.Context, db executor, identityID string) (*model.Progress, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM recovery_progress WHERE identity_id = $1`, identityID)
	return scanProgress(row)
}

// queryCreateProgressIfAbsent inserts a fresh record unless one exists.
// ON CONFLICT DO NOTHING makes concurrent creators converge: the follow-up
// SELECT observes whichever insert won.
func queryCreateProgressIfAbsent(ctx context.Context, db executor, identityID string, defaults store.Defaults) (*model.Progress, error) {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO recovery_progress (
			identity_id, destination_wallet,
			step1_completed, step2_completed, step3_completed,
			remit_wallet, remit_network, created_at, updated_at
		) VALUES ($1, '', false, false, false, $2, $3, $4, $4)
		ON CONFLICT (identity_id) DO NOTHING`,
		identityID, defaults.RemitWallet, defaults.RemitNetwork, now,
	)
	if err != nil {
		return nil, err
	}
	return queryGetProgress(ctx, db, identityID)
}

// queryUpdateProgress applies a partial patch. Completion flags are ORed
// with their stored value so no statement can ever lower one, regardless
// of what the caller sends.
func queryUpdateProgress(ctx context.Context, db executor, identityID string, patch model.ProgressPatch) (*model.Progress, error) {
	var (
		sets   []string
		args   []any
		argIdx int
	)

	nextArg := func(v any) string {
		argIdx++
		args = append(args, v)
		return fmt.Sprintf("$%d", argIdx)
	}

	if patch.DestinationWallet != nil {
		sets = append(sets, "destination_wallet = "+nextArg(*patch.DestinationWallet))
	}
	if patch.Step1Completed != nil {
		sets = append(sets, "step1_completed = step1_completed OR "+nextArg(*patch.Step1Completed))
	}
	if patch.Step2Completed != nil {
		sets = append(sets, "step2_completed = step2_completed OR "+nextArg(*patch.Step2Completed))
	}
	if patch.Step3Completed != nil {
		sets = append(sets, "step3_completed = step3_completed OR "+nextArg(*patch.Step3Completed))
	}
	if patch.Step1Fee != nil {
		sets = append(sets, "step1_fee = "+nextArg(*patch.Step1Fee))
	}
	if patch.Step2Fee != nil {
		sets = append(sets, "step2_fee = "+nextArg(*patch.Step2Fee))
	}
	if patch.Step3Fee != nil {
		sets = append(sets, "step3_fee = "+nextArg(*patch.Step3Fee))
	}
	if patch.RemitWallet != nil {
		sets = append(sets, "remit_wallet = "+nextArg(*patch.RemitWallet))
	}
	if patch.RemitNetwork != nil {
		sets = append(sets, "remit_network = "+nextArg(*patch.RemitNetwork))
	}

	if len(sets) == 0 {
		return queryGetProgress(ctx, db, identityID)
	}

	sets = append(sets, "updated_at = "+nextArg(time.Now().UTC()))
	idArg := nextArg(identityID)

	row := db.QueryRowContext(ctx, `
		UPDATE recovery_progress
		SET `+strings.Join(sets, ", ")+`
		WHERE identity_id = `+idArg+`
		RETURNING `+progressColumns,
		args...,
	)
	return scanProgress(row)
}

// queryEnsureFeeAssigned assigns the default fee when the step's fee is
// NULL, in a single statement so concurrent callers converge on one value.
func queryEnsureFeeAssigned(ctx context.Context, db executor, identityID string, step int, defaultFee int64) (*model.Progress, error) {
	col, err := feeColumn(step)
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `
		UPDATE recovery_progress
		SET `+col+` = COALESCE(`+col+`, $2),
		    updated_at = CASE WHEN `+col+` IS NULL THEN $3 ELSE updated_at END
		WHERE identity_id = $1
		RETURNING `+progressColumns,
		identityID, defaultFee, time.Now().UTC(),
	)
	return scanProgress(row)
}

func queryListProgress(ctx context.Context, db executor) ([]*model.Progress, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+progressColumns+` FROM recovery_progress ORDER BY identity_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// feeColumn maps a step number onto its fee column. The column name is
// assembled into SQL, so it must come from this fixed table, never input.
func feeColumn(step int) (string, error) {
	switch step {
	case 1:
		return "step1_fee", nil
	case 2:
		return "step2_fee", nil
	case 3:
		return "step3_fee", nil
	}
	return "", fmt.Errorf("no such step: %d", step)
}
