package postgres

import (
	"database/sql"

	"github.com/kodaktechie/recoveryd/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanProgress scans a single row into a model.Progress. The row must
// contain columns in the order defined by progressColumns.
func scanProgress(row scannable) (*model.Progress, error) {
	var p model.Progress
	var (
		wallet       sql.NullString
		step1Fee     sql.NullInt64
		step2Fee     sql.NullInt64
		step3Fee     sql.NullInt64
		remitWallet  sql.NullString
		remitNetwork sql.NullString
	)

	err := row.Scan(
		&p.IdentityID,
		&wallet,
		&step1Fee,
		&step2Fee,
		&step3Fee,
		&p.Step1Completed,
		&p.Step2Completed,
		&p.Step3Completed,
		&remitWallet,
		&remitNetwork,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.DestinationWallet = wallet.String
	p.Step1Fee = nullableInt64(step1Fee)
	p.Step2Fee = nullableInt64(step2Fee)
	p.Step3Fee = nullableInt64(step3Fee)
	p.RemitWallet = remitWallet.String
	p.RemitNetwork = remitNetwork.String

	return &p, nil
}

func nullableInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
