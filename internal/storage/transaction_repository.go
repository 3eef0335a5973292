package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/trust-scanner/internal/models"
)

// TransactionRepository handles transaction data persistence
type TransactionRepository struct {
	db *PostgresDB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *PostgresDB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Insert inserts a transaction idempotently on (tx_hash, chain).
// Returns true when a new row was written, false when the key already
// existed (re-scan of a processed range, or a later transfer in the same
// receipt).
func (r *TransactionRepository) Insert(ctx context.Context, tx *models.Transaction) (bool, error) {
	query := `
		INSERT INTO transactions (
			tx_hash, chain, block_number, authorizer, payer, recipient,
			amount_raw, amount_usdc, facilitator, is_x402, block_timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tx_hash, chain) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query,
		strings.ToLower(tx.TxHash),
		tx.Chain,
		tx.BlockNumber,
		lowerPtr(tx.Authorizer),
		lowerPtr(tx.Payer),
		lowerPtr(tx.Recipient),
		tx.AmountRaw,
		tx.AmountUSDC,
		lowerPtr(tx.Facilitator),
		tx.IsX402,
		tx.BlockTimestamp,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction %s: %w", tx.TxHash, err)
	}
	return result.RowsAffected() > 0, nil
}

// ParticipantSlot returns which side of the transaction the address was
// on: 0 for payer, 1 for recipient. The second return is false when no
// such transaction exists or the address took no part in it. Used to
// validate API-submitted feedback and give each participant its own
// feedback slot.
func (r *TransactionRepository) ParticipantSlot(ctx context.Context, txHash, address string) (int, bool, error) {
	if err := ValidateAddress(address); err != nil {
		return 0, false, err
	}
	address = strings.ToLower(address)

	var slot int
	query := `
		SELECT CASE WHEN payer = $2 THEN 0 ELSE 1 END
		FROM transactions
		WHERE tx_hash = $1 AND (payer = $2 OR recipient = $2)
		LIMIT 1
	`
	err := r.db.Pool().QueryRow(ctx, query, strings.ToLower(txHash), address).Scan(&slot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to check transaction participation: %w", err)
	}
	return slot, true, nil
}

// Count returns the total number of transactions.
func (r *TransactionRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// VolumeStat aggregates transferred volume for one address.
type VolumeStat struct {
	TotalUSDC      decimal.Decimal
	Counterparties int
}

// RoleStat records which payment sides an address has appeared on.
type RoleStat struct {
	Payer     bool
	Recipient bool
}

// directionPairs flattens transactions into (address, counterparty, amount)
// rows covering both directions. Counterparty may be NULL when the other
// side of the payment was not observed.
const directionPairs = `
	SELECT payer AS address, recipient AS counterparty, amount_usdc
	FROM transactions WHERE payer IS NOT NULL
	UNION ALL
	SELECT recipient AS address, payer AS counterparty, amount_usdc
	FROM transactions WHERE recipient IS NOT NULL
`

// CounterpartyStats returns, for every address, the number of distinct
// counterparties across all transactions in either direction. One
// set-oriented query, no per-wallet lookups.
func (r *TransactionRepository) CounterpartyStats(ctx context.Context) (map[string]int, error) {
	query := `
		WITH pairs AS (` + directionPairs + `)
		SELECT address, COUNT(DISTINCT counterparty)
		FROM pairs
		WHERE counterparty IS NOT NULL
		GROUP BY address
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query counterparty stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var address string
		var count int
		if err := rows.Scan(&address, &count); err != nil {
			return nil, fmt.Errorf("failed to scan counterparty stat: %w", err)
		}
		stats[address] = count
	}
	return stats, rows.Err()
}

// VolumeStats returns, for every address, the summed USDC volume in either
// direction and the number of distinct counterparties contributing to it.
func (r *TransactionRepository) VolumeStats(ctx context.Context) (map[string]VolumeStat, error) {
	query := `
		WITH pairs AS (` + directionPairs + `)
		SELECT address, SUM(amount_usdc), COUNT(DISTINCT counterparty)
		FROM pairs
		GROUP BY address
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query volume stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]VolumeStat)
	for rows.Next() {
		var address string
		var stat VolumeStat
		if err := rows.Scan(&address, &stat.TotalUSDC, &stat.Counterparties); err != nil {
			return nil, fmt.Errorf("failed to scan volume stat: %w", err)
		}
		stats[address] = stat
	}
	return stats, rows.Err()
}

// RoleStats returns, for every address, whether it ever appeared as payer,
// recipient, or both.
func (r *TransactionRepository) RoleStats(ctx context.Context) (map[string]RoleStat, error) {
	query := `
		SELECT address, BOOL_OR(is_payer), BOOL_OR(is_recipient)
		FROM (
			SELECT payer AS address, TRUE AS is_payer, FALSE AS is_recipient
			FROM transactions WHERE payer IS NOT NULL
			UNION ALL
			SELECT recipient, FALSE, TRUE
			FROM transactions WHERE recipient IS NOT NULL
		) sides
		GROUP BY address
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query role stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]RoleStat)
	for rows.Next() {
		var address string
		var stat RoleStat
		if err := rows.Scan(&address, &stat.Payer, &stat.Recipient); err != nil {
			return nil, fmt.Errorf("failed to scan role stat: %w", err)
		}
		stats[address] = stat
	}
	return stats, rows.Err()
}

func lowerPtr(s *string) *string {
	if s == nil {
		return nil
	}
	lowered := strings.ToLower(*s)
	return &lowered
}
