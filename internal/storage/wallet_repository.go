package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/trust-scanner/internal/models"
	"github.com/trust-scanner/internal/types"
)

// Ethereum address regex pattern (0x followed by 40 hexadecimal characters)
var ethereumAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidateAddress validates an Ethereum address format
func ValidateAddress(address string) error {
	if !ethereumAddressRegex.MatchString(address) {
		return &types.ServiceError{
			Code:    "INVALID_ADDRESS_FORMAT",
			Message: fmt.Sprintf("invalid address format: %s (must be 0x followed by 40 hexadecimal characters)", address),
			Details: map[string]any{
				"address": address,
				"format":  "0x[a-fA-F0-9]{40}",
			},
		}
	}
	return nil
}

// WalletRepository handles wallet data persistence
type WalletRepository struct {
	db *PostgresDB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *PostgresDB) *WalletRepository {
	return &WalletRepository{db: db}
}

// WalletObservation is one sighting of a wallet by a scanner.
type WalletObservation struct {
	Address   string
	Chain     types.ChainID
	Source    types.WalletSource
	ERC8004ID *int64
	SeenAt    time.Time
	TxDelta   int
}

// Observe inserts or updates a wallet for one scanner sighting. The upsert
// implements the promotion rule: an existing wallet seen under the other
// event family flips to source=both, never back. first_seen_at never
// decreases, last_seen_at never regresses, and the earliest erc8004_id is
// preserved. Every observation marks the wallet dirty for rescoring.
func (r *WalletRepository) Observe(ctx context.Context, obs *WalletObservation) error {
	if err := ValidateAddress(obs.Address); err != nil {
		return err
	}
	address := strings.ToLower(obs.Address)

	query := `
		INSERT INTO wallets (
			address, source, chain, erc8004_id, tx_count,
			first_seen_at, last_seen_at, needs_rescore
		)
		VALUES ($1, $2, $3, $4, $5, $6, $6, TRUE)
		ON CONFLICT (address)
		DO UPDATE SET
			source = CASE
				WHEN wallets.source = EXCLUDED.source OR wallets.source = 'both' THEN wallets.source
				ELSE 'both'
			END,
			erc8004_id = COALESCE(wallets.erc8004_id, EXCLUDED.erc8004_id),
			tx_count = wallets.tx_count + EXCLUDED.tx_count,
			first_seen_at = LEAST(wallets.first_seen_at, EXCLUDED.first_seen_at),
			last_seen_at = GREATEST(wallets.last_seen_at, EXCLUDED.last_seen_at),
			needs_rescore = TRUE
	`

	_, err := r.db.Pool().Exec(ctx, query,
		address,
		obs.Source,
		obs.Chain,
		obs.ERC8004ID,
		obs.TxDelta,
		obs.SeenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to observe wallet %s: %w", address, err)
	}
	return nil
}

// Get retrieves a wallet by address. Returns nil without error when the
// wallet does not exist.
func (r *WalletRepository) Get(ctx context.Context, address string) (*models.Wallet, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	address = strings.ToLower(address)

	query := `
		SELECT address, source, chain, erc8004_id, tx_count,
			   first_seen_at, last_seen_at, trust_score, score_breakdown,
			   scored_at, role, needs_rescore
		FROM wallets
		WHERE address = $1
	`

	wallet, err := scanWallet(r.db.Pool().QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return wallet, nil
}

// ListForScoring returns the wallets the scoring engine should process.
// Incremental mode selects only dirty wallets; full mode selects all.
func (r *WalletRepository) ListForScoring(ctx context.Context, full bool) ([]*models.Wallet, error) {
	query := `
		SELECT address, source, chain, erc8004_id, tx_count,
			   first_seen_at, last_seen_at, trust_score, score_breakdown,
			   scored_at, role, needs_rescore
		FROM wallets
	`
	if !full {
		query += ` WHERE needs_rescore`
	}
	query += ` ORDER BY address`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets for scoring: %w", err)
	}
	defer rows.Close()

	var wallets []*models.Wallet
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, wallet)
	}
	return wallets, rows.Err()
}

// ApplyScore writes the scoring columns for one wallet and clears the
// dirty flag. Runs inside the caller's transaction so the snapshot write
// and the wallet update commit as one logical unit.
func (r *WalletRepository) ApplyScore(ctx context.Context, tx pgx.Tx, address string, score int, breakdown map[string]int, role *types.WalletRole, scoredAt time.Time) error {
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal score breakdown: %w", err)
	}

	query := `
		UPDATE wallets
		SET trust_score = $2, score_breakdown = $3, scored_at = $4,
			role = $5, needs_rescore = FALSE
		WHERE address = $1
	`
	result, err := tx.Exec(ctx, query, strings.ToLower(address), score, breakdownJSON, scoredAt, role)
	if err != nil {
		return fmt.Errorf("failed to apply score: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", address)
	}
	return nil
}

// Count returns the total number of wallets.
func (r *WalletRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM wallets`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count wallets: %w", err)
	}
	return count, nil
}

// CountBySource returns wallet counts grouped by source.
func (r *WalletRepository) CountBySource(ctx context.Context) (map[types.WalletSource]int64, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT source, COUNT(*) FROM wallets GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to count wallets by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.WalletSource]int64)
	for rows.Next() {
		var source types.WalletSource
		var count int64
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		counts[source] = count
	}
	return counts, rows.Err()
}

// scanWallet reads one wallet row, decoding the jsonb breakdown.
func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var wallet models.Wallet
	var breakdownJSON []byte

	err := row.Scan(
		&wallet.Address,
		&wallet.Source,
		&wallet.Chain,
		&wallet.ERC8004ID,
		&wallet.TxCount,
		&wallet.FirstSeenAt,
		&wallet.LastSeenAt,
		&wallet.TrustScore,
		&breakdownJSON,
		&wallet.ScoredAt,
		&wallet.Role,
		&wallet.NeedsRescore,
	)
	if err != nil {
		return nil, err
	}

	if len(breakdownJSON) > 0 {
		if err := json.Unmarshal(breakdownJSON, &wallet.ScoreBreakdown); err != nil {
			return nil, fmt.Errorf("failed to unmarshal score breakdown: %w", err)
		}
	}
	return &wallet, nil
}
