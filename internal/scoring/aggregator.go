package scoring

import (
	"context"
	"fmt"

	"github.com/trust-scanner/internal/logging"
	"github.com/trust-scanner/internal/models"
	"github.com/trust-scanner/internal/storage"
	"github.com/trust-scanner/internal/types"
)

// Aggregator precomputes the per-wallet signal maps in a handful of
// set-oriented queries. No per-wallet queries are issued; results stay in
// memory for the scoring pass.
type Aggregator struct {
	transactions *storage.TransactionRepository
	feedback     *storage.FeedbackRepository
}

// NewAggregator creates a new signal aggregator
func NewAggregator(transactions *storage.TransactionRepository, feedback *storage.FeedbackRepository) *Aggregator {
	return &Aggregator{transactions: transactions, feedback: feedback}
}

// Signals holds the aggregated maps for one scoring pass.
type Signals struct {
	counterparties map[string]int
	volume         map[string]storage.VolumeStat
	roles          map[string]storage.RoleStat
	feedback       map[int64]storage.FeedbackStat
}

// Collect runs the four aggregate queries.
func (a *Aggregator) Collect(ctx context.Context) (*Signals, error) {
	logger := logging.FromContext(ctx)

	counterparties, err := a.transactions.CounterpartyStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate counterparties: %w", err)
	}
	volume, err := a.transactions.VolumeStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate volume: %w", err)
	}
	roles, err := a.transactions.RoleStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate roles: %w", err)
	}
	feedback, err := a.feedback.AgentStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate feedback: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"addresses": len(counterparties),
		"agents":    len(feedback),
	}).Debug("signal aggregation complete")

	return &Signals{
		counterparties: counterparties,
		volume:         volume,
		roles:          roles,
		feedback:       feedback,
	}, nil
}

// BundleFor joins the aggregated maps into one wallet's signal bundle.
// Feedback attaches through the wallet's agent id; wallets without a
// registration carry no feedback signal.
func (s *Signals) BundleFor(wallet *models.Wallet) *SignalBundle {
	bundle := &SignalBundle{
		TxCount:        wallet.TxCount,
		FirstSeenAt:    wallet.FirstSeenAt,
		LastSeenAt:     wallet.LastSeenAt,
		Counterparties: s.counterparties[wallet.Address],
		IsRegistered:   wallet.ERC8004ID != nil,
	}

	if stat, ok := s.volume[wallet.Address]; ok {
		bundle.TotalVolumeUSDC = stat.TotalUSDC.InexactFloat64()
		bundle.VolumeCounterparties = stat.Counterparties
	}

	if wallet.ERC8004ID != nil {
		if stat, ok := s.feedback[*wallet.ERC8004ID]; ok && stat.Count > 0 {
			avg := stat.AvgValue.InexactFloat64()
			bundle.AvgFeedback = &avg
			bundle.FeedbackCount = stat.Count
		}
	}

	return bundle
}

// RoleFor derives a wallet's market role from the sides it has appeared
// on, or nil when it has no payments at all.
func (s *Signals) RoleFor(address string) *types.WalletRole {
	stat, ok := s.roles[address]
	if !ok {
		return nil
	}

	var role types.WalletRole
	switch {
	case stat.Payer && stat.Recipient:
		role = types.RoleBoth
	case stat.Payer:
		role = types.RoleBuyer
	case stat.Recipient:
		role = types.RoleSeller
	default:
		return nil
	}
	return &role
}
