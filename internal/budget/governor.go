package budget

import (
	"errors"
	"fmt"
	"sync"

	"github.com/trust-scanner/internal/logging"
)

// Threshold fractions of the monthly budget. Crossing the warning fraction
// logs once; crossing the stop fraction sets a terminal flag that every
// scanner observes before its next batch.
const (
	WarnFraction = 0.80
	StopFraction = 0.90
)

// Governor tracks per-process CU consumption against a monthly budget.
// The stop flag is one-way within a run: once set it is never cleared.
// It is safe for concurrent use.
type Governor struct {
	mu        sync.Mutex
	costs     *CostRegistry
	budget    int64
	total     int64
	perMethod map[string]int64
	calls     map[string]int64
	warned    bool
	stopped   bool
	logger    *logging.Logger
}

// GovernorConfig holds configuration for the governor.
type GovernorConfig struct {
	// MonthlyCU is the monthly CU budget. Required.
	MonthlyCU int64

	// Costs is the per-method cost registry. If nil, a registry with
	// default costs is used.
	Costs *CostRegistry

	// Logger receives the single 80% warning. If nil, a default logger
	// is used.
	Logger *logging.Logger
}

// Usage is a point-in-time snapshot of governor state.
type Usage struct {
	TotalCU     int64            `json:"totalCu"`
	MonthlyCU   int64            `json:"monthlyCu"`
	Utilization float64          `json:"utilization"`
	PerMethodCU map[string]int64 `json:"perMethodCu"`
	Calls       map[string]int64 `json:"calls"`
	Stopped     bool             `json:"stopped"`
}

// NewGovernor creates a governor with zeroed counters.
func NewGovernor(cfg *GovernorConfig) (*Governor, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if cfg.MonthlyCU <= 0 {
		return nil, fmt.Errorf("monthly CU budget must be positive, got %d", cfg.MonthlyCU)
	}

	costs := cfg.Costs
	if costs == nil {
		costs = NewCostRegistry(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New(logging.LevelInfo, logging.FormatJSON)
	}

	return &Governor{
		costs:     costs,
		budget:    cfg.MonthlyCU,
		perMethod: make(map[string]int64),
		calls:     make(map[string]int64),
		logger:    logger,
	}, nil
}

// Record adds the cost of n calls to the given method. Crossing the 80%
// threshold emits a single warning; crossing 90% sets the terminal flag.
func (g *Governor) Record(method string, n int) {
	if n <= 0 {
		return
	}
	cost := int64(g.costs.Cost(method)) * int64(n)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.total += cost
	g.perMethod[method] += cost
	g.calls[method] += int64(n)

	utilization := float64(g.total) / float64(g.budget)

	if !g.warned && utilization >= WarnFraction {
		g.warned = true
		g.logger.WithFields(map[string]interface{}{
			"totalCu":     g.total,
			"monthlyCu":   g.budget,
			"utilization": utilization,
		}).Warn("CU budget warning threshold crossed")
	}
	if !g.stopped && utilization >= StopFraction {
		g.stopped = true
		g.logger.WithFields(map[string]interface{}{
			"totalCu":   g.total,
			"monthlyCu": g.budget,
		}).Warn("CU budget stop threshold crossed, scanners will halt")
	}
}

// ShouldStop reports whether the terminal stop flag has been set.
func (g *Governor) ShouldStop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// Snapshot returns totals and the per-method breakdown.
func (g *Governor) Snapshot() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()

	perMethod := make(map[string]int64, len(g.perMethod))
	for m, cu := range g.perMethod {
		perMethod[m] = cu
	}
	calls := make(map[string]int64, len(g.calls))
	for m, c := range g.calls {
		calls[m] = c
	}

	return Usage{
		TotalCU:     g.total,
		MonthlyCU:   g.budget,
		Utilization: float64(g.total) / float64(g.budget),
		PerMethodCU: perMethod,
		Calls:       calls,
		Stopped:     g.stopped,
	}
}

// Reset zeroes all counters and flags. Used in tests only.
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.total = 0
	g.perMethod = make(map[string]int64)
	g.calls = make(map[string]int64)
	g.warned = false
	g.stopped = false
}
