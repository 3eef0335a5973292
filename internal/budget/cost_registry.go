// Package budget provides process-scoped CU (Compute Unit) accounting for
// RPC calls against a monthly provider budget.
package budget

import (
	"sync"
)

// Default CU costs for the JSON-RPC methods the gateway issues, based on
// Alchemy pricing. Unknown methods fall back to a conservative default.
const (
	DefaultCUCost = 20

	CostEthBlockNumber           = 10
	CostEthGetLogs               = 75
	CostEthGetTransactionByHash  = 15
	CostEthGetTransactionReceipt = 15
)

// RPC method names
const (
	MethodEthBlockNumber           = "eth_blockNumber"
	MethodEthGetLogs               = "eth_getLogs"
	MethodEthGetTransactionByHash  = "eth_getTransactionByHash"
	MethodEthGetTransactionReceipt = "eth_getTransactionReceipt"
)

// CostRegistry maps RPC methods to their CU costs.
// It is safe for concurrent use.
type CostRegistry struct {
	mu          sync.RWMutex
	costs       map[string]int
	defaultCost int
}

// CostRegistryConfig holds configuration for the registry.
type CostRegistryConfig struct {
	// DefaultCost is the CU cost for unknown RPC methods.
	// If zero, uses the package default (20 CU).
	DefaultCost int

	// Overrides allows custom CU costs for specific methods.
	// These override the built-in defaults.
	Overrides map[string]int
}

// NewCostRegistry creates a new registry with default costs.
// If cfg is nil, default configuration is used.
func NewCostRegistry(cfg *CostRegistryConfig) *CostRegistry {
	costs := map[string]int{
		MethodEthBlockNumber:           CostEthBlockNumber,
		MethodEthGetLogs:               CostEthGetLogs,
		MethodEthGetTransactionByHash:  CostEthGetTransactionByHash,
		MethodEthGetTransactionReceipt: CostEthGetTransactionReceipt,
	}

	defaultCost := DefaultCUCost

	if cfg != nil {
		if cfg.DefaultCost > 0 {
			defaultCost = cfg.DefaultCost
		}
		for method, cost := range cfg.Overrides {
			if cost > 0 {
				costs[method] = cost
			}
		}
	}

	return &CostRegistry{
		costs:       costs,
		defaultCost: defaultCost,
	}
}

// Cost returns the CU cost for an RPC method.
// If the method is not known, returns the configured default cost.
func (r *CostRegistry) Cost(method string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cost, ok := r.costs[method]; ok {
		return cost
	}
	return r.defaultCost
}

// SetCost allows runtime cost updates for a specific method.
// The cost must be positive; zero or negative values are ignored.
func (r *CostRegistry) SetCost(method string, cost int) {
	if cost <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.costs[method] = cost
}

// DefaultCost returns the configured default cost for unknown methods.
func (r *CostRegistry) DefaultCost() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.defaultCost
}

// KnownMethods returns a list of all known RPC method names.
func (r *CostRegistry) KnownMethods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]string, 0, len(r.costs))
	for method := range r.costs {
		methods = append(methods, method)
	}
	return methods
}
