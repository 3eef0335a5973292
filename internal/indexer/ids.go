package indexer

import "github.com/trust-scanner/internal/types"

// chainShort maps chain identifiers to the short form used in cursor keys.
var chainShort = map[types.ChainID]string{
	types.ChainEthereum: "eth",
	types.ChainBase:     "base",
	types.ChainArbitrum: "arb",
}

// IdentityScannerID returns the cursor key for a chain's identity scanner,
// e.g. "erc8004_identity_base".
func IdentityScannerID(chain types.ChainID) string {
	return "erc8004_identity_" + chainShort[chain]
}

// FeedbackScannerID returns the cursor key for a chain's feedback scanner.
func FeedbackScannerID(chain types.ChainID) string {
	return "erc8004_feedback_" + chainShort[chain]
}

// PaymentScannerID returns the cursor key for a chain's payment scanner,
// e.g. "x402_arb".
func PaymentScannerID(chain types.ChainID) string {
	return "x402_" + chainShort[chain]
}
