// Package nodeerr declares the closed set of error kinds that cross
// subsystem boundaries in lvenc-node. Callers should compare with
// errors.Is rather than matching error strings.
package nodeerr

import "errors"

var (
	// Ledger / transaction admission.
	ErrInvalidChain       = errors.New("invalid chain id or genesis hash")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInvalidNonce       = errors.New("invalid nonce")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDuplicateTx        = errors.New("duplicate transaction")
	ErrMempoolFull        = errors.New("mempool full")
	ErrGapDetected        = errors.New("gap detected, sync required")
	ErrCorruptState       = errors.New("corrupt persisted state")
	ErrUnknownBlock       = errors.New("unknown block")
	ErrChainNotLonger     = errors.New("candidate chain is not longer")
	ErrChainInvalid       = errors.New("candidate chain failed validation")
	ErrGenesisMismatch    = errors.New("candidate chain genesis mismatch")

	// AMM.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	ErrPoolNotFound     = errors.New("pool not found")
	ErrPoolUnbalanced   = errors.New("deposit ratio does not match pool reserves")
	ErrZeroAmount       = errors.New("amount must be positive")

	// Staking.
	ErrNotAValidator       = errors.New("address is not an active validator")
	ErrBelowMinStake       = errors.New("amount below minimum stake")
	ErrBelowMinDelegation  = errors.New("amount below minimum delegation")
	ErrValidatorInactive   = errors.New("validator is not active")
	ErrInsufficientStake   = errors.New("insufficient active stake")

	// Slashing.
	ErrDoubleSign = errors.New("double sign detected")
	ErrDowntime   = errors.New("downtime threshold breached")

	// P2P.
	ErrHandshakeFailed    = errors.New("handshake failed")
	ErrProtocolViolation  = errors.New("protocol violation")
	ErrRateLimited        = errors.New("rate limited")
	ErrPeerBanned         = errors.New("peer is banned")
	ErrTooManyPeers       = errors.New("peer admission limit reached")
	ErrUnverifiedPeer     = errors.New("peer has not completed handshake")
)
