package ledger

import (
	"encoding/json"
	"fmt"
)

// Module accounts hold funds locked by the staking and pool state machines.
// They are ordinary balance entries with no signing key, so no transaction
// can ever spend from them; releases happen only through the StateHook's
// transfers at block-apply time.
const (
	ModuleStaking = "module_staking"
	ModulePool    = "module_pool"
)

// Memo payloads carry the kind-specific parameters of staking and pool
// transactions as a small JSON document in Transaction.Memo. Transactions
// whose operation is not itself a balance transfer (UNSTAKE, UNDELEGATE,
// POOL_REMOVE, the UZS-side POOL_SWAP) carry Amount = 0 and put their
// operand amounts here instead, so mempool admission does not demand
// liquid balance for funds that are already locked.

// DelegateMemo names the validator a DELEGATE transaction targets; the
// delegated amount is the transaction's Amount, paid to ModuleStaking.
type DelegateMemo struct {
	Validator string `json:"validator"`
}

// UnstakeMemo carries the amount an UNSTAKE transaction debits from active
// stake (decimal string, same format as types.ParseAmount).
type UnstakeMemo struct {
	Amount string `json:"amount"`
}

// UndelegateMemo carries an UNDELEGATE transaction's operands.
type UndelegateMemo struct {
	Validator string `json:"validator"`
	Amount    string `json:"amount"`
}

// PoolAddMemo carries the second-asset deposit of a POOL_ADD transaction;
// the first-asset deposit is the transaction's Amount, paid to ModulePool.
type PoolAddMemo struct {
	AmountB string `json:"amountB"`
}

// PoolRemoveMemo carries the LP tokens a POOL_REMOVE transaction burns.
type PoolRemoveMemo struct {
	LP uint64 `json:"lp"`
}

// PoolSwapMemo carries a POOL_SWAP transaction's operands. For a swap paying
// in the chain token the input is the transaction's Amount (paid to
// ModulePool) and AmountIn is empty; for a swap paying in the second asset,
// AmountIn holds the input and the transaction's Amount is zero.
type PoolSwapMemo struct {
	TokenIn  string `json:"tokenIn"`
	AmountIn string `json:"amountIn,omitempty"`
	MinOut   string `json:"minOut"`
}

// EncodeMemo renders a memo payload for embedding in a Transaction.
func EncodeMemo(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("memo: encode: %w", err)
	}
	return string(raw), nil
}

// DecodeMemo parses a transaction memo into the expected payload shape.
func DecodeMemo(memo string, out any) error {
	if err := json.Unmarshal([]byte(memo), out); err != nil {
		return fmt.Errorf("memo: decode %q: %w", memo, err)
	}
	return nil
}
