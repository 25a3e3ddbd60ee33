package ledger

import (
	"sort"
	"sync"

	"github.com/lvenc/lvenc-node/internal/types"
)

// Mempool is the pending-transaction pool. It is protected by the owning
// Ledger's exclusive lock for writes; PendingByAddress/Len may be called
// under either lock per the Ledger's own locking discipline.
type Mempool struct {
	mu     sync.RWMutex
	byID   map[string]*Transaction
	maxLen int
}

// NewMempool constructs an empty mempool capped at maxLen transactions.
func NewMempool(maxLen int) *Mempool {
	return &Mempool{byID: make(map[string]*Transaction), maxLen: maxLen}
}

// Has reports whether a transaction with this id is already pending.
func (m *Mempool) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byID[id]
	return ok
}

// Len returns the number of pending transactions.
func (m *Mempool) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Full reports whether the mempool is at capacity.
func (m *Mempool) Full() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID) >= m.maxLen
}

// Add inserts tx into the pool. Callers must have already validated tx.
func (m *Mempool) Add(tx *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[tx.ID] = tx
}

// Remove deletes a transaction by id, used on block application / eviction.
func (m *Mempool) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

// All returns every pending transaction, in no particular order. Used to
// answer QUERY_TRANSACTION_POOL from a peer.
func (m *Mempool) All() []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Transaction, 0, len(m.byID))
	for _, tx := range m.byID {
		out = append(out, tx)
	}
	return out
}

// PendingByAddress returns every pending transaction originated by addr, in
// no particular order.
func (m *Mempool) PendingByAddress(addr string) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Transaction
	for _, tx := range m.byID {
		if tx.From == addr {
			out = append(out, tx)
		}
	}
	return out
}

// ProjectedDelta returns the pending debits of addr (amount plus fee of the
// transactions it sent) and the pending credits to addr (amount of the
// transactions paying it), used by getProjectedBalance.
func (m *Mempool) ProjectedDelta(addr string) (debit types.Amount, credit types.Amount) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tx := range m.byID {
		if tx.From == addr {
			debit = debit.Add(tx.Amount).Add(tx.Fee)
		}
		if tx.To == addr {
			credit = credit.Add(tx.Amount)
		}
	}
	return debit, credit
}

// DrainTopFee removes and returns up to n pending transactions, ordered by
// fee descending.
// Ties are broken by transaction id for determinism across nodes.
func (m *Mempool) DrainTopFee(n int) []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*Transaction, 0, len(m.byID))
	for _, tx := range m.byID {
		all = append(all, tx)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Fee != all[j].Fee {
			return all[i].Fee > all[j].Fee
		}
		return all[i].ID < all[j].ID
	})
	if n > len(all) {
		n = len(all)
	}
	out := all[:n]
	for _, tx := range out {
		delete(m.byID, tx.ID)
	}
	return out
}

// Congestion buckets used by the fee-recommendation policy.
type Congestion string

const (
	CongestionLow      Congestion = "low"
	CongestionMedium   Congestion = "medium"
	CongestionHigh     Congestion = "high"
	CongestionCritical Congestion = "critical"
)

// congestionThresholds maps pending-tx-count thresholds to a congestion
// level; entries must be in ascending Count order.
var congestionThresholds = []struct {
	Count int
	Level Congestion
}{
	{0, CongestionLow},
	{200, CongestionMedium},
	{1000, CongestionHigh},
	{5000, CongestionCritical},
}

// CongestionLevel classifies the current mempool depth.
func (m *Mempool) CongestionLevel() Congestion {
	n := m.Len()
	level := CongestionLow
	for _, t := range congestionThresholds {
		if n >= t.Count {
			level = t.Level
		}
	}
	return level
}

// RecommendedFee returns a monotone step-function fee for the current
// congestion level, in base units. Implementations may additionally apply a
// staking-based discount (see FeeWithStakeDiscount).
func (m *Mempool) RecommendedFee() types.Amount {
	switch m.CongestionLevel() {
	case CongestionCritical:
		return types.Amount(1_000_000_000) // 1.0 token
	case CongestionHigh:
		return types.Amount(250_000_000) // 0.25
	case CongestionMedium:
		return types.Amount(50_000_000) // 0.05
	default:
		return types.Amount(1_000_000) // 0.001
	}
}
