// Package amm implements a single constant-product (x*y=k) two-asset pool
// with a 0.3% swap fee, LP token accounting, and slippage-bounded swaps.
package amm

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/lvenc/lvenc-node/internal/nodeerr"
	"github.com/lvenc/lvenc-node/internal/types"
)

// Token names the two assets the pool trades, matching the CLI's --lve/--uzs
// flags.
type Token string

const (
	TokenA Token = "LVE"
	TokenB Token = "UZS"
)

// FeeNumerator/FeeDenominator fix the swap fee at 0.3%.
const (
	FeeNumerator   = 3
	FeeDenominator = 1000
)

// Pool is the constant-product pool state. All mutation is guarded by mu.
type Pool struct {
	mu sync.RWMutex

	logger *log.Logger

	reserveA types.Amount
	reserveB types.Amount
	totalLP  uint64
	lpBal    map[string]uint64
}

// New constructs an empty pool (reserves zero, uninitialized).
func New(logger *log.Logger) *Pool {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Pool{logger: logger, lpBal: make(map[string]uint64)}
}

// State is a read-only snapshot of the pool, used for persistence and the
// `pool info` CLI surface.
type State struct {
	ReserveA types.Amount      `json:"reserveA"`
	ReserveB types.Amount      `json:"reserveB"`
	TotalLP  uint64            `json:"totalLP"`
	LPBal    map[string]uint64 `json:"lpBalances"`
}

// Snapshot returns a copy of the pool's current state.
func (p *Pool) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bal := make(map[string]uint64, len(p.lpBal))
	for k, v := range p.lpBal {
		bal[k] = v
	}
	return State{ReserveA: p.reserveA, ReserveB: p.reserveB, TotalLP: p.totalLP, LPBal: bal}
}

// Reset empties the pool ahead of a full chain replay.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserveA, p.reserveB, p.totalLP = 0, 0, 0
	p.lpBal = make(map[string]uint64)
}

// Restore replaces the pool's state wholesale, used when loading persisted
// state at startup.
func (p *Pool) Restore(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserveA, p.reserveB, p.totalLP = s.ReserveA, s.ReserveB, s.TotalLP
	p.lpBal = make(map[string]uint64, len(s.LPBal))
	for k, v := range s.LPBal {
		p.lpBal[k] = v
	}
}

// LPBalance returns provider's LP token balance.
func (p *Pool) LPBalance(provider string) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lpBal[provider]
}

// AddLiquidity deposits both assets into the pool: the first deposit
// mints sqrt(dA*dB) LP and sets the price; subsequent deposits must match
// the existing reserve ratio within tolerance and mint proportionally.
func (p *Pool) AddLiquidity(provider string, dA, dB types.Amount) (minted uint64, err error) {
	if dA == 0 || dB == 0 {
		return 0, fmt.Errorf("addLiquidity: %w", nodeerr.ErrZeroAmount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.totalLP == 0 {
		product := new(big.Int).Mul(big.NewInt(int64(dA)), big.NewInt(int64(dB)))
		minted = new(big.Int).Sqrt(product).Uint64()
	} else {
		if !ratioMatches(dA, dB, p.reserveA, p.reserveB) {
			return 0, fmt.Errorf("addLiquidity: %w", nodeerr.ErrPoolUnbalanced)
		}
		mintedA := mulDiv(uint64(dA), p.totalLP, uint64(p.reserveA))
		mintedB := mulDiv(uint64(dB), p.totalLP, uint64(p.reserveB))
		minted = mintedA
		if mintedB < minted {
			minted = mintedB
		}
	}
	if minted == 0 {
		return 0, fmt.Errorf("addLiquidity: %w", nodeerr.ErrZeroAmount)
	}

	p.reserveA = p.reserveA.Add(dA)
	p.reserveB = p.reserveB.Add(dB)
	p.totalLP += minted
	p.lpBal[provider] += minted
	p.logger.WithFields(log.Fields{"provider": provider, "dA": dA.String(), "dB": dB.String(), "minted": minted}).
		Info("amm: liquidity added")
	return minted, nil
}

// ratioMatches reports whether dA/dB is within 0.5% of reserveA/reserveB,
// compared cross-multiplied to avoid floating point.
func ratioMatches(dA, dB, reserveA, reserveB types.Amount) bool {
	lhs := new(big.Int).Mul(big.NewInt(int64(dA)), big.NewInt(int64(reserveB)))
	rhs := new(big.Int).Mul(big.NewInt(int64(dB)), big.NewInt(int64(reserveA)))
	diff := new(big.Int).Sub(lhs, rhs)
	diff.Abs(diff)
	tolerance := new(big.Int).Div(rhs, big.NewInt(200)) // 0.5%
	return diff.Cmp(tolerance) <= 0
}

// mulDiv computes a*b/c with a 128-bit-wide intermediate via big.Int.
func mulDiv(a, b, c uint64) uint64 {
	if c == 0 {
		return 0
	}
	r := new(big.Int).Mul(big.NewInt(int64(a)), big.NewInt(int64(b)))
	r.Div(r, big.NewInt(int64(c)))
	return r.Uint64()
}

// RemoveLiquidity burns lp tokens and returns the underlying reserves owed.
func (p *Pool) RemoveLiquidity(provider string, lp uint64) (dA, dB types.Amount, err error) {
	if lp == 0 {
		return 0, 0, fmt.Errorf("removeLiquidity: %w", nodeerr.ErrZeroAmount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lpBal[provider] < lp {
		return 0, 0, fmt.Errorf("removeLiquidity: %w", nodeerr.ErrInsufficientStake)
	}
	if p.totalLP == 0 {
		return 0, 0, fmt.Errorf("removeLiquidity: %w", nodeerr.ErrPoolNotFound)
	}

	dA = types.Amount(mulDiv(lp, uint64(p.reserveA), p.totalLP))
	dB = types.Amount(mulDiv(lp, uint64(p.reserveB), p.totalLP))

	p.reserveA, _ = p.reserveA.Sub(dA)
	p.reserveB, _ = p.reserveB.Sub(dB)
	p.totalLP -= lp
	p.lpBal[provider] -= lp
	if p.lpBal[provider] == 0 {
		delete(p.lpBal, provider)
	}
	p.logger.WithFields(log.Fields{"provider": provider, "lp": lp, "dA": dA.String(), "dB": dB.String()}).
		Info("amm: liquidity removed")
	return dA, dB, nil
}

// Quote computes the output amount, fee, and price impact for a hypothetical
// swap without mutating pool state.
func (p *Pool) Quote(tokenIn Token, amountIn types.Amount) (amountOut, fee types.Amount, priceImpactPct float64, err error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.quoteLocked(tokenIn, amountIn)
}

func (p *Pool) quoteLocked(tokenIn Token, amountIn types.Amount) (amountOut, fee types.Amount, priceImpactPct float64, err error) {
	if amountIn == 0 {
		return 0, 0, 0, fmt.Errorf("quote: %w", nodeerr.ErrZeroAmount)
	}
	reserveIn, reserveOut, err := p.reservesFor(tokenIn)
	if err != nil {
		return 0, 0, 0, err
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, 0, 0, fmt.Errorf("quote: %w", nodeerr.ErrPoolNotFound)
	}

	fee = types.Amount(mulDiv(uint64(amountIn), FeeNumerator, FeeDenominator))
	amountInAfterFee := uint64(amountIn) - uint64(fee)

	num := new(big.Int).Mul(big.NewInt(int64(amountInAfterFee)), big.NewInt(int64(reserveOut)))
	den := new(big.Int).Add(big.NewInt(int64(reserveIn)), big.NewInt(int64(amountInAfterFee)))
	out := new(big.Int).Div(num, den)
	amountOut = types.Amount(out.Uint64())

	priceBefore := float64(reserveOut) / float64(reserveIn)
	newIn := uint64(reserveIn) + amountInAfterFee
	newOut := uint64(reserveOut) - uint64(amountOut)
	var priceAfter float64
	if newIn > 0 {
		priceAfter = float64(newOut) / float64(newIn)
	}
	if priceBefore != 0 {
		priceImpactPct = math.Abs(priceAfter-priceBefore) / priceBefore * 100
	}
	return amountOut, fee, priceImpactPct, nil
}

func (p *Pool) reservesFor(tokenIn Token) (reserveIn, reserveOut types.Amount, err error) {
	switch tokenIn {
	case TokenA:
		return p.reserveA, p.reserveB, nil
	case TokenB:
		return p.reserveB, p.reserveA, nil
	default:
		return 0, 0, fmt.Errorf("reservesFor %q: %w", tokenIn, nodeerr.ErrPoolNotFound)
	}
}

// Swap executes a swap of amountIn of tokenIn, requiring at least minOut of
// the other token. The invariant reserveA*reserveB must not
// decrease; the fee is retained in the pool, which always increases k.
func (p *Pool) Swap(tokenIn Token, amountIn, minOut types.Amount) (amountOut types.Amount, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kBefore := new(big.Int).Mul(big.NewInt(int64(p.reserveA)), big.NewInt(int64(p.reserveB)))

	amountOut, fee, _, err := p.quoteLocked(tokenIn, amountIn)
	if err != nil {
		return 0, err
	}
	if amountOut < minOut {
		return 0, fmt.Errorf("swap: %w", nodeerr.ErrSlippageExceeded)
	}

	_ = fee // the fee is not deducted from reserveIn: it stays in the pool and compounds k
	switch tokenIn {
	case TokenA:
		p.reserveA = p.reserveA.Add(amountIn)
		p.reserveB, err = p.reserveB.Sub(amountOut)
	case TokenB:
		p.reserveB = p.reserveB.Add(amountIn)
		p.reserveA, err = p.reserveA.Sub(amountOut)
	}
	if err != nil {
		return 0, fmt.Errorf("swap: %w", err)
	}

	kAfter := new(big.Int).Mul(big.NewInt(int64(p.reserveA)), big.NewInt(int64(p.reserveB)))
	if kAfter.Cmp(kBefore) < 0 {
		return 0, fmt.Errorf("swap: invariant violated, k decreased")
	}

	p.logger.WithFields(log.Fields{"tokenIn": tokenIn, "amountIn": amountIn.String(), "amountOut": amountOut.String()}).
		Info("amm: swap executed")
	return amountOut, nil
}

// Info is the `pool info` CLI view: reserves, implied price, and the top LP
// holders by balance (for operator visibility, not part of consensus state).
type Info struct {
	ReserveA     types.Amount `json:"reserveA"`
	ReserveB     types.Amount `json:"reserveB"`
	TotalLP      uint64       `json:"totalLP"`
	PriceAPerB   float64      `json:"priceAPerB"`
	TopProviders []ProviderShare
}

// ProviderShare is one LP holder's balance, used by Info.
type ProviderShare struct {
	Address string
	LP      uint64
}

// Info returns a human-facing summary of the pool.
func (p *Pool) Info() Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var price float64
	if p.reserveB != 0 {
		price = float64(p.reserveA) / float64(p.reserveB)
	}
	shares := make([]ProviderShare, 0, len(p.lpBal))
	for addr, lp := range p.lpBal {
		shares = append(shares, ProviderShare{Address: addr, LP: lp})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].LP != shares[j].LP {
			return shares[i].LP > shares[j].LP
		}
		return shares[i].Address < shares[j].Address
	})
	return Info{
		ReserveA: p.reserveA, ReserveB: p.reserveB, TotalLP: p.totalLP,
		PriceAPerB: price, TopProviders: shares,
	}
}
