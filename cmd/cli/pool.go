package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lvenc/lvenc-node/internal/amm"
	"github.com/lvenc/lvenc-node/internal/types"
	"github.com/lvenc/lvenc-node/pkg/utils"
)

// The pool subcommands operate on the node's persisted pool state
// (pool.json under the per-network data directory). `info` and `quote` are
// pure reads; `add`, `remove` and `swap` mutate the local file directly,
// which is administrative/bootstrap tooling for an operator seeding a pool
// before the network is live — on a running network, pool mutations travel
// as POOL_* transactions and are applied at block-apply time.

func newPoolCmd() *cobra.Command {
	f := &commonFlags{}

	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Inspect and administer the liquidity pool",
	}
	f.register(cmd)

	cmd.AddCommand(newPoolInfoCmd(f), newPoolQuoteCmd(f), newPoolAddCmd(f), newPoolRemoveCmd(f), newPoolSwapCmd(f))
	return cmd
}

func poolPath(f *commonFlags) string {
	return filepath.Join(f.networkDir(), "pool.json")
}

func loadPool(f *commonFlags) (*amm.Pool, error) {
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	p := amm.New(logger)
	raw, err := os.ReadFile(poolPath(f))
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pool state: %w", err)
	}
	var state amm.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode pool state: %w", err)
	}
	p.Restore(state)
	return p, nil
}

func savePool(f *commonFlags, p *amm.Pool) error {
	raw, err := json.MarshalIndent(p.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode pool state: %w", err)
	}
	path := poolPath(f)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write pool state: %w", err)
	}
	return utils.Wrap(os.Rename(tmp, path), "rename pool state")
}

func parseToken(s string) (amm.Token, error) {
	switch amm.Token(s) {
	case amm.TokenA, amm.TokenB:
		return amm.Token(s), nil
	default:
		return "", fmt.Errorf("unknown token %q (want %s or %s)", s, amm.TokenA, amm.TokenB)
	}
}

func newPoolInfoCmd(f *commonFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show pool reserves, LP supply and top providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPool(f)
			if err != nil {
				return err
			}
			info := p.Info()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "reserve %s: %s\n", amm.TokenA, info.ReserveA)
			fmt.Fprintf(out, "reserve %s: %s\n", amm.TokenB, info.ReserveB)
			fmt.Fprintf(out, "total LP:    %d\n", info.TotalLP)
			fmt.Fprintf(out, "price %s/%s: %.6f\n", amm.TokenA, amm.TokenB, info.PriceAPerB)
			for _, s := range info.TopProviders {
				fmt.Fprintf(out, "  %s  %d LP\n", s.Address, s.LP)
			}
			return nil
		},
	}
}

func newPoolQuoteCmd(f *commonFlags) *cobra.Command {
	var from, amount string
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := parseToken(from)
			if err != nil {
				return err
			}
			amountIn, err := types.ParseAmount(amount)
			if err != nil {
				return err
			}
			p, err := loadPool(f)
			if err != nil {
				return err
			}
			amountOut, fee, impact, err := p.Quote(token, amountIn)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "amount out:   %s\n", amountOut)
			fmt.Fprintf(out, "fee:          %s\n", fee)
			fmt.Fprintf(out, "price impact: %.4f%%\n", impact)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", string(amm.TokenA), "input token")
	cmd.Flags().StringVar(&amount, "amount", "", "input amount")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newPoolAddCmd(f *commonFlags) *cobra.Command {
	var address, lve, uzs string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add liquidity to the local pool state",
		RunE: func(cmd *cobra.Command, args []string) error {
			dA, err := types.ParseAmount(lve)
			if err != nil {
				return err
			}
			dB, err := types.ParseAmount(uzs)
			if err != nil {
				return err
			}
			p, err := loadPool(f)
			if err != nil {
				return err
			}
			minted, err := p.AddLiquidity(address, dA, dB)
			if err != nil {
				return err
			}
			if err := savePool(f, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "minted %d LP to %s\n", minted, address)
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "liquidity provider address")
	cmd.Flags().StringVar(&lve, "lve", "", "chain-token deposit")
	cmd.Flags().StringVar(&uzs, "uzs", "", "second-asset deposit")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("lve")
	_ = cmd.MarkFlagRequired("uzs")
	return cmd
}

func newPoolRemoveCmd(f *commonFlags) *cobra.Command {
	var address string
	var lp uint64
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Burn LP tokens and withdraw reserves from the local pool state",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPool(f)
			if err != nil {
				return err
			}
			dA, dB, err := p.RemoveLiquidity(address, lp)
			if err != nil {
				return err
			}
			if err := savePool(f, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "withdrew %s %s + %s %s\n", dA, amm.TokenA, dB, amm.TokenB)
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "liquidity provider address")
	cmd.Flags().Uint64Var(&lp, "lp", 0, "LP tokens to burn")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("lp")
	return cmd
}

func newPoolSwapCmd(f *commonFlags) *cobra.Command {
	var from, amount, minOut string
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Execute a slippage-bounded swap against the local pool state",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := parseToken(from)
			if err != nil {
				return err
			}
			amountIn, err := types.ParseAmount(amount)
			if err != nil {
				return err
			}
			min, err := types.ParseAmount(minOut)
			if err != nil {
				return err
			}
			p, err := loadPool(f)
			if err != nil {
				return err
			}
			amountOut, err := p.Swap(token, amountIn, min)
			if err != nil {
				return err
			}
			if err := savePool(f, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "swapped %s %s for %s\n", amount, token, amountOut)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", string(amm.TokenA), "input token")
	cmd.Flags().StringVar(&amount, "amount", "", "input amount")
	cmd.Flags().StringVar(&minOut, "min-out", "0", "minimum acceptable output")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
