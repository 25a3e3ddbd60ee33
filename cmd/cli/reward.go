package cli

import (
	"crypto/ed25519"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lvenc/lvenc-node/internal/crypto"
)

func newRewardCmd() *cobra.Command {
	f := &commonFlags{}

	cmd := &cobra.Command{
		Use:   "reward",
		Short: "Manage the validator reward address binding",
	}
	f.register(cmd)

	bind := &cobra.Command{
		Use:   "bind <address>",
		Short: "Bind an existing address as the reward destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			netID, err := f.netID()
			if err != nil {
				return err
			}
			if err := crypto.ValidateAddress(netID, args[0]); err != nil {
				return err
			}
			id, err := crypto.LoadOrCreate(f.networkDir(), log.StandardLogger())
			if err != nil {
				return err
			}
			if err := id.BindRewardAddress(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reward address bound:", args[0])
			return nil
		},
	}

	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a fresh reward address from a new mnemonic and bind it",
		RunE: func(cmd *cobra.Command, args []string) error {
			netID, err := f.netID()
			if err != nil {
				return err
			}
			mnemonic, err := crypto.NewMnemonic(128)
			if err != nil {
				return err
			}
			priv, err := crypto.KeyFromMnemonic(mnemonic, "")
			if err != nil {
				return err
			}
			addr := crypto.DeriveAddress(netID, priv.Public().(ed25519.PublicKey))
			id, err := crypto.LoadOrCreate(f.networkDir(), log.StandardLogger())
			if err != nil {
				return err
			}
			if err := id.BindRewardAddress(addr); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reward address:", addr)
			fmt.Fprintln(cmd.OutOrStdout(), "mnemonic (shown once, store it safely):")
			fmt.Fprintln(cmd.OutOrStdout(), " ", mnemonic)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the currently bound reward address",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := crypto.LoadOrCreate(f.networkDir(), log.StandardLogger())
			if err != nil {
				return err
			}
			if reward := id.RewardAddress(); reward != "" {
				fmt.Fprintln(cmd.OutOrStdout(), reward)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "(unbound)")
			}
			return nil
		},
	}

	cmd.AddCommand(bind, generate, show)
	return cmd
}
