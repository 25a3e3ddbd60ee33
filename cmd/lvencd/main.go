package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lvenc/lvenc-node/cmd/cli"
)

func main() {
	root := &cobra.Command{
		Use:           "lvencd",
		Short:         "lvenc proof-of-stake blockchain node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cli.RegisterRoutes(root)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lvencd:", err)
		os.Exit(1)
	}
}
