package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"supply-chain-risk/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "supplychain",
		Short: "Supply-chain delay risk pipeline",
		Long: `supplychain ingests logistics records and news headlines, scores news
sentiment, filters and joins the data into a modelling table, trains a
delay regression and serves predictions over HTTP.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to the YAML config file")

	root.AddCommand(commands.NewStageCmds()...)
	root.AddCommand(
		commands.NewRunCmd(),
		commands.NewRangeCmd(),
		commands.NewHistoryCmd(),
		commands.NewServeCmd(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
