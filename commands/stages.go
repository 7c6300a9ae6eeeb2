package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"supply-chain-risk/inference"
	"supply-chain-risk/pipeline"
)

var stageHelp = map[string]string{
	pipeline.StageIngestLogistics: "Load the logistics CSV into bronze_logistics",
	pipeline.StageIngestNews:      "Load the news JSONL corpus into bronze_news",
	pipeline.StageSentiment:       "Score bronze headlines into silver_news_sentiment",
	pipeline.StageSilver:          "Apply the quality firewall to build silver_logistics",
	pipeline.StageGold:            "Join silver shipments with daily news risk into gold_supply_chain",
	pipeline.StageTrain:           "Train the delay model and save the artifact",
}

// NewStageCmds returns one command per pipeline stage.
func NewStageCmds() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(pipeline.Order))
	for _, name := range pipeline.Order {
		cmds = append(cmds, newStageCmd(name))
	}
	return cmds
}

func newStageCmd(name string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: stageHelp[name],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if src, _ := cmd.Flags().GetString("source"); src != "" {
				switch name {
				case pipeline.StageIngestLogistics:
					e.cfg.Sources.Logistics = src
				case pipeline.StageIngestNews:
					e.cfg.Sources.News = src
				}
			}

			stage, err := pipeline.Build(name, e.db, e.cfg, e.logger)
			if err != nil {
				return err
			}
			runner := pipeline.NewRunner(e.db)
			runner.SetLogger(e.logger)
			_, err = runner.RunStage(cmd.Context(), stage)
			return err
		},
	}
	if name == pipeline.StageIngestLogistics || name == pipeline.StageIngestNews {
		cmd.Flags().String("source", "", "input file (overrides the configured source)")
	}
	return cmd
}

// NewRunCmd runs every stage in order.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every stage from ingestion through training",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			stages, err := pipeline.BuildAll(e.db, e.cfg, e.logger)
			if err != nil {
				return err
			}
			runner := pipeline.NewRunner(e.db)
			runner.SetLogger(e.logger)
			_, err = runner.RunAll(cmd.Context(), stages)
			return err
		},
	}
}

// NewRangeCmd prints the order-date coverage of silver_logistics.
func NewRangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "range",
		Short: "Show the first and last order date in silver_logistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			r, err := inference.OrderDateRange(cmd.Context(), e.db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Your shipping data runs from: %s to %s (%d distinct days", r.Start, r.End, r.Days)
			if r.Unparseable > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), ", %d unparseable", r.Unparseable)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ")")
			return nil
		},
	}
}

// NewHistoryCmd lists recent stage runs.
func NewHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent stage runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			runs, err := pipeline.History(cmd.Context(), e.db, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTAGE\tSTATUS\tIN\tOUT\tSKIPPED\tSTARTED\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n", r.ID, r.Stage, r.Status,
					r.RowsIn, r.RowsOut, r.RowsSkip, r.StartedAt.Format(time.RFC3339), r.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
