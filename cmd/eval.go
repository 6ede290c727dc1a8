package cmd

import (
	"github.com/radouane/scanner/internal/config"
	"github.com/radouane/scanner/internal/evalcmd"
	"github.com/spf13/cobra"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Provider evaluation tools",
		Long: `Evaluation tools for measuring how well a provider honours the analysis contract.

Supports inspecting labelled datasets, running the provider over them and printing
saved reports.`,
	}

	cmd.AddCommand(evalcmd.NewRunCmd(func() *config.Config { return cfg }))
	cmd.AddCommand(evalcmd.NewReportCmd())
	cmd.AddCommand(evalcmd.NewInspectCmd())

	return cmd
}
