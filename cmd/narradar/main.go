package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "narradar",
		Short: "Detect emerging Solana narratives and generate product ideas",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(runCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(narrativesCmd())
	root.AddCommand(ideasCmd())
	root.AddCommand(validateCmd())

	return root
}

func runCmd() *cobra.Command {
	var (
		days       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one detection cycle and write the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(days, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "detection window in days (default: from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		port     int
		schedule bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port, schedule)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	cmd.Flags().BoolVar(&schedule, "schedule", false, "also run detection cycles periodically")
	return cmd
}

func narrativesCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "narratives",
		Short: "Show narratives from the latest report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showNarratives(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func ideasCmd() *cobra.Command {
	var (
		jsonOutput  bool
		effort      string
		narrativeID string
	)

	cmd := &cobra.Command{
		Use:   "ideas",
		Short: "Show product ideas from the latest report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showIdeas(jsonOutput, effort, narrativeID)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&effort, "effort", "", "filter by effort level (weekend, month, quarter)")
	cmd.Flags().StringVar(&narrativeID, "narrative", "", "filter by narrative ID")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check configuration and credentials without running",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate()
		},
	}
}
