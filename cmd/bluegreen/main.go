// Command bluegreen is the operator CLI for the blue-green deployment
// orchestrator. It deploys a built site to the idle slot, gates promotion
// on health and quality checks, and switches public traffic only when the
// gates pass.
package main

import (
	"fmt"
	"os"

	"bluegreen-deployment/internal/config"
	"bluegreen-deployment/internal/ledger"
	"bluegreen-deployment/internal/logger"

	"github.com/spf13/cobra"
)

var (
	flagSkipSwitch bool
	flagForce      bool
	flagCleanup    bool
	flagHistory    int
)

func main() {
	logger.Initialize()

	rootCmd := &cobra.Command{
		Use:          "bluegreen",
		Short:        "Blue-green deployment orchestrator",
		SilenceUsage: true,
	}

	deployCmd := &cobra.Command{
		Use:   "deploy <source-path>",
		Short: "Package, deploy to the idle slot, gate, and switch traffic",
		Args:  cobra.ExactArgs(1),
		RunE:  runDeploy,
	}
	deployCmd.Flags().BoolVar(&flagSkipSwitch, "skip-switch", false,
		"deploy and run all gates but leave traffic on the current slot")
	deployCmd.Flags().BoolVar(&flagForce, "force", false,
		"proceed past a failed quality gate (recorded in the ledger)")
	deployCmd.Flags().BoolVar(&flagCleanup, "cleanup", false,
		"wipe the idle slot release after a failed attempt")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the live slot and the most recent deployment record",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	statusCmd.Flags().IntVar(&flagHistory, "history", 0,
		"also list the last N deployment records")

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Manually switch traffic back to the idle slot",
		Args:  cobra.NoArgs,
		RunE:  runRollback,
	}

	rootCmd.AddCommand(deployCmd, statusCmd, rollbackCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openLedger(cfg *config.Config) (*ledger.Ledger, error) {
	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return led, nil
}
