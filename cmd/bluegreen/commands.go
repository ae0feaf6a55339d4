package main

import (
	"fmt"
	"time"

	"bluegreen-deployment/internal/config"
	"bluegreen-deployment/internal/models"
	"bluegreen-deployment/internal/orchestrator"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func runDeploy(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	led, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	orch, _ := orchestrator.FromConfig(cfg, led)
	attempt, err := orch.Run(cmd.Context(), args[0], orchestrator.Options{
		SkipSwitch: flagSkipSwitch,
		Force:      flagForce,
		Cleanup:    flagCleanup,
	})
	if err != nil {
		// The outcome already names the failing gate, so operators can
		// tell a bad build from flaking infrastructure.
		return fmt.Errorf("%s (attempt %s): %w", attempt.Outcome, attempt.ID, err)
	}

	if flagSkipSwitch {
		fmt.Printf("%s: %s deployed and gated, traffic remains on %s (attempt %s)\n",
			attempt.Outcome, attempt.TargetSlot, attempt.PreviousLiveSlot, attempt.ID)
	} else {
		fmt.Printf("%s: %s now live (attempt %s)\n", attempt.Outcome, attempt.TargetSlot, attempt.ID)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	led, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	_, registry := orchestrator.FromConfig(cfg, led)
	fmt.Printf("live slot: %s\n", registry.CurrentLiveSlot(cmd.Context()))

	last, err := led.Last()
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	if last == nil {
		fmt.Println("no deployments on record")
		return nil
	}
	printRecord(last)

	if flagHistory > 0 {
		records, err := led.History(flagHistory)
		if err != nil {
			return fmt.Errorf("read history: %w", err)
		}
		fmt.Printf("\nlast %d attempts:\n", len(records))
		for _, r := range records {
			fmt.Printf("  %s  %-7s  %-30s  %s\n",
				r.FinishedAt.Local().Format(time.RFC3339), r.TargetSlot, r.Outcome, r.AttemptID)
		}
	}
	return nil
}

func printRecord(r *models.DeploymentRecord) {
	fmt.Printf("last attempt: %s\n", r.AttemptID)
	fmt.Printf("  outcome:    %s\n", r.Outcome)
	fmt.Printf("  target:     %s (was %s)\n", r.TargetSlot, r.PreviousLiveSlot)
	fmt.Printf("  version:    %s\n", r.Version)
	fmt.Printf("  health:     %v\n", r.HealthPassed)
	fmt.Printf("  quality:    %.1f over %d attempts", r.QualityAverage, r.QualityAttempts)
	if r.QualityOverridden {
		fmt.Print("  (OVERRIDDEN)")
	}
	fmt.Println()
	fmt.Printf("  finished:   %s\n", r.FinishedAt.Local().Format(time.RFC3339))
	if r.Detail != "" {
		fmt.Printf("  detail:     %s\n", r.Detail)
	}
}

// runRollback forces traffic back onto the idle slot. It reuses the same
// atomic switch the orchestrator uses and records the change so the
// registry fallback stays truthful.
func runRollback(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	led, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	_, registry := orchestrator.FromConfig(cfg, led)

	ctx := cmd.Context()
	live := registry.CurrentLiveSlot(ctx)
	target := live.Other()
	fmt.Printf("switching traffic %s -> %s\n", live, target)

	switcher := orchestrator.SwitcherFromConfig(cfg)
	if err := switcher.SwitchTo(ctx, target); err != nil {
		return fmt.Errorf("manual rollback failed, traffic state must be verified by hand: %w", err)
	}

	now := time.Now().UTC()
	rec := &models.DeploymentRecord{
		AttemptID:        uuid.New().String(),
		AppName:          cfg.AppName,
		TargetSlot:       target,
		PreviousLiveSlot: live,
		Outcome:          models.OutcomeSuccess,
		Detail:           "manual rollback",
		StartedAt:        now,
		FinishedAt:       now,
	}
	if err := led.Append(rec); err != nil {
		return fmt.Errorf("switched, but failed to record rollback: %w", err)
	}

	fmt.Printf("traffic now on %s\n", target)
	return nil
}
