package orchestrator

import (
	"context"
	"fmt"
	"time"

	"bluegreen-deployment/internal/logger"
	"bluegreen-deployment/internal/models"
	"bluegreen-deployment/internal/proxy"
	"bluegreen-deployment/internal/transport"
)

// RollbackController reverses a failed attempt. Which operation runs
// depends on how far the attempt progressed: before the switch nothing on
// the live path was touched, after it the proxy may be in an ambiguous
// state and must be forced back.
type RollbackController struct {
	switcher   proxy.Switcher
	transport  transport.Transport
	layout     layout
	maxRetries int
	// sleep between emergency retries; tests replace it
	sleep func()
}

func NewRollbackController(switcher proxy.Switcher, t transport.Transport, remoteRoot string) *RollbackController {
	return &RollbackController{
		switcher:   switcher,
		transport:  t,
		layout:     layout{root: remoteRoot},
		maxRetries: 3,
		sleep:      func() { time.Sleep(2 * time.Second) },
	}
}

// Soft marks the attempt failed without touching the live path. Traffic
// was never switched, so the live slot keeps serving. The broken release
// on the idle slot is left in place for post-mortem inspection unless
// cleanup is requested.
func (c *RollbackController) Soft(ctx context.Context, attempt *models.DeploymentAttempt, cleanup bool) {
	log := logger.WithAttempt("rollback", attempt.ID)
	log.WithField("target", attempt.TargetSlot).Info("Soft rollback: traffic untouched")

	if !cleanup || attempt.Artifact == nil {
		return
	}

	releaseDir := c.layout.releaseDir(attempt.TargetSlot, attempt.Artifact.Checksum)
	cmd := fmt.Sprintf("rm -rf %s && rm -f %s", releaseDir, c.layout.currentLink(attempt.TargetSlot))
	if _, err := c.transport.Execute(ctx, cmd); err != nil {
		// Cleanup is best effort; the failure that got us here still wins
		log.WithError(err).Warn("Failed to clean up idle slot release")
		return
	}
	log.WithField("release", releaseDir).Info("Cleaned up idle slot release")
}

// Emergency re-applies the traffic switch pointing at the previous live
// slot, retrying a bounded number of times. If it cannot be completed the
// returned RollbackError must reach an operator: traffic state is unknown
// and may not be assumed correct.
func (c *RollbackController) Emergency(ctx context.Context, attempt *models.DeploymentAttempt) error {
	log := logger.WithAttempt("rollback", attempt.ID)
	previous := attempt.PreviousLiveSlot
	log.WithField("slot", previous).Warn("Emergency rollback: re-pointing traffic at previous live slot")

	var lastErr error
	for i := 1; i <= c.maxRetries; i++ {
		lastErr = c.switcher.SwitchTo(ctx, previous)
		if lastErr == nil {
			log.WithField("slot", previous).WithField("retries", i).
				Info("Emergency rollback complete")
			return nil
		}
		log.WithError(lastErr).WithField("try", i).Error("Emergency rollback attempt failed")
		if i < c.maxRetries {
			c.sleep()
		}
	}

	return &models.RollbackError{Slot: previous, Attempts: c.maxRetries, Err: lastErr}
}
