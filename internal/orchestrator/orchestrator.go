package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"bluegreen-deployment/internal/config"
	"bluegreen-deployment/internal/logger"
	"bluegreen-deployment/internal/models"
	"bluegreen-deployment/internal/proxy"
	"bluegreen-deployment/internal/transport"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Packager bundles a source directory into an artifact.
type Packager interface {
	Package(sourcePath string) (*models.Artifact, error)
}

// Registry answers which slot is currently live.
type Registry interface {
	CurrentLiveSlot(ctx context.Context) models.Slot
}

// Prober runs the single liveness check and knows each slot's private URL.
type Prober interface {
	Probe(ctx context.Context, slot models.Slot) models.HealthResult
	URL(slot models.Slot) string
}

// QualityGate scores a candidate slot against the rubric.
type QualityGate interface {
	Validate(ctx context.Context, slot models.Slot, url string) *models.QualityResult
}

// Ledger persists one record per finished attempt.
type Ledger interface {
	Append(*models.DeploymentRecord) error
}

// Options are the per-run operator choices.
type Options struct {
	// SkipSwitch deploys and gates the candidate but leaves traffic alone.
	SkipSwitch bool
	// Force proceeds past a failed quality gate. Always logged, always
	// recorded in the ledger as quality_overridden.
	Force bool
	// Cleanup wipes the idle slot release after a soft rollback instead of
	// leaving it for post-mortem inspection.
	Cleanup bool
	// AttemptID pins the attempt's ID; assigned when empty. Lets async
	// callers hand the ID out before the run finishes.
	AttemptID string
}

// Deps are the collaborators the orchestrator sequences.
type Deps struct {
	Packager  Packager
	Transport transport.Transport
	Registry  Registry
	Prober    Prober
	Gate      QualityGate
	Switcher  proxy.Switcher
	Rollback  *RollbackController
	Ledger    Ledger
}

// Orchestrator drives one deployment attempt at a time through the state
// machine. Attempts against the same slot pair must be serialized by the
// caller; within an attempt every step is strictly sequential.
type Orchestrator struct {
	cfg    *config.Config
	deps   Deps
	layout layout
}

func New(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		layout: layout{root: cfg.RemoteRoot},
	}
}

// Run executes a full deployment attempt for sourcePath and returns the
// terminal attempt. The returned error is nil only when the attempt
// completed; it is always one of the typed errors from internal/models,
// so callers can attribute the failing gate.
func (o *Orchestrator) Run(ctx context.Context, sourcePath string, opts Options) (*models.DeploymentAttempt, error) {
	attemptID := opts.AttemptID
	if attemptID == "" {
		attemptID = uuid.New().String()
	}
	attempt := &models.DeploymentAttempt{
		ID:        attemptID,
		State:     models.StateIdle,
		StartedAt: time.Now().UTC(),
	}
	log := logger.WithAttempt("orchestrator", attempt.ID)
	log.WithField("source", sourcePath).Info("Starting deployment attempt")

	// PreChecking: nothing has been touched yet, so failures here (and a
	// caller cancellation) end the attempt without any rollback.
	o.transition(attempt, models.StatePreChecking)
	if err := o.preflight(ctx, sourcePath); err != nil {
		return o.finish(attempt, models.OutcomeFailedPreflight, err, false)
	}
	if ctx.Err() != nil {
		return o.finish(attempt, models.OutcomeCancelled, ctx.Err(), false)
	}

	live := o.deps.Registry.CurrentLiveSlot(ctx)
	attempt.PreviousLiveSlot = live
	attempt.TargetSlot = live.Other()
	log.WithFields(logrus.Fields{
		"live":   live,
		"target": attempt.TargetSlot,
	}).Info("Resolved deployment target")

	// Past PreChecking, cancellation is no longer honored: a step either
	// completes or fails, never stops halfway with nothing recorded.
	// Per-call timeouts still apply inside the transport.
	ctx = context.WithoutCancel(ctx)

	o.transition(attempt, models.StatePackaging)
	artifact, err := o.deps.Packager.Package(sourcePath)
	if err != nil {
		return o.softFail(ctx, attempt, models.OutcomeFailedPackaging, err, opts)
	}
	attempt.Artifact = artifact

	o.transition(attempt, models.StateUploading)
	if o.alreadyDeployed(ctx, attempt) {
		// Identical checksum already active on the target slot: skip the
		// transfer and extraction. Health and quality checks still run.
		log.WithField("checksum", artifact.Checksum[:12]).
			Info("Target slot already holds this artifact, skipping transfer")
		o.transition(attempt, models.StateDeploying)
	} else {
		if err := o.deps.Transport.Upload(ctx, artifact.Archive, o.layout.uploadPath(artifact)); err != nil {
			return o.softFail(ctx, attempt, models.OutcomeFailedUpload, err, opts)
		}

		o.transition(attempt, models.StateDeploying)
		if err := o.deploySteps(ctx, attempt); err != nil {
			return o.softFail(ctx, attempt, models.OutcomeFailedDeploy, err, opts)
		}
	}

	o.transition(attempt, models.StateHealthChecking)
	hr := o.deps.Prober.Probe(ctx, attempt.TargetSlot)
	attempt.Health = &hr
	if !hr.Passed {
		err := &models.HealthCheckError{Slot: attempt.TargetSlot, Detail: hr.Detail}
		return o.softFail(ctx, attempt, models.OutcomeFailedHealth, err, opts)
	}

	o.transition(attempt, models.StateQualityValidating)
	qr := o.deps.Gate.Validate(ctx, attempt.TargetSlot, o.deps.Prober.URL(attempt.TargetSlot))
	attempt.Quality = qr
	overridden := false
	if !qr.Passed {
		if !opts.Force {
			err := &models.QualityGateError{Slot: attempt.TargetSlot, Result: qr}
			return o.softFail(ctx, attempt, models.OutcomeFailedQuality, err, opts)
		}
		overridden = true
		log.WithFields(logrus.Fields{
			"average":   qr.Average,
			"threshold": o.cfg.QualityThreshold,
		}).Warn("Quality gate FAILED but override requested, proceeding to switch")
	}

	if opts.SkipSwitch {
		log.Info("Traffic switch skipped by request, candidate stays idle")
		return o.finish(attempt, models.OutcomeSkippedSwitch, nil, overridden)
	}

	o.transition(attempt, models.StateSwitching)
	if err := o.deps.Switcher.SwitchTo(ctx, attempt.TargetSlot); err != nil {
		// A partially applied switch leaves traffic state ambiguous; this
		// is the one branch requiring emergency rollback.
		log.WithError(err).Error("Traffic switch failed")
		o.transition(attempt, models.StateRollingBack)
		if rbErr := o.deps.Rollback.Emergency(ctx, attempt); rbErr != nil {
			log.WithError(rbErr).Error("Emergency rollback failed, traffic state unknown")
			return o.finish(attempt, models.OutcomeFailedRollback, rbErr, overridden)
		}
		return o.finish(attempt, models.OutcomeFailedSwitch, err, overridden)
	}

	log.WithField("slot", attempt.TargetSlot).Info("Deployment complete, traffic switched")
	return o.finish(attempt, models.OutcomeSuccess, nil, overridden)
}

func (o *Orchestrator) preflight(ctx context.Context, sourcePath string) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return &models.PreflightError{Check: "source path", Err: err}
	}
	if !info.IsDir() {
		return &models.PreflightError{Check: "source path",
			Err: fmt.Errorf("%s is not a directory", sourcePath)}
	}

	if o.cfg.RemoteUser == "" {
		return &models.PreflightError{Check: "credentials",
			Err: errors.New("REMOTE_USER is not set")}
	}
	if o.cfg.SSHIdentity != "" {
		if _, err := os.Stat(o.cfg.SSHIdentity); err != nil {
			return &models.PreflightError{Check: "credentials",
				Err: fmt.Errorf("SSH identity: %w", err)}
		}
	}

	if _, err := o.deps.Transport.Execute(ctx, "true"); err != nil {
		return &models.PreflightError{Check: "remote reachability", Err: err}
	}
	return nil
}

// alreadyDeployed compares the artifact checksum against the marker left
// by the last extraction on the target slot.
func (o *Orchestrator) alreadyDeployed(ctx context.Context, attempt *models.DeploymentAttempt) bool {
	marker := o.layout.checksumMarker(attempt.TargetSlot)
	out, err := o.deps.Transport.Execute(ctx, fmt.Sprintf("cat %s 2>/dev/null || true", marker))
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == attempt.Artifact.Checksum
}

// deploySteps runs the remote deployment as an explicit ordered list of
// operations, each with its own failure check, so a failure is always
// attributable to a specific step.
func (o *Orchestrator) deploySteps(ctx context.Context, attempt *models.DeploymentAttempt) error {
	log := logger.WithAttempt("orchestrator", attempt.ID)
	artifact := attempt.Artifact
	slot := attempt.TargetSlot
	releaseDir := o.layout.releaseDir(slot, artifact.Checksum)
	upload := o.layout.uploadPath(artifact)

	steps := []struct {
		name string
		cmd  string
	}{
		{"create release dir", fmt.Sprintf("mkdir -p %s", releaseDir)},
		{"extract artifact", fmt.Sprintf("tar -xzf %s -C %s", upload, releaseDir)},
		{"write checksum marker", fmt.Sprintf("printf '%%s' %s > %s/.checksum", artifact.Checksum, releaseDir)},
		{"activate release", fmt.Sprintf("ln -sfn %s %s", releaseDir, o.layout.currentLink(slot))},
		{"remove uploaded archive", fmt.Sprintf("rm -f %s", upload)},
	}

	for _, step := range steps {
		log.WithField("step", step.name).Debug("Running deploy step")
		if _, err := o.deps.Transport.Execute(ctx, step.cmd); err != nil {
			return fmt.Errorf("deploy step %q: %w", step.name, err)
		}
	}

	log.WithFields(logrus.Fields{
		"slot":    slot,
		"release": releaseDir,
	}).Info("Artifact deployed to idle slot")
	return nil
}

// softFail routes a pre-switch failure: traffic was never moved, so the
// rollback is a no-op on the live path.
func (o *Orchestrator) softFail(ctx context.Context, attempt *models.DeploymentAttempt, outcome string, cause error, opts Options) (*models.DeploymentAttempt, error) {
	logger.WithAttempt("orchestrator", attempt.ID).
		WithError(cause).WithField("outcome", outcome).
		Error("Deployment step failed, rolling back")
	o.transition(attempt, models.StateRollingBack)
	o.deps.Rollback.Soft(ctx, attempt, opts.Cleanup)
	return o.finish(attempt, outcome, cause, false)
}

func (o *Orchestrator) transition(attempt *models.DeploymentAttempt, next models.State) {
	logger.WithAttempt("orchestrator", attempt.ID).WithFields(logrus.Fields{
		"from": attempt.State,
		"to":   next,
	}).Debug("State transition")
	attempt.State = next
}

// finish moves the attempt to its terminal state, appends the ledger
// record and returns the original failure (if any) to the caller.
func (o *Orchestrator) finish(attempt *models.DeploymentAttempt, outcome string, cause error, overridden bool) (*models.DeploymentAttempt, error) {
	attempt.FinishedAt = time.Now().UTC()
	attempt.Outcome = outcome
	if outcome == models.OutcomeSuccess || outcome == models.OutcomeSkippedSwitch {
		o.transition(attempt, models.StateCompleted)
	} else {
		o.transition(attempt, models.StateFailed)
	}

	record := &models.DeploymentRecord{
		AttemptID:         attempt.ID,
		AppName:           o.cfg.AppName,
		TargetSlot:        attempt.TargetSlot,
		PreviousLiveSlot:  attempt.PreviousLiveSlot,
		Outcome:           outcome,
		QualityOverridden: overridden,
		StartedAt:         attempt.StartedAt,
		FinishedAt:        attempt.FinishedAt,
	}
	if attempt.Artifact != nil {
		record.ArtifactID = attempt.Artifact.ID
		record.Version = attempt.Artifact.Version
		record.Checksum = attempt.Artifact.Checksum
	}
	if attempt.Health != nil {
		record.HealthPassed = attempt.Health.Passed
	}
	if attempt.Quality != nil {
		record.QualityAverage = attempt.Quality.Average
		record.QualityAttempts = attempt.Quality.AttemptsUsed
	}
	if cause != nil {
		record.Detail = cause.Error()
	}

	if err := o.deps.Ledger.Append(record); err != nil {
		// The attempt outcome still stands; a ledger write failure must
		// not mask the real result, but it is loudly logged.
		logger.WithAttempt("orchestrator", attempt.ID).
			WithError(err).Error("Failed to append deployment record")
	}

	return attempt, cause
}
