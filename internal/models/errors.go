package models

import "fmt"

// The error taxonomy decides how far the orchestrator rolls back. Every
// component wraps its failures in exactly one of these types; the
// orchestrator maps the type to a rollback branch with errors.As.

// PreflightError: missing prerequisites. Nothing was touched, no rollback.
type PreflightError struct {
	Check string
	Err   error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight check %q failed: %v", e.Check, e.Err)
}

func (e *PreflightError) Unwrap() error { return e.Err }

// PackagingError: the source could not be bundled into an artifact.
type PackagingError struct {
	SourcePath string
	Err        error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("packaging %s: %v", e.SourcePath, e.Err)
}

func (e *PackagingError) Unwrap() error { return e.Err }

// TransportError: a remote copy or remote command failed. The transport
// never retries; retry policy lives with the caller.
type TransportError struct {
	Op     string
	Host   string
	Output string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("transport %s on %s: %v: %s", e.Op, e.Host, e.Err, e.Output)
	}
	return fmt.Sprintf("transport %s on %s: %v", e.Op, e.Host, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HealthCheckError: the candidate slot failed its single liveness probe.
// A slot that cannot answer a liveness check is broken, not noisy, so
// this is decisive and never retried.
type HealthCheckError struct {
	Slot   Slot
	Detail string
}

func (e *HealthCheckError) Error() string {
	return fmt.Sprintf("health check failed for slot %s: %s", e.Slot, e.Detail)
}

// QualityGateError: the gate exhausted its attempts below threshold.
// Carries the last attempt's result for the ledger.
type QualityGateError struct {
	Slot   Slot
	Result *QualityResult
}

func (e *QualityGateError) Error() string {
	return fmt.Sprintf("quality gate failed for slot %s: average %.1f after %d attempts",
		e.Slot, e.Result.Average, e.Result.AttemptsUsed)
}

// SwitchError: the traffic switch failed partway. Live traffic state may
// be ambiguous, so this is the one error that demands emergency rollback.
type SwitchError struct {
	Slot Slot
	Step string
	Err  error
}

func (e *SwitchError) Error() string {
	return fmt.Sprintf("traffic switch to %s failed at %s: %v", e.Slot, e.Step, e.Err)
}

func (e *SwitchError) Unwrap() error { return e.Err }

// RollbackError: emergency rollback itself could not be completed. Traffic
// state is unknown; this must surface as an operator-visible incident.
type RollbackError struct {
	Slot     Slot
	Attempts int
	Err      error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("EMERGENCY: rollback to %s failed after %d attempts, traffic state unknown: %v",
		e.Slot, e.Attempts, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }
