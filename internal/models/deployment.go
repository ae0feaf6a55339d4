package models

import "time"

// Slot is one of the two fixed serving identities behind the proxy.
type Slot string

const (
	SlotBlue  Slot = "blue"
	SlotGreen Slot = "green"
)

// Other returns the opposite slot. With exactly two slots this is total:
// the live slot's Other is always the only valid deployment target.
func (s Slot) Other() Slot {
	if s == SlotBlue {
		return SlotGreen
	}
	return SlotBlue
}

func (s Slot) Valid() bool {
	return s == SlotBlue || s == SlotGreen
}

// State is the orchestrator's position in a deployment attempt.
type State string

const (
	StateIdle              State = "idle"
	StatePreChecking       State = "prechecking"
	StatePackaging         State = "packaging"
	StateUploading         State = "uploading"
	StateDeploying         State = "deploying"
	StateHealthChecking    State = "healthchecking"
	StateQualityValidating State = "qualityvalidating"
	StateSwitching         State = "switching"
	StateRollingBack       State = "rollingback"
	StateCompleted         State = "completed"
	StateFailed            State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Outcome strings persisted to the ledger. Operators grep these, so the
// failing gate is always named.
const (
	OutcomeSuccess         = "success"
	OutcomeFailedPreflight = "failed: preflight"
	OutcomeFailedPackaging = "failed: packaging"
	OutcomeFailedUpload    = "failed: upload"
	OutcomeFailedDeploy    = "failed: deploy"
	OutcomeFailedHealth    = "failed: health"
	OutcomeFailedQuality   = "failed: quality"
	OutcomeFailedSwitch    = "failed: switch, rolled back"
	OutcomeFailedRollback  = "failed: switch, rollback failed"
	OutcomeCancelled       = "cancelled"
	OutcomeSkippedSwitch   = "success: switch skipped"
)

// Artifact is an immutable versioned bundle produced by the packager.
type Artifact struct {
	ID         string    `json:"id"`
	SourcePath string    `json:"source_path"`
	Version    string    `json:"version"`
	Checksum   string    `json:"checksum"`
	Archive    string    `json:"archive"`
	CreatedAt  time.Time `json:"created_at"`
}

// HealthResult is the outcome of the single liveness probe against a slot.
type HealthResult struct {
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// QualityResult is the outcome of the quality gate. When the gate exhausts
// its attempts the scores and average are those of the LAST attempt.
type QualityResult struct {
	Scores       map[string]float64 `json:"scores"`
	Average      float64            `json:"average"`
	Passed       bool               `json:"passed"`
	AttemptsUsed int                `json:"attempts_used"`
}

// DeploymentAttempt is the unit of work the orchestrator drives. It is
// mutated only through state transitions and becomes immutable once the
// state is terminal.
type DeploymentAttempt struct {
	ID               string         `json:"id"`
	Artifact         *Artifact      `json:"artifact,omitempty"`
	TargetSlot       Slot           `json:"target_slot"`
	PreviousLiveSlot Slot           `json:"previous_live_slot"`
	State            State          `json:"state"`
	Health           *HealthResult  `json:"health,omitempty"`
	Quality          *QualityResult `json:"quality,omitempty"`
	Outcome          string         `json:"outcome,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at,omitzero"`
}

// DeploymentRecord is the flattened, append-only ledger snapshot of a
// finished attempt.
type DeploymentRecord struct {
	ID                int       `json:"id"`
	AttemptID         string    `json:"attempt_id"`
	AppName           string    `json:"app_name"`
	ArtifactID        string    `json:"artifact_id"`
	Version           string    `json:"version"`
	Checksum          string    `json:"checksum"`
	TargetSlot        Slot      `json:"target_slot"`
	PreviousLiveSlot  Slot      `json:"previous_live_slot"`
	Outcome           string    `json:"outcome"`
	HealthPassed      bool      `json:"health_passed"`
	QualityAverage    float64   `json:"quality_average"`
	QualityAttempts   int       `json:"quality_attempts"`
	QualityOverridden bool      `json:"quality_overridden"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Detail            string    `json:"detail,omitempty"`
}

// Succeeded reports whether the recorded attempt ended with traffic on the
// target slot.
func (r *DeploymentRecord) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}
