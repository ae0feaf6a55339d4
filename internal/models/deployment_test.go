package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSlotOther(t *testing.T) {
	tests := []struct {
		name string
		slot Slot
		want Slot
	}{
		{"blue flips to green", SlotBlue, SlotGreen},
		{"green flips to blue", SlotGreen, SlotBlue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.slot.Other(); got != tt.want {
				t.Errorf("Other() = %v, want %v", got, tt.want)
			}
			// live and idle can never coincide
			if tt.slot.Other() == tt.slot {
				t.Errorf("Other() returned the same slot %v", tt.slot)
			}
		})
	}
}

func TestSlotValid(t *testing.T) {
	if !SlotBlue.Valid() || !SlotGreen.Valid() {
		t.Error("blue and green must be valid slots")
	}
	if Slot("purple").Valid() {
		t.Error("there is no third slot")
	}
	if Slot("").Valid() {
		t.Error("empty slot must be invalid")
	}
}

func TestStateTerminal(t *testing.T) {
	terminal := []State{StateCompleted, StateFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%v should be terminal", s)
		}
	}

	nonTerminal := []State{
		StateIdle, StatePreChecking, StatePackaging, StateUploading,
		StateDeploying, StateHealthChecking, StateQualityValidating,
		StateSwitching, StateRollingBack,
	}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("%v should not be terminal", s)
		}
	}
}

func TestDeploymentRecordJSON(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	record := DeploymentRecord{
		ID:                7,
		AttemptID:         "attempt-123",
		AppName:           "site",
		TargetSlot:        SlotGreen,
		PreviousLiveSlot:  SlotBlue,
		Outcome:           OutcomeSuccess,
		HealthPassed:      true,
		QualityAverage:    95.5,
		QualityAttempts:   1,
		QualityOverridden: false,
		StartedAt:         now,
		FinishedAt:        now,
	}

	jsonData, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("failed to marshal record: %v", err)
	}

	var unmarshaled DeploymentRecord
	if err := json.Unmarshal(jsonData, &unmarshaled); err != nil {
		t.Fatalf("failed to unmarshal record: %v", err)
	}

	if unmarshaled.AttemptID != record.AttemptID {
		t.Errorf("AttemptID = %v, want %v", unmarshaled.AttemptID, record.AttemptID)
	}
	if unmarshaled.TargetSlot != record.TargetSlot {
		t.Errorf("TargetSlot = %v, want %v", unmarshaled.TargetSlot, record.TargetSlot)
	}
	if unmarshaled.QualityAverage != record.QualityAverage {
		t.Errorf("QualityAverage = %v, want %v", unmarshaled.QualityAverage, record.QualityAverage)
	}
	if !unmarshaled.Succeeded() {
		t.Error("record with success outcome should report Succeeded")
	}
}

func TestErrorTaxonomyUnwrap(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
	}{
		{"preflight", &PreflightError{Check: "remote reachability", Err: cause}},
		{"packaging", &PackagingError{SourcePath: "/tmp/site", Err: cause}},
		{"transport", &TransportError{Op: "execute", Host: "h", Err: cause}},
		{"switch", &SwitchError{Slot: SlotGreen, Step: "reload", Err: cause}},
		{"rollback", &RollbackError{Slot: SlotBlue, Attempts: 3, Err: cause}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, cause) {
				t.Errorf("%T should unwrap to its cause", tt.err)
			}
			if tt.err.Error() == "" {
				t.Errorf("%T has empty message", tt.err)
			}
		})
	}
}

func TestQualityGateErrorMessage(t *testing.T) {
	err := &QualityGateError{
		Slot: SlotGreen,
		Result: &QualityResult{
			Average:      65,
			AttemptsUsed: 3,
			Passed:       false,
		},
	}

	msg := err.Error()
	if msg == "" {
		t.Fatal("empty error message")
	}
	// the message must name the slot and the final average
	for _, want := range []string{"green", "65.0", "3"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}
