package quality

import (
	"context"
	"errors"
	"testing"

	"bluegreen-deployment/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedScorer returns each response in order; responses beyond the
// script repeat the last one.
type scriptedScorer struct {
	responses []map[string]float64
	errs      []error
	calls     int
}

func (s *scriptedScorer) Score(ctx context.Context, url string) (map[string]float64, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.responses[i], err
}

func scores(vals ...float64) map[string]float64 {
	categories := []string{"performance", "accessibility", "best-practices", "seo"}
	m := map[string]float64{}
	for i, v := range vals {
		m[categories[i]] = v
	}
	return m
}

func newGate(s Scorer, attempts int) *Gate {
	return &Gate{
		Scorer:      s,
		Threshold:   90,
		MaxAttempts: attempts,
		Sleep:       func(ctx context.Context) {},
	}
}

func TestGateStopsAtFirstPass(t *testing.T) {
	scorer := &scriptedScorer{responses: []map[string]float64{
		scores(95, 95, 95, 95),
	}}
	gate := newGate(scorer, 3)

	result := gate.Validate(context.Background(), models.SlotGreen, "http://host:8082/")

	require.True(t, result.Passed)
	assert.Equal(t, 1, result.AttemptsUsed)
	assert.Equal(t, 1, scorer.calls, "gate must stop as soon as one attempt passes")
	assert.InDelta(t, 95, result.Average, 0.001)
}

func TestGatePassesOnLaterAttempt(t *testing.T) {
	scorer := &scriptedScorer{responses: []map[string]float64{
		scores(60, 60, 60, 60),
		scores(92, 90, 94, 96),
	}}
	gate := newGate(scorer, 3)

	result := gate.Validate(context.Background(), models.SlotGreen, "http://host:8082/")

	require.True(t, result.Passed)
	assert.Equal(t, 2, result.AttemptsUsed)
	assert.Equal(t, 2, scorer.calls)
}

func TestGateReportsLastAttemptOnExhaustion(t *testing.T) {
	// scores 60, 70, 65 with threshold 90: failure verdict must carry
	// the third attempt's average, not an earlier or best run
	scorer := &scriptedScorer{responses: []map[string]float64{
		scores(60, 60, 60, 60),
		scores(70, 70, 70, 70),
		scores(65, 65, 65, 65),
	}}
	gate := newGate(scorer, 3)

	result := gate.Validate(context.Background(), models.SlotGreen, "http://host:8082/")

	require.False(t, result.Passed)
	assert.Equal(t, 3, result.AttemptsUsed)
	assert.Equal(t, 3, scorer.calls, "gate must never exceed MaxAttempts scorer calls")
	assert.InDelta(t, 65, result.Average, 0.001)
}

func TestGateNeverExceedsMaxAttempts(t *testing.T) {
	scorer := &scriptedScorer{responses: []map[string]float64{
		scores(10, 10, 10, 10),
	}}
	gate := newGate(scorer, 5)

	result := gate.Validate(context.Background(), models.SlotBlue, "http://host:8081/")

	require.False(t, result.Passed)
	assert.Equal(t, 5, scorer.calls)
}

func TestGateScorerErrorCountsAsZero(t *testing.T) {
	scorer := &scriptedScorer{
		responses: []map[string]float64{
			nil,
			scores(95, 95, 95, 95),
		},
		errs: []error{errors.New("connection reset")},
	}
	gate := newGate(scorer, 3)

	result := gate.Validate(context.Background(), models.SlotGreen, "http://host:8082/")

	// the failed call burned an attempt but did not crash the gate
	require.True(t, result.Passed)
	assert.Equal(t, 2, result.AttemptsUsed)
}

func TestGateAllErrorsYieldZeroAverage(t *testing.T) {
	failing := errors.New("timeout")
	scorer := &scriptedScorer{
		responses: []map[string]float64{nil, nil, nil},
		errs:      []error{failing, failing, failing},
	}
	gate := newGate(scorer, 3)

	result := gate.Validate(context.Background(), models.SlotGreen, "http://host:8082/")

	require.False(t, result.Passed)
	assert.Zero(t, result.Average)
	assert.Equal(t, 3, result.AttemptsUsed)
}

func TestGateSleepsBetweenAttemptsOnly(t *testing.T) {
	scorer := &scriptedScorer{responses: []map[string]float64{
		scores(10, 10, 10, 10),
	}}
	sleeps := 0
	gate := &Gate{
		Scorer:      scorer,
		Threshold:   90,
		MaxAttempts: 3,
		Sleep:       func(ctx context.Context) { sleeps++ },
	}

	gate.Validate(context.Background(), models.SlotGreen, "http://host:8082/")

	// no trailing sleep after the final attempt
	assert.Equal(t, 2, sleeps)
}

func TestAverage(t *testing.T) {
	tests := []struct {
		name   string
		scores map[string]float64
		want   float64
	}{
		{"empty map is zero", map[string]float64{}, 0},
		{"single category", map[string]float64{"performance": 88}, 88},
		{"mixed categories", scores(80, 90, 100, 70), 85},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, average(tt.scores), 0.001)
		})
	}
}
