package quality

import (
	"context"

	"bluegreen-deployment/internal/logger"
	"bluegreen-deployment/internal/models"

	"github.com/sirupsen/logrus"
)

// Gate scores a candidate slot until it clears the threshold or attempts
// run out. The retry policy is an explicit bounded loop carrying the last
// result: one passing run is sufficient evidence of compliance, but a
// failure verdict must show the most recent state, not an arbitrary
// earlier run.
type Gate struct {
	Scorer      Scorer
	Threshold   float64
	MaxAttempts int
	// Sleep is called between attempts; tests replace it.
	Sleep func(ctx context.Context)
}

// Validate runs the gate against the slot's URL. A scorer call that
// errors counts as a zero-score attempt, never a crash.
func (g *Gate) Validate(ctx context.Context, slot models.Slot, url string) *models.QualityResult {
	log := logger.WithModule("quality")

	maxAttempts := g.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last *models.QualityResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		scores, err := g.Scorer.Score(ctx, url)
		if err != nil {
			log.WithFields(logrus.Fields{
				"slot":    slot,
				"attempt": attempt,
			}).WithError(err).Warn("Scorer call failed, counting as zero-score attempt")
			scores = map[string]float64{}
		}

		avg := average(scores)
		last = &models.QualityResult{
			Scores:       scores,
			Average:      avg,
			Passed:       avg >= g.Threshold,
			AttemptsUsed: attempt,
		}

		log.WithFields(logrus.Fields{
			"slot":      slot,
			"attempt":   attempt,
			"average":   avg,
			"threshold": g.Threshold,
			"passed":    last.Passed,
		}).Info("Quality attempt scored")

		if last.Passed {
			return last
		}
		if attempt < maxAttempts {
			g.Sleep(ctx)
		}
	}

	return last
}

func average(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}
