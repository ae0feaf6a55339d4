package quality

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Scorer rates a URL against a fixed rubric and returns 0-100 per
// category. The scoring algorithm is opaque to this package; scorers are
// assumed flaky, which is why the gate retries.
type Scorer interface {
	Score(ctx context.Context, url string) (map[string]float64, error)
}

// HTTPScorer calls an external scoring service.
type HTTPScorer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPScorer(endpoint string, timeout time.Duration) *HTTPScorer {
	return &HTTPScorer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPScorer) Score(ctx context.Context, url string) (map[string]float64, error) {
	payload, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call scorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scorer returned status: %d", resp.StatusCode)
	}

	var scoreResp struct {
		Scores map[string]float64 `json:"scores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&scoreResp); err != nil {
		return nil, fmt.Errorf("failed to decode scorer response: %w", err)
	}
	return scoreResp.Scores, nil
}
