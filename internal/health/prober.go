package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bluegreen-deployment/internal/logger"
	"bluegreen-deployment/internal/models"
)

// Prober issues the single liveness check against a candidate slot's
// private endpoint. One probe, pass or fail, no retry: a slot that cannot
// answer a liveness request is broken, and retrying would only delay the
// rollback. Retry policy for quality, by contrast, lives in the gate.
type Prober interface {
	Probe(ctx context.Context, slot models.Slot) models.HealthResult
}

// HTTPProber probes http://host:port/ for the slot's private port.
type HTTPProber struct {
	host   string
	ports  map[models.Slot]int
	client *http.Client
}

func NewHTTPProber(host string, bluePort, greenPort int, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		host: host,
		ports: map[models.Slot]int{
			models.SlotBlue:  bluePort,
			models.SlotGreen: greenPort,
		},
		client: &http.Client{Timeout: timeout},
	}
}

// URL returns the slot's private endpoint. The quality gate scores the
// same endpoint, so the mapping lives here.
func (p *HTTPProber) URL(slot models.Slot) string {
	return fmt.Sprintf("http://%s:%d/", p.host, p.ports[slot])
}

func (p *HTTPProber) Probe(ctx context.Context, slot models.Slot) models.HealthResult {
	log := logger.WithModule("health")
	url := p.URL(slot)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.HealthResult{Passed: false, Detail: err.Error()}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		log.WithField("slot", slot).WithError(err).Warn("Health probe request failed")
		return models.HealthResult{Passed: false, Detail: fmt.Sprintf("probe %s: %v", url, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		log.WithField("slot", slot).WithField("status", resp.StatusCode).
			Warn("Health probe returned bad status")
		return models.HealthResult{
			Passed: false,
			Detail: fmt.Sprintf("probe %s: status %d", url, resp.StatusCode),
		}
	}

	log.WithField("slot", slot).WithField("status", resp.StatusCode).
		Debug("Health probe passed")
	return models.HealthResult{
		Passed: true,
		Detail: fmt.Sprintf("status %d", resp.StatusCode),
	}
}
