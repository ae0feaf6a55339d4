package proxy

import (
	"context"
	"regexp"

	"bluegreen-deployment/internal/logger"
	"bluegreen-deployment/internal/models"
	"bluegreen-deployment/internal/transport"
)

// RecordSource is the ledger view the registry needs for its fallback.
type RecordSource interface {
	LastSuccessful() (*models.DeploymentRecord, error)
}

// Registry determines which slot is live. The answer is always derived
// from reality: first the active proxy configuration on the remote host,
// then the ledger's last successful switch. It is never cached in-process,
// so a restart recovers the correct state by re-reading it.
type Registry struct {
	transport  transport.Transport
	configPath string
	records    RecordSource
}

func NewRegistry(t transport.Transport, configPath string, records RecordSource) *Registry {
	return &Registry{transport: t, configPath: configPath, records: records}
}

var liveSlotMarker = regexp.MustCompile(`(?m)^#\s*live-slot:\s*(blue|green)\s*$`)

// CurrentLiveSlot returns the live slot. When neither the proxy config nor
// the ledger can answer (first deployment ever), blue is live by
// definition, which makes green the first deployment target. The default
// is deterministic: an unstable default would deploy over live traffic.
func (r *Registry) CurrentLiveSlot(ctx context.Context) models.Slot {
	log := logger.WithModule("registry")

	out, err := r.transport.Execute(ctx, "cat "+r.configPath)
	if err == nil {
		if m := liveSlotMarker.FindStringSubmatch(out); m != nil {
			slot := models.Slot(m[1])
			log.WithField("slot", slot).Debug("Live slot read from proxy config")
			return slot
		}
		log.Warn("Proxy config present but carries no live-slot marker")
	} else {
		log.WithError(err).Debug("Proxy config not readable, falling back to ledger")
	}

	if r.records != nil {
		rec, err := r.records.LastSuccessful()
		if err == nil && rec != nil && rec.TargetSlot.Valid() {
			log.WithField("slot", rec.TargetSlot).Debug("Live slot taken from ledger fallback")
			return rec.TargetSlot
		}
	}

	log.Info("No live slot on record, defaulting to blue")
	return models.SlotBlue
}
