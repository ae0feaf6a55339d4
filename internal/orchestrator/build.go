package orchestrator

import (
	"context"
	"time"

	"bluegreen-deployment/internal/config"
	"bluegreen-deployment/internal/health"
	"bluegreen-deployment/internal/ledger"
	"bluegreen-deployment/internal/packager"
	"bluegreen-deployment/internal/proxy"
	"bluegreen-deployment/internal/quality"
	"bluegreen-deployment/internal/transport"
)

// SwitcherFromConfig builds just the nginx traffic switch, for manual
// rollback from the CLI.
func SwitcherFromConfig(cfg *config.Config) proxy.Switcher {
	t := transport.NewSSH(cfg.RemoteHost, cfg.RemoteUser, cfg.SSHPort, cfg.SSHIdentity, cfg.RemoteTimeout)
	return proxy.NewNginxSwitcher(t, cfg.ProxyConfigPath, cfg.ProxyTempPath,
		cfg.ServerName, cfg.BluePort, cfg.GreenPort)
}

// FromConfig wires the production collaborators: SSH transport, nginx
// registry and switcher, HTTP prober and scorer, SQLite ledger. The
// registry is returned as well since status surfaces read it directly.
func FromConfig(cfg *config.Config, led *ledger.Ledger) (*Orchestrator, *proxy.Registry) {
	t := transport.NewSSH(cfg.RemoteHost, cfg.RemoteUser, cfg.SSHPort, cfg.SSHIdentity, cfg.RemoteTimeout)
	registry := proxy.NewRegistry(t, cfg.ProxyConfigPath, led)
	prober := health.NewHTTPProber(cfg.RemoteHost, cfg.BluePort, cfg.GreenPort, 10*time.Second)
	switcher := proxy.NewNginxSwitcher(t, cfg.ProxyConfigPath, cfg.ProxyTempPath,
		cfg.ServerName, cfg.BluePort, cfg.GreenPort)

	gate := &quality.Gate{
		Scorer:      quality.NewHTTPScorer(cfg.ScorerURL, 2*time.Minute),
		Threshold:   cfg.QualityThreshold,
		MaxAttempts: cfg.QualityAttempts,
		Sleep: func(ctx context.Context) {
			select {
			case <-ctx.Done():
			case <-time.After(cfg.QualityInterval):
			}
		},
	}

	o := New(cfg, Deps{
		Packager:  packager.New(),
		Transport: t,
		Registry:  registry,
		Prober:    prober,
		Gate:      gate,
		Switcher:  switcher,
		Rollback:  NewRollbackController(switcher, t, cfg.RemoteRoot),
		Ledger:    led,
	})
	return o, registry
}
