package proxy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"bluegreen-deployment/internal/logger"
	"bluegreen-deployment/internal/models"
	"bluegreen-deployment/internal/transport"
)

// Switcher redirects public traffic to a slot. This is the only component
// allowed to touch the proxy configuration, and it only ever replaces the
// whole file: render, stage, activate, validate, reload. Rollback is the
// same operation run with the previous slot as argument.
type Switcher interface {
	SwitchTo(ctx context.Context, slot models.Slot) error
}

// NginxSwitcher rewrites and reloads an nginx site configuration.
type NginxSwitcher struct {
	transport  transport.Transport
	configPath string
	tempPath   string
	serverName string
	slotPorts  map[models.Slot]int
}

func NewNginxSwitcher(t transport.Transport, configPath, tempPath, serverName string, bluePort, greenPort int) *NginxSwitcher {
	return &NginxSwitcher{
		transport:  t,
		configPath: configPath,
		tempPath:   tempPath,
		serverName: serverName,
		slotPorts: map[models.Slot]int{
			models.SlotBlue:  bluePort,
			models.SlotGreen: greenPort,
		},
	}
}

const configTemplate = `# live-slot: %s
# managed by bluegreen-deployment; do not edit by hand
server {
    listen 80;
    server_name %s;

    location / {
        proxy_pass http://127.0.0.1:%d;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
    }
}
`

// Render produces the full site configuration for a slot.
func (s *NginxSwitcher) Render(slot models.Slot) string {
	return fmt.Sprintf(configTemplate, slot, s.serverName, s.slotPorts[slot])
}

func (s *NginxSwitcher) SwitchTo(ctx context.Context, slot models.Slot) error {
	log := logger.WithModule("switch")
	log.WithField("slot", slot).Info("Switching public traffic")

	local, err := s.stageLocal(slot)
	if err != nil {
		return &models.SwitchError{Slot: slot, Step: "render", Err: err}
	}
	defer os.Remove(local)

	// Stage the full new config next to the active one; the active file is
	// never mutated incrementally.
	if err := s.transport.Upload(ctx, local, s.tempPath); err != nil {
		return &models.SwitchError{Slot: slot, Step: "stage", Err: err}
	}

	if _, err := s.transport.Execute(ctx, fmt.Sprintf("sudo mv -f %s %s", s.tempPath, s.configPath)); err != nil {
		return &models.SwitchError{Slot: slot, Step: "activate", Err: err}
	}

	// nginx keeps serving the previously loaded config until the reload,
	// so a validation failure here leaves traffic untouched on disk-level
	// breakage; the orchestrator still treats it as a switch failure.
	if out, err := s.transport.Execute(ctx, "sudo nginx -t"); err != nil {
		return &models.SwitchError{Slot: slot, Step: "validate",
			Err: fmt.Errorf("%w: %s", err, out)}
	}

	if _, err := s.transport.Execute(ctx, "sudo systemctl reload nginx"); err != nil {
		return &models.SwitchError{Slot: slot, Step: "reload", Err: err}
	}

	log.WithField("slot", slot).Info("Traffic switch complete")
	return nil
}

func (s *NginxSwitcher) stageLocal(slot models.Slot) (string, error) {
	f, err := os.CreateTemp("", "nginx-site-*.conf")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(s.Render(slot)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return filepath.Clean(f.Name()), nil
}
