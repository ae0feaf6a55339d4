package proxy

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"bluegreen-deployment/internal/models"
)

// fakeTransport scripts remote behavior per command substring.
type fakeTransport struct {
	outputs  map[string]string // first matching substring wins
	failOn   string            // commands containing this substring fail
	commands []string
	uploads  []string // local file contents, in upload order
	uploadTo []string
}

func (f *fakeTransport) Host() string { return "test-host" }

func (f *fakeTransport) Upload(ctx context.Context, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.uploads = append(f.uploads, string(data))
	f.uploadTo = append(f.uploadTo, remotePath)
	return nil
}

func (f *fakeTransport) Execute(ctx context.Context, command string) (string, error) {
	f.commands = append(f.commands, command)
	if f.failOn != "" && strings.Contains(command, f.failOn) {
		return "", &models.TransportError{Op: "execute", Host: f.Host(), Err: errors.New("scripted failure")}
	}
	for sub, out := range f.outputs {
		if strings.Contains(command, sub) {
			return out, nil
		}
	}
	return "", nil
}

type fakeRecords struct {
	record *models.DeploymentRecord
	err    error
}

func (f *fakeRecords) LastSuccessful() (*models.DeploymentRecord, error) {
	return f.record, f.err
}

func TestRegistryReadsProxyConfig(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   models.Slot
	}{
		{
			name:   "green marker",
			config: "# live-slot: green\nserver {\n  listen 80;\n}\n",
			want:   models.SlotGreen,
		},
		{
			name:   "blue marker",
			config: "# live-slot: blue\nserver {\n  listen 80;\n}\n",
			want:   models.SlotBlue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{outputs: map[string]string{"cat": tt.config}}
			r := NewRegistry(ft, "/etc/nginx/conf.d/site.conf", nil)

			if got := r.CurrentLiveSlot(context.Background()); got != tt.want {
				t.Errorf("CurrentLiveSlot() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegistryFallsBackToLedger(t *testing.T) {
	ft := &fakeTransport{failOn: "cat"}
	records := &fakeRecords{record: &models.DeploymentRecord{
		TargetSlot: models.SlotGreen,
		Outcome:    models.OutcomeSuccess,
	}}
	r := NewRegistry(ft, "/etc/nginx/conf.d/site.conf", records)

	if got := r.CurrentLiveSlot(context.Background()); got != models.SlotGreen {
		t.Errorf("CurrentLiveSlot() = %v, want green from ledger fallback", got)
	}
}

func TestRegistryDefaultsToBlue(t *testing.T) {
	tests := []struct {
		name    string
		ft      *fakeTransport
		records RecordSource
	}{
		{"no config, no ledger", &fakeTransport{failOn: "cat"}, nil},
		{"no config, empty ledger", &fakeTransport{failOn: "cat"}, &fakeRecords{}},
		{"config without marker", &fakeTransport{outputs: map[string]string{"cat": "server {}\n"}}, &fakeRecords{}},
		{"ledger error", &fakeTransport{failOn: "cat"}, &fakeRecords{err: errors.New("db locked")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(tt.ft, "/etc/nginx/conf.d/site.conf", tt.records)
			if got := r.CurrentLiveSlot(context.Background()); got != models.SlotBlue {
				t.Errorf("CurrentLiveSlot() = %v, want deterministic blue default", got)
			}
		})
	}
}

func newTestSwitcher(ft *fakeTransport) *NginxSwitcher {
	return NewNginxSwitcher(ft, "/etc/nginx/conf.d/site.conf",
		"/etc/nginx/conf.d/site.conf.next", "example.com", 8081, 8082)
}

func TestRenderCarriesSlotMarkerAndPort(t *testing.T) {
	s := newTestSwitcher(&fakeTransport{})

	blue := s.Render(models.SlotBlue)
	green := s.Render(models.SlotGreen)

	if !strings.Contains(blue, "# live-slot: blue") || !strings.Contains(blue, ":8081") {
		t.Errorf("blue config missing marker or port:\n%s", blue)
	}
	if !strings.Contains(green, "# live-slot: green") || !strings.Contains(green, ":8082") {
		t.Errorf("green config missing marker or port:\n%s", green)
	}
	// the registry must be able to read back what the switcher wrote
	if m := liveSlotMarker.FindStringSubmatch(green); m == nil || m[1] != "green" {
		t.Error("rendered config not parseable by the registry marker regexp")
	}
}

func TestSwitchToRunsFullProtocol(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestSwitcher(ft)

	if err := s.SwitchTo(context.Background(), models.SlotGreen); err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}

	// full config staged at the temp path, never written to the live path
	if len(ft.uploadTo) != 1 || ft.uploadTo[0] != "/etc/nginx/conf.d/site.conf.next" {
		t.Fatalf("uploads went to %v, want the staging path only", ft.uploadTo)
	}
	if !strings.Contains(ft.uploads[0], "# live-slot: green") {
		t.Error("staged config does not carry the green marker")
	}

	wantOrder := []string{"mv -f", "nginx -t", "reload nginx"}
	if len(ft.commands) != len(wantOrder) {
		t.Fatalf("commands = %v, want %d steps", ft.commands, len(wantOrder))
	}
	for i, sub := range wantOrder {
		if !strings.Contains(ft.commands[i], sub) {
			t.Errorf("step %d = %q, want command containing %q", i, ft.commands[i], sub)
		}
	}
}

func TestSwitchToFailureIsTypedPerStep(t *testing.T) {
	tests := []struct {
		name     string
		failOn   string
		wantStep string
	}{
		{"activation fails", "mv -f", "activate"},
		{"validation fails", "nginx -t", "validate"},
		{"reload fails", "reload", "reload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{failOn: tt.failOn}
			s := newTestSwitcher(ft)

			err := s.SwitchTo(context.Background(), models.SlotGreen)
			if err == nil {
				t.Fatal("expected switch error")
			}

			var serr *models.SwitchError
			if !errors.As(err, &serr) {
				t.Fatalf("got %T, want SwitchError", err)
			}
			if serr.Step != tt.wantStep {
				t.Errorf("Step = %q, want %q", serr.Step, tt.wantStep)
			}
			if serr.Slot != models.SlotGreen {
				t.Errorf("Slot = %v, want green", serr.Slot)
			}
		})
	}
}

func TestSwitchRollbackIsSameOperation(t *testing.T) {
	// emergency rollback is SwitchTo with the previous slot as argument;
	// after it the registry reports the original live slot again
	ft := &fakeTransport{}
	s := newTestSwitcher(ft)

	if err := s.SwitchTo(context.Background(), models.SlotBlue); err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}

	ft.outputs = map[string]string{"cat": ft.uploads[len(ft.uploads)-1]}
	r := NewRegistry(ft, "/etc/nginx/conf.d/site.conf", nil)
	if got := r.CurrentLiveSlot(context.Background()); got != models.SlotBlue {
		t.Errorf("after rollback switch, live slot = %v, want blue", got)
	}
}
