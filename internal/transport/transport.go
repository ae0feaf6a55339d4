package transport

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"bluegreen-deployment/internal/logger"
	"bluegreen-deployment/internal/models"

	"github.com/sirupsen/logrus"
)

// Transport moves bytes to the remote host and runs commands there. It is
// a thin, non-retrying primitive: all retry, backoff and rollback policy
// belongs to the orchestrator and the quality gate.
type Transport interface {
	// Upload copies a local file to remotePath on the host.
	Upload(ctx context.Context, localPath, remotePath string) error
	// Execute runs a shell command on the host and returns its combined output.
	Execute(ctx context.Context, command string) (string, error)
	// Host returns the target host, for logging and error attribution.
	Host() string
}

// SSHTransport implements Transport over the system ssh/scp binaries with
// batch mode forced so a missing key fails fast instead of prompting.
type SSHTransport struct {
	host     string
	user     string
	port     string
	identity string
	timeout  time.Duration
	logger   *logrus.Entry
}

func NewSSH(host, user, port, identity string, timeout time.Duration) *SSHTransport {
	return &SSHTransport{
		host:     host,
		user:     user,
		port:     port,
		identity: identity,
		timeout:  timeout,
		logger:   logger.WithModule("transport"),
	}
}

func (t *SSHTransport) Host() string { return t.host }

func (t *SSHTransport) Upload(ctx context.Context, localPath, remotePath string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := t.commonArgs()
	args = append(args, "-P", t.port, localPath,
		fmt.Sprintf("%s@%s:%s", t.user, t.host, remotePath))

	t.logger.WithFields(logrus.Fields{
		"local":  localPath,
		"remote": remotePath,
	}).Debug("Uploading file")

	out, err := exec.CommandContext(ctx, "scp", args...).CombinedOutput()
	if err != nil {
		return &models.TransportError{
			Op:     "upload " + remotePath,
			Host:   t.host,
			Output: strings.TrimSpace(string(out)),
			Err:    err,
		}
	}
	return nil
}

func (t *SSHTransport) Execute(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := t.commonArgs()
	args = append(args, "-p", t.port,
		fmt.Sprintf("%s@%s", t.user, t.host), command)

	t.logger.WithField("command", command).Debug("Executing remote command")

	out, err := exec.CommandContext(ctx, "ssh", args...).CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, &models.TransportError{
			Op:     "execute",
			Host:   t.host,
			Output: output,
			Err:    err,
		}
	}
	return output, nil
}

func (t *SSHTransport) commonArgs() []string {
	args := []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		"-o", "ConnectTimeout=10",
	}
	if t.identity != "" {
		args = append(args, "-i", t.identity)
	}
	return args
}
