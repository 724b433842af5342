package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"trackio.app/trackio/internal/model"
)

// Outcome classifies a delivery attempt. Exactly one of three things is true
// afterward: the batch was accepted, the credential is dead, or the failure
// is worth retrying.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	// OutcomeInvalidKey means the credential was rejected: stop sending
	// entirely and require operator intervention.
	OutcomeInvalidKey
	// OutcomeTransient means the whole batch must be re-queued at the front
	// of the pending queue. Batches are atomic; there is no partial re-queue.
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeInvalidKey:
		return "invalid_key"
	default:
		return "transient"
	}
}

// Transport delivers one batch across the boundary to the ingestion
// endpoint.
type Transport interface {
	Send(ctx context.Context, payload model.BatchPayload) (Outcome, error)
}

// HTTPTransport posts batches directly to the ingestion endpoint.
type HTTPTransport struct {
	client *http.Client
	url    string
	apiKey string
}

func NewHTTPTransport(baseURL, apiKey string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
		url:    baseURL + "/api/v1/heartbeats",
		apiKey: apiKey,
	}
}

func (t *HTTPTransport) Send(ctx context.Context, payload model.BatchPayload) (Outcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutcomeTransient, fmt.Errorf("encoding batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return OutcomeTransient, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", t.apiKey)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := t.client.Do(req)
	if err != nil {
		return OutcomeTransient, fmt.Errorf("sending batch: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return OutcomeAccepted, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return OutcomeInvalidKey, fmt.Errorf("api key rejected (status %d)", resp.StatusCode)
	default:
		return OutcomeTransient, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// Subprocess exit codes shared with the companion CLI.
const (
	ExitSuccess    = 0
	ExitAPIError   = 102
	ExitInvalidKey = 104
)

// SubprocessTransport delegates delivery to the companion CLI: the batch is
// written to its stdin and the exit code signals the outcome.
type SubprocessTransport struct {
	cliPath string
	apiKey  string
	apiURL  string
	plugin  string
	timeout time.Duration
}

func NewSubprocessTransport(cliPath, apiKey, apiURL, plugin string, timeout time.Duration) *SubprocessTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SubprocessTransport{
		cliPath: cliPath,
		apiKey:  apiKey,
		apiURL:  apiURL,
		plugin:  plugin,
		timeout: timeout,
	}
}

func (t *SubprocessTransport) Send(ctx context.Context, payload model.BatchPayload) (Outcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutcomeTransient, fmt.Errorf("encoding batch: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.cliPath,
		"--key", t.apiKey,
		"--api-url", t.apiURL,
		"--plugin", t.plugin,
	)
	cmd.Stdin = bytes.NewReader(body)

	// Diagnostic output is irrelevant when the exit code is zero.
	out, err := cmd.CombinedOutput()
	if err == nil {
		return OutcomeAccepted, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case ExitInvalidKey:
			return OutcomeInvalidKey, fmt.Errorf("cli rejected api key: %s", bytes.TrimSpace(out))
		case ExitAPIError:
			return OutcomeTransient, fmt.Errorf("cli api error: %s", bytes.TrimSpace(out))
		}
	}
	return OutcomeTransient, fmt.Errorf("cli failed: %w", err)
}
