// trackio-cli is the companion executable editor plugins shell out to when
// they cannot speak HTTP themselves. It reads one batch payload as JSON from
// stdin, posts it to the ingestion endpoint, and signals the outcome through
// its exit code:
//
//	0   batch accepted
//	102 api/network failure (caller should retry later)
//	104 invalid api key (caller must stop sending and reconfigure)
//	1   anything else (bad flags, unreadable stdin)
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"trackio.app/trackio/internal/agent"
	"trackio.app/trackio/internal/model"
)

var version = "dev"

func main() {
	var (
		key     string
		apiURL  string
		plugin  string
		timeout time.Duration
	)

	root := &cobra.Command{
		Use:           "trackio-cli",
		Short:         "Send a heartbeat batch from stdin to the trackio ingestion API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, ok, err := readPayload(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no data received, nothing to send")
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			transport := agent.NewHTTPTransport(apiURL, key, timeout)
			outcome, sendErr := transport.Send(ctx, payload)
			switch outcome {
			case agent.OutcomeAccepted:
				fmt.Fprintf(cmd.OutOrStdout(), "sent %d heartbeat(s) from %s\n",
					len(payload.Heartbeats), plugin)
				return nil
			case agent.OutcomeInvalidKey:
				fmt.Fprintln(cmd.ErrOrStderr(), "error: invalid api key")
				os.Exit(agent.ExitInvalidKey)
			default:
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", sendErr)
				os.Exit(agent.ExitAPIError)
			}
			return nil
		},
	}

	root.Flags().StringVar(&key, "key", "", "plaintext api key (required)")
	root.Flags().StringVar(&apiURL, "api-url", "https://trackio.app", "ingestion api base url")
	root.Flags().StringVar(&plugin, "plugin", "unknown", "client identifier, e.g. vscode/1.2.3")
	root.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	_ = root.MarkFlagRequired("key")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// readPayload parses the batch from stdin. ok is false when there is nothing
// to send, which is a success no-op rather than an error: editor plugins
// flush on a timer and frequently have an empty queue.
func readPayload(in io.Reader) (payload model.BatchPayload, ok bool, err error) {
	raw, err := io.ReadAll(in)
	if err != nil {
		return model.BatchPayload{}, false, fmt.Errorf("reading stdin: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return model.BatchPayload{}, false, nil
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return model.BatchPayload{}, false, fmt.Errorf("parsing stdin payload: %w", err)
	}
	if len(payload.Heartbeats) == 0 {
		return model.BatchPayload{}, false, nil
	}
	if payload.Timezone == "" {
		payload.Timezone = "UTC"
	}
	return payload, true, nil
}
