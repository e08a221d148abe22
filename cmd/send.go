package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"nanoclaw-sidecar/api"

	"github.com/briandowns/spinner"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// maxResponseBytes bounds how much of a sidecar response is read.
const maxResponseBytes = 1 << 20

// newSendCmd creates the 'send' subcommand
func newSendCmd() *cobra.Command {
	var (
		group   string
		baseURL string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message through a running sidecar",
		Long: `POST the message to a running sidecar's /send endpoint and print the IPC
file it created. Without --group the sidecar's default group is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			req := api.SendRequest{Message: &args[0]}
			if group != "" {
				req.Group = &group
			}

			var s *spinner.Spinner
			if !outputJSON && !quiet {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriterFile(os.Stderr))
				s.Suffix = " Sending message..."
				s.Start()
			}

			resp, err := postSend(ctx, baseURL, req)

			if s != nil {
				s.Stop()
			}

			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return outputAsJSON(out, resp)
			}
			successColor.Fprintln(out, "✓ Message queued for nanoclaw")
			fmt.Fprintf(out, "  %-8s %s\n", "File:", resp.File)
			return nil
		},
	}

	cmd.Flags().StringVarP(&group, "group", "g", "", "Target group (default: the sidecar's DEFAULT_GROUP)")
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:5000", "Sidecar base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultTimeout, "Request timeout")

	return cmd
}

// postSend calls POST <baseURL>/send and decodes the result.
func postSend(ctx context.Context, baseURL string, body api.SendRequest) (*api.SendResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := strings.TrimRight(baseURL, "/") + "/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("invalid sidecar URL %q: %w", baseURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.RequestIDHeader, uuid.New().String())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach sidecar at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read sidecar response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("send failed (%d): %s", resp.StatusCode, errorDetail(data))
	}

	var out api.SendResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unexpected sidecar response: %w", err)
	}
	return &out, nil
}

// errorDetail extracts the detail of an error body, which is either a
// string or a list of validation issues.
func errorDetail(data []byte) string {
	var plain api.ErrorResponse
	if err := json.Unmarshal(data, &plain); err == nil && plain.Detail != "" {
		return plain.Detail
	}

	var validation api.ValidationErrorResponse
	if err := json.Unmarshal(data, &validation); err == nil && len(validation.Detail) > 0 {
		msgs := make([]string, 0, len(validation.Detail))
		for _, issue := range validation.Detail {
			msgs = append(msgs, fmt.Sprintf("%s: %s", strings.Join(issue.Loc, "."), issue.Msg))
		}
		return strings.Join(msgs, "; ")
	}

	return strings.TrimSpace(string(data))
}
