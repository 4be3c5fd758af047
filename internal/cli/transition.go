package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"uberfix/internal/domain"
)

type transitionOutput struct {
	OK         bool                 `json:"ok" yaml:"ok"`
	Message    string               `json:"message,omitempty" yaml:"message,omitempty"`
	RequestID  string               `json:"request_id" yaml:"request_id"`
	From       domain.WorkflowStage `json:"from_stage" yaml:"from_stage"`
	To         domain.WorkflowStage `json:"to_stage" yaml:"to_stage"`
	Status     domain.LegacyStatus  `json:"status" yaml:"status"`
	ArchivedAt *time.Time           `json:"archived_at" yaml:"archived_at"`
	Changed    bool                 `json:"changed" yaml:"changed"`
	Progress   domain.Projection    `json:"progress" yaml:"progress"`
}

type transitionOptions struct {
	actor string
	note  string
}

func NewTransitionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &transitionOptions{}

	cmd := &cobra.Command{
		Use:   "transition <request-id> <stage>",
		Short: "Move a maintenance request to another stage through the API",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, rootOpts, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.actor, "actor", envOr("USER", ""), "who is making the change")
	cmd.Flags().StringVar(&opts.note, "note", "", "free-form note stored with the stage history")

	return cmd
}

func runTransition(cmd *cobra.Command, rootOpts *RootOptions, opts *transitionOptions, requestID, stage string) error {
	// Reject typos locally; the API would answer 400 anyway.
	if !domain.IsKnownStage(stage) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown stage %q", stage))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
	defer cancel()

	out, err := postTransition(ctx, rootOpts, requestID, map[string]string{
		"stage": stage,
		"actor": opts.actor,
		"note":  opts.note,
	})
	if err != nil {
		return err
	}

	f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	return f.Print(out, func(w io.Writer) error {
		if !out.Changed {
			fmt.Fprintf(w, "%s already in %s\n", out.RequestID, out.To)
		} else {
			fmt.Fprintf(w, "%s: %s -> %s (%s, %d%%)\n", out.RequestID, out.From, out.To, out.Status, out.Progress.ProgressPercent)
		}
		if out.ArchivedAt != nil {
			fmt.Fprintf(w, "archived at %s\n", out.ArchivedAt.Format(time.RFC3339))
		}
		return nil
	})
}

func postTransition(ctx context.Context, rootOpts *RootOptions, requestID string, body map[string]string) (transitionOutput, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return transitionOutput{}, WrapExitError(ExitCommandError, "encode request", err)
	}

	endpoint := strings.TrimRight(rootOpts.APIURL, "/") + "/v1/requests/" + url.PathEscape(requestID) + "/transition"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return transitionOutput{}, WrapExitError(ExitCommandError, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if rootOpts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+rootOpts.Token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return transitionOutput{}, WrapExitError(ExitCommandError, "call API", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return transitionOutput{}, WrapExitError(ExitCommandError, "read response", err)
	}

	var out transitionOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return transitionOutput{}, WrapExitError(ExitCommandError, fmt.Sprintf("decode response (status %d)", resp.StatusCode), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.OK {
		msg := out.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return transitionOutput{}, NewExitError(ExitFailure, fmt.Sprintf("transition rejected (%d): %s", resp.StatusCode, msg))
	}
	return out, nil
}
