package client

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewSessionCommand constructs the `session` command group and subcommands.
func NewSessionCommand(baseURL BaseURLFunc) *cobra.Command {
	sessionCmd := &cobra.Command{Use: "session", Short: "Session recording operations"}
	sessionCmd.AddCommand(
		newSessionSendCommand(baseURL),
		newSessionEventsCommand(baseURL),
	)
	return sessionCmd
}

// newSessionSendCommand constructs the `session send` subcommand.
func newSessionSendCommand(baseURL BaseURLFunc) *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send a batch of recorded events to a session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			file, _ := cmd.Flags().GetString("file")
			if session == "" {
				return fmt.Errorf("--session is required")
			}

			var body io.Reader
			if file == "" || file == "-" {
				body = cmd.InOrStdin()
			} else {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				body = f
			}

			endpoint := baseURL() + "/v1/recordings/" + url.PathEscape(session) + "/events"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, endpoint, body)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/jsonl+json")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			out, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusAccepted {
				return fmt.Errorf("send failed: %s: %s", resp.Status, strings.TrimSpace(string(out)))
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(out)))
			return nil
		},
	}
	sendCmd.Flags().StringP("session", "s", "", "Session id")
	sendCmd.Flags().StringP("file", "f", "-", "JSONL file of envelopes (- for stdin)")
	return sendCmd
}

// newSessionEventsCommand constructs the `session events` subcommand.
func newSessionEventsCommand(baseURL BaseURLFunc) *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Fetch the ordered event stream for a session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			filter, _ := cmd.Flags().GetString("filter")
			if session == "" {
				return fmt.Errorf("--session is required")
			}

			endpoint := baseURL() + "/v1/recordings/" + url.PathEscape(session) + "/events"
			if filter != "" {
				endpoint += "?filter=" + url.QueryEscape(filter)
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				out, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("read failed: %s: %s", resp.Status, strings.TrimSpace(string(out)))
			}
			if resp.Header.Get("X-Rewind-Incomplete") == "true" {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: stream incomplete, some objects were unavailable")
			}
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}
	eventsCmd.Flags().StringP("session", "s", "", "Session id")
	eventsCmd.Flags().String("filter", "", "CEL filter (server-side)")
	return eventsCmd
}
