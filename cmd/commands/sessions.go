package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
)

// sessionSummary mirrors internal/session.Summary, the JSON shape served by
// GET /api/sessions. Declared locally rather than imported so the CLI binary
// does not pull in the session package's emulator/events dependencies.
type sessionSummary struct {
	SessionID  string `json:"sessionId"`
	Attached   bool   `json:"attached"`
	RunningAST string `json:"runningAst,omitempty"`
}

// NewSessionsCommand returns the sessions subcommand, a thin HTTP client
// against the running gateway's /api/sessions endpoint.
func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Inspect sessions on a running gateway",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List active sessions",
				Flags:  []cli.Flag{gatewayFlag},
				Action: runSessionsList,
			},
		},
		DefaultCommand: "list",
	}
}

func runSessionsList(ctx context.Context, cmd *cli.Command) error {
	base := gatewayBaseURL(cmd)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/sessions", nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway not reachable at %s: %w", base, err)
	}
	defer resp.Body.Close()

	var sessions []sessionSummary
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return fmt.Errorf("decode sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No active sessions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION ID\tATTACHED\tRUNNING AST")
	for _, s := range sessions {
		ast := s.RunningAST
		if ast == "" {
			ast = "-"
		}
		fmt.Fprintf(w, "%s\t%t\t%s\n", s.SessionID, s.Attached, ast)
	}
	return w.Flush()
}
