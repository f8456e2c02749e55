package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/urfave/cli/v3"
)

// astDescriptor mirrors internal/ast.Descriptor, the JSON shape served by
// GET /api/asts.
type astDescriptor struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	SupportsParallel bool   `json:"supports_parallel"`
}

// NewASTCommand returns the ast subcommand: catalog listing plus thin WS
// clients for driving one-off runs against a session.
func NewASTCommand() *cli.Command {
	return &cli.Command{
		Name:  "ast",
		Usage: "Inspect and run ASTs against a gateway",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List the registered AST catalog",
				Flags:  []cli.Flag{gatewayFlag},
				Action: runASTList,
			},
			{
				Name:      "run",
				Usage:     "Run an AST against a session",
				ArgsUsage: "<ast-name>",
				Flags: []cli.Flag{
					gatewayFlag,
					&cli.StringFlag{Name: "session", Usage: "Session ID to run against", Required: true},
					&cli.StringFlag{Name: "username", Usage: "Mainframe user ID", Required: true},
					&cli.StringFlag{Name: "password", Usage: "Mainframe password", Required: true},
					&cli.BoolFlag{Name: "parallel", Usage: "Run unattended across a worker pool"},
					&cli.IntFlag{Name: "max-sessions", Usage: "Worker pool size for a parallel run", Value: 5},
				},
				Action: runASTRun,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel the AST running on a session",
				ArgsUsage: "<session-id>",
				Flags:     []cli.Flag{gatewayFlag},
				Action:    runASTCancel,
			},
		},
		DefaultCommand: "list",
	}
}

func runASTList(ctx context.Context, cmd *cli.Command) error {
	base := gatewayBaseURL(cmd)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/asts", nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway not reachable at %s: %w", base, err)
	}
	defer resp.Body.Close()

	var descs []astDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&descs); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPARALLEL\tDESCRIPTION")
	for _, d := range descs {
		fmt.Fprintf(w, "%s\t%t\t%s\n", d.Name, d.SupportsParallel, d.Description)
	}
	return w.Flush()
}

// astRunFrame mirrors internal/gateway/ws.Frame's wire shape, scoped to the
// request/response fields a CLI client needs (no event/session_id).
type astRunFrame struct {
	Type    string         `json:"type"`
	ID      string         `json:"id,omitempty"`
	Method  string         `json:"method,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	OK      *bool          `json:"ok,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func runASTRun(ctx context.Context, cmd *cli.Command) error {
	astName := cmd.Args().First()
	if astName == "" {
		return fmt.Errorf("usage: iastctl ast run <ast-name> --session <id> --username <u> --password <p>")
	}

	wsURL := wsBaseURL(gatewayBaseURL(cmd)) + "/session/" + cmd.String("session")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	req := astRunFrame{
		Type:   "req",
		ID:     "cli-1",
		Method: "ast.run",
		Params: map[string]any{
			"astName": astName,
			"params": map[string]any{
				"username":    cmd.String("username"),
				"password":    cmd.String("password"),
				"parallel":    cmd.Bool("parallel"),
				"maxSessions": cmd.Int("max-sessions"),
			},
		},
	}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		return fmt.Errorf("send ast.run: %w", err)
	}

	var resp astRunFrame
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("ast.run failed: %s", resp.Error)
	}

	out, _ := json.MarshalIndent(resp.Payload, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runASTCancel(ctx context.Context, cmd *cli.Command) error {
	sessionID := cmd.Args().First()
	if sessionID == "" {
		return fmt.Errorf("usage: iastctl ast cancel <session-id>")
	}

	wsURL := wsBaseURL(gatewayBaseURL(cmd)) + "/session/" + sessionID
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	req := astRunFrame{Type: "req", ID: "cli-1", Method: "ast.cancel"}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		return fmt.Errorf("send ast.cancel: %w", err)
	}

	var resp astRunFrame
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("ast.cancel failed: %s", resp.Error)
	}
	fmt.Println("cancelled")
	return nil
}

// wsBaseURL rewrites an http(s):// gateway base URL to ws(s)://.
func wsBaseURL(base string) string {
	switch {
	case len(base) >= 5 && base[:5] == "https":
		return "wss" + base[5:]
	case len(base) >= 4 && base[:4] == "http":
		return "ws" + base[4:]
	default:
		return base
	}
}
