package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
)

// scheduledJob mirrors internal/scheduler.ScheduledJob's JSON shape, served
// by /api/schedules. Declared locally so the CLI binary does not pull in the
// scheduler package's sqlite/age dependencies.
type scheduledJob struct {
	ID             string         `json:"id,omitempty"`
	ASTName        string         `json:"ast_name"`
	Params         map[string]any `json:"params,omitempty"`
	CredentialName string         `json:"credential_name"`
	SessionID      string         `json:"session_id"`
	CronSpec       string         `json:"cron_spec,omitempty"`
	IntervalSec    int            `json:"interval_sec,omitempty"`
	MaxSessions    int            `json:"max_sessions,omitempty"`
	RunCount       int            `json:"run_count"`
	Enabled        bool           `json:"enabled"`
}

// NewScheduleCommand returns the schedule subcommand, a thin HTTP client
// against the running gateway's /api/schedules endpoints.
func NewScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Manage cron/interval-triggered unattended AST runs",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List scheduled jobs",
				Flags:  []cli.Flag{gatewayFlag},
				Action: runScheduleList,
			},
			{
				Name:  "add",
				Usage: "Add a scheduled job",
				Flags: []cli.Flag{
					gatewayFlag,
					&cli.StringFlag{Name: "ast", Usage: "AST name", Required: true},
					&cli.StringFlag{Name: "credential", Usage: "Named credential to authenticate with", Required: true},
					&cli.StringFlag{Name: "session", Usage: "Session ID to tag triggered runs with", Required: true},
					&cli.StringFlag{Name: "cron", Usage: "Cron expression (mutually exclusive with --interval)"},
					&cli.IntFlag{Name: "interval", Usage: "Interval in seconds (mutually exclusive with --cron)"},
					&cli.IntFlag{Name: "max-sessions", Usage: "Worker pool size", Value: 5},
				},
				Action: runScheduleAdd,
			},
			{
				Name:      "remove",
				Usage:     "Remove a scheduled job",
				ArgsUsage: "<job-id>",
				Flags:     []cli.Flag{gatewayFlag},
				Action:    runScheduleRemove,
			},
		},
		DefaultCommand: "list",
	}
}

func runScheduleList(ctx context.Context, cmd *cli.Command) error {
	base := gatewayBaseURL(cmd)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/schedules", nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway not reachable at %s: %w", base, err)
	}
	defer resp.Body.Close()

	var jobs []scheduledJob
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("decode schedules: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No scheduled jobs.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAST\tTRIGGER\tRUNS\tENABLED")
	for _, j := range jobs {
		trigger := j.CronSpec
		if trigger == "" {
			trigger = fmt.Sprintf("every %ds", j.IntervalSec)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n", j.ID, j.ASTName, trigger, j.RunCount, j.Enabled)
	}
	return w.Flush()
}

func runScheduleAdd(ctx context.Context, cmd *cli.Command) error {
	base := gatewayBaseURL(cmd)

	job := scheduledJob{
		ASTName:        cmd.String("ast"),
		CredentialName: cmd.String("credential"),
		SessionID:      cmd.String("session"),
		CronSpec:       cmd.String("cron"),
		IntervalSec:    cmd.Int("interval"),
		MaxSessions:    cmd.Int("max-sessions"),
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/schedules", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway not reachable at %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody map[string]string
		json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("add schedule: %s", errBody["error"])
	}

	var created scheduledJob
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Printf("Scheduled job %s\n", created.ID)
	return nil
}

func runScheduleRemove(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: iastctl schedule remove <job-id>")
	}
	base := gatewayBaseURL(cmd)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, base+"/api/schedules/"+id, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway not reachable at %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		var errBody map[string]string
		json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("remove schedule: %s", errBody["error"])
	}
	fmt.Println("removed")
	return nil
}
