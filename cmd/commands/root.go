package commands

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/iast-gateway/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:    "iastctl",
		Usage:   "Mainframe terminal-automation gateway",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewGatewayCommand(),
			NewStatusCommand(),
			NewSessionsCommand(),
			NewASTCommand(),
			NewScheduleCommand(),
		},
	}
}
