package commands

import "github.com/urfave/cli/v3"

// gatewayFlag is shared by every thin-HTTP-client subcommand (sessions, ast,
// schedule) that talks to a running iastd gateway rather than touching its
// state directly.
var gatewayFlag = &cli.StringFlag{
	Name:  "gateway",
	Usage: "Base URL of the running gateway",
	Value: "http://127.0.0.1:18420",
}

func gatewayBaseURL(cmd *cli.Command) string {
	return cmd.String("gateway")
}
