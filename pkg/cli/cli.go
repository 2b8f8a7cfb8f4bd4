package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "kioku",
		Usage: "Memory service for AI agents over MCP",
		Commands: []*cli.Command{
			serveCommand(),
			listCommand(),
			searchCommand(),
			addCommand(),
			deleteCommand(),
			exportCommand(),
			probeCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

// userFlag returns the --user flag shared by admin commands
func userFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "user",
		Aliases:     []string{"u"},
		Usage:       "User identifier owning the partition",
		Sources:     cli.EnvVars("KIOKU_USER_ID"),
		Destination: dst,
		Required:    true,
	}
}
