package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/service/mcp"
	"github.com/urfave/cli/v3"
)

func probeCommand() *cli.Command {
	var (
		cfg      config
		endpoint string
		toolName string
		args     []string
		prompt   string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "url",
			Usage:       "MCP endpoint to probe (https://host/<userId>/sse)",
			Sources:     cli.EnvVars("KIOKU_PROBE_URL"),
			Destination: &endpoint,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "tool",
			Aliases:     []string{"t"},
			Usage:       "Tool to call; only lists tools when empty",
			Destination: &toolName,
		},
		&cli.StringSliceFlag{
			Name:        "arg",
			Aliases:     []string{"a"},
			Usage:       "Tool argument as key=value (repeatable)",
			Destination: &args,
		},
		&cli.StringFlag{
			Name:        "prompt",
			Usage:       "Prompt to fetch",
			Destination: &prompt,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "probe",
		Usage: "Connect to an MCP endpoint like an agent would and exercise it",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			arguments := make(map[string]any, len(args))
			for _, arg := range args {
				k, v, ok := strings.Cut(arg, "=")
				if !ok {
					return goerr.New("argument must be key=value", goerr.V("arg", arg))
				}
				arguments[k] = v
			}

			client, err := mcp.Dial(ctx, endpoint)
			if err != nil {
				return err
			}
			defer client.Close()

			w := c.Root().Writer
			switch {
			case toolName != "":
				text, err := client.CallTool(ctx, toolName, arguments)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, text)

			case prompt != "":
				text, err := client.Prompt(ctx, prompt)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, text)

			default:
				tools, err := client.Tools(ctx)
				if err != nil {
					return err
				}
				for _, t := range tools {
					fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Description)
				}
			}

			return nil
		},
	}
}
