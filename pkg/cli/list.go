package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	var (
		cfg    config
		userID string
		filter string
	)

	flags := []cli.Flag{
		userFlag(&userID),
		&cli.StringFlag{
			Name:        "filter",
			Aliases:     []string{"f"},
			Usage:       `CEL expression over id, content, title, tags, created_at, updated_at (e.g. content.contains("go"))`,
			Sources:     cli.EnvVars("KIOKU_LIST_FILTER"),
			Destination: &filter,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List memories of a user",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			// Compile the filter before touching the backend
			var f *memory.Filter
			if filter != "" {
				var err error
				if f, err = memory.NewFilter(filter); err != nil {
					return err
				}
			}

			uc, closer, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer closer()

			memories, err := uc.Fetch(ctx, model.UserID(userID))
			if err != nil {
				return goerr.Wrap(err, "failed to list memories")
			}

			if f != nil {
				if memories, err = f.Apply(memories); err != nil {
					return err
				}
			}

			for _, m := range memories {
				title := m.Title
				if title == "" {
					title = m.Summary
				}
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\n", m.ID, m.CreatedAt.Format(time.RFC3339), title)
			}

			return nil
		},
	}
}
