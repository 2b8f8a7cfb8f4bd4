package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg    config
		userID string
		query  string
	)

	flags := []cli.Flag{
		userFlag(&userID),
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Natural language query",
			Sources:     cli.EnvVars("KIOKU_SEARCH_QUERY"),
			Destination: &query,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)

	return &cli.Command{
		Name:  "search",
		Usage: "Search memories of a user by meaning",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			uc, closer, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer closer()

			results, err := uc.Search(ctx, model.UserID(userID), query)
			if err != nil {
				return goerr.Wrap(err, "failed to search memories")
			}

			w := c.Root().Writer
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%.3f\t%s\n", r.DocumentID, r.Score, r.Title)
				for _, chunk := range r.Chunks {
					fmt.Fprintf(w, "  %s\n", chunk.Content)
				}
			}

			return nil
		},
	}
}
