package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/urfave/cli/v3"
)

func addCommand() *cli.Command {
	var (
		cfg     config
		userID  string
		content string
	)

	flags := []cli.Flag{
		userFlag(&userID),
		&cli.StringFlag{
			Name:        "content",
			Aliases:     []string{"c"},
			Usage:       "Content to remember",
			Destination: &content,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)

	return &cli.Command{
		Name:  "add",
		Usage: "Add a memory to a user's partition",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			uc, closer, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer closer()

			result, err := uc.Add(ctx, model.UserID(userID), content)
			if err != nil {
				return goerr.Wrap(err, "failed to add memory")
			}
			if result.Rejected {
				return goerr.New(result.Reason)
			}

			fmt.Fprintf(c.Root().Writer, "Memory added: %s\n", result.ID)
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	var (
		cfg    config
		userID string
	)

	flags := []cli.Flag{
		userFlag(&userID),
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)

	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a memory from a user's partition",
		ArgsUsage: "<memory-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("memory-id is required")
			}
			memoryID := model.MemoryID(c.Args().Get(0))

			ctx = cfg.setupLogger(ctx)

			uc, closer, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer closer()

			remaining, err := uc.Delete(ctx, model.UserID(userID), memoryID)
			if err != nil {
				return goerr.Wrap(err, "failed to delete memory")
			}

			fmt.Fprintf(c.Root().Writer, "Memory deleted: %s (%d remaining)\n", memoryID, len(remaining))
			return nil
		},
	}
}
