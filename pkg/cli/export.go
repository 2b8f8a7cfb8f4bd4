package cli

import (
	"context"
	"fmt"
	"path"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/urfave/cli/v3"
)

func exportCommand() *cli.Command {
	var (
		cfg    config
		userID string
		bucket string
		prefix string
	)

	flags := []cli.Flag{
		userFlag(&userID),
		&cli.StringFlag{
			Name:        "export-bucket",
			Usage:       "Cloud Storage bucket receiving the snapshot",
			Sources:     cli.EnvVars("KIOKU_EXPORT_BUCKET"),
			Destination: &bucket,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "export-prefix",
			Usage:       "Object name prefix inside the bucket",
			Value:       "exports",
			Sources:     cli.EnvVars("KIOKU_EXPORT_PREFIX"),
			Destination: &prefix,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)

	return &cli.Command{
		Name:  "export",
		Usage: "Write a JSON snapshot of a user's memories to Cloud Storage",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			uc, closer, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer closer()

			storage, err := cfg.newStorage(ctx, bucket, prefix)
			if err != nil {
				return err
			}
			defer storage.Close()

			key, err := uc.Export(ctx, model.UserID(userID), storage)
			if err != nil {
				return goerr.Wrap(err, "failed to export memories")
			}

			fmt.Fprintf(c.Root().Writer, "Exported to gs://%s/%s\n", bucket, path.Join(prefix, key))
			return nil
		},
	}
}
