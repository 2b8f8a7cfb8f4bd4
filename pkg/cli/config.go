package cli

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/adapter"
	"github.com/m-mizutani/kioku/pkg/interfaces"
	"github.com/m-mizutani/kioku/pkg/policy"
	"github.com/m-mizutani/kioku/pkg/repository"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	backendSupermemory = "supermemory"
	backendFirestore   = "firestore"
	backendLocal       = "local"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string
	logSource bool

	// Memory backend
	backend            string
	supermemoryAPIKey  string
	supermemoryBaseURL string
	project            string
	database           string

	// Embeddings for the Firestore backend
	geminiProject      string
	geminiLocation     string
	embeddingCacheSize int64
	embeddingCacheTTL  time.Duration

	// Admission policy
	policyDir string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("KIOKU_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("KIOKU_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.BoolFlag{
			Name:        "log-source",
			Usage:       "Include caller location in log records",
			Sources:     cli.EnvVars("KIOKU_LOG_SOURCE"),
			Destination: &cfg.logSource,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego files replacing the default admission policy",
			Sources:     cli.EnvVars("KIOKU_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// backendFlags returns flags selecting and configuring the memory backend
func backendFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "Memory backend (supermemory, firestore, local)",
			Value:       backendSupermemory,
			Sources:     cli.EnvVars("KIOKU_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "supermemory-api-key",
			Usage:       "Supermemory API key",
			Sources:     cli.EnvVars("SUPERMEMORY_API_KEY"),
			Destination: &cfg.supermemoryAPIKey,
		},
		&cli.StringFlag{
			Name:        "supermemory-base-url",
			Usage:       "Supermemory API base URL",
			Value:       adapter.DefaultSupermemoryBaseURL,
			Sources:     cli.EnvVars("SUPERMEMORY_BASE_URL"),
			Destination: &cfg.supermemoryBaseURL,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID of the Firestore backend",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini embeddings",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.IntFlag{
			Name:        "embedding-cache-size",
			Usage:       "Number of embeddings kept in memory (0 disables the cache)",
			Value:       10000,
			Sources:     cli.EnvVars("KIOKU_EMBEDDING_CACHE_SIZE"),
			Destination: &cfg.embeddingCacheSize,
		},
		&cli.DurationFlag{
			Name:        "embedding-cache-ttl",
			Usage:       "Lifetime of a cached embedding",
			Value:       time.Hour,
			Sources:     cli.EnvVars("KIOKU_EMBEDDING_CACHE_TTL"),
			Destination: &cfg.embeddingCacheTTL,
		},
	}
}

// setupLogger installs the default logger and returns ctx carrying it
func (cfg *config) setupLogger(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr,
		logging.WithFormat(logging.Format(cfg.logFormat)),
		logging.WithSource(cfg.logSource),
	)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newEmbedder creates the Gemini embedder, cached when configured
func (cfg *config) newEmbedder(ctx context.Context) (interfaces.Embedder, func(), error) {
	if cfg.geminiProject == "" {
		return nil, nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, nil, goerr.New("gemini-location is required")
	}

	gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to create gemini adapter")
	}
	if cfg.embeddingCacheSize <= 0 {
		return gemini, func() {}, nil
	}

	cached, err := repository.NewCachedEmbedder(gemini, cfg.embeddingCacheSize, cfg.embeddingCacheTTL)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

// newMemoryClient creates the configured memory backend. The returned
// function releases it.
func (cfg *config) newMemoryClient(ctx context.Context) (interfaces.MemoryClient, func(), error) {
	switch cfg.backend {
	case backendSupermemory:
		if cfg.supermemoryAPIKey == "" {
			return nil, nil, goerr.New("supermemory-api-key is required")
		}
		client := adapter.NewSupermemory(cfg.supermemoryAPIKey,
			adapter.WithSupermemoryBaseURL(cfg.supermemoryBaseURL))
		return client, func() {}, nil

	case backendFirestore:
		if cfg.project == "" {
			return nil, nil, goerr.New("firestore-project is required")
		}
		if cfg.database == "" {
			return nil, nil, goerr.New("firestore-database is required")
		}

		embedder, closeEmbedder, err := cfg.newEmbedder(ctx)
		if err != nil {
			return nil, nil, err
		}

		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database, embedder)
		if err != nil {
			closeEmbedder()
			return nil, nil, goerr.Wrap(err, "failed to create firestore backend")
		}
		return repo, func() {
			_ = repo.Close()
			closeEmbedder()
		}, nil

	case backendLocal:
		logging.From(ctx).Warn("using in-process backend, memories are lost on exit")
		return repository.NewChromem(), func() {}, nil

	default:
		return nil, nil, goerr.New("unsupported backend",
			goerr.V("backend", cfg.backend),
			goerr.V("supported", []string{backendSupermemory, backendFirestore, backendLocal}))
	}
}

// newUseCase wires the memory backend and admission policy
func (cfg *config) newUseCase(ctx context.Context) (*memory.UseCase, func(), error) {
	client, closer, err := cfg.newMemoryClient(ctx)
	if err != nil {
		return nil, nil, err
	}

	admission, err := policy.NewAdmission(ctx, cfg.policyDir)
	if err != nil {
		closer()
		return nil, nil, err
	}

	return memory.New(client, admission), closer, nil
}

// newStorage creates a new Storage archive
func (cfg *config) newStorage(ctx context.Context, bucketName, prefix string) (*adapter.Storage, error) {
	if bucketName == "" {
		return nil, goerr.New("export-bucket is required")
	}

	storage, err := adapter.NewStorage(ctx, bucketName, prefix)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}
