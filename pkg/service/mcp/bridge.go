package mcp

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/m-mizutani/kioku/pkg/service/mcp"

type addParams struct {
	ThingToRemember string `json:"thingToRemember"`
}

type searchParams struct {
	InformationToGet string `json:"informationToGet"`
}

// Bridge exposes the memory use case to agents as MCP tools and a prompt.
// One MCP server is built per user, so every call is scoped to the
// partition of that user.
type Bridge struct {
	uc      *memory.UseCase
	catalog *Catalog
	calls   metric.Int64Counter
}

type BridgeOption func(*bridgeConfig)

type bridgeConfig struct {
	meterProvider metric.MeterProvider
	catalog       *Catalog
}

// WithBridgeMeterProvider sets the meter provider for tool call counters
func WithBridgeMeterProvider(mp metric.MeterProvider) BridgeOption {
	return func(c *bridgeConfig) {
		c.meterProvider = mp
	}
}

// WithCatalog replaces the embedded catalog
func WithCatalog(catalog *Catalog) BridgeOption {
	return func(c *bridgeConfig) {
		c.catalog = catalog
	}
}

// NewBridge creates a Bridge over uc
func NewBridge(uc *memory.UseCase, opts ...BridgeOption) (*Bridge, error) {
	cfg := &bridgeConfig{meterProvider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.catalog == nil {
		catalog, err := LoadCatalog()
		if err != nil {
			return nil, err
		}
		cfg.catalog = catalog
	}

	calls, err := cfg.meterProvider.Meter(instrumentationName).Int64Counter("kioku.mcp.tool_calls",
		metric.WithDescription("Number of MCP tool calls"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create tool call counter")
	}

	return &Bridge{
		uc:      uc,
		catalog: cfg.catalog,
		calls:   calls,
	}, nil
}

func stringSchema(name, description string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			name: {Type: "string", Description: description},
		},
		Required: []string{name},
	}
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}

func (b *Bridge) count(ctx context.Context, tool, outcome string) {
	b.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	))
}

// NewServer builds the MCP server bound to user
func (b *Bridge) NewServer(user model.UserID) *mcp.Server {
	c := b.catalog

	server := mcp.NewServer(&mcp.Implementation{
		Name:    c.Server.Name,
		Version: c.Server.Version,
	}, &mcp.ServerOptions{
		CompletionHandler: func(ctx context.Context, req *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
			return &mcp.CompleteResult{
				Completion: mcp.CompletionResultDetails{
					Values: c.Prompt.Completions,
					Total:  len(c.Prompt.Completions),
				},
			}, nil
		},
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        c.Tools.Add.Name,
		Description: c.Tools.Add.Description,
		InputSchema: stringSchema("thingToRemember", c.Tools.Add.ArgumentDescription),
	}, func(ctx context.Context, req *mcp.CallToolRequest, params *addParams) (*mcp.CallToolResult, any, error) {
		ctx = logging.With(ctx, logging.From(ctx).With("user_id", user, "tool", c.Tools.Add.Name))

		result, err := b.uc.Add(ctx, user, params.ThingToRemember)
		if err != nil {
			b.count(ctx, c.Tools.Add.Name, "error")
			logging.From(ctx).Error("failed to add memory", logging.ErrAttr(err))
			return nil, nil, err
		}
		if result.Rejected {
			b.count(ctx, c.Tools.Add.Name, "rejected")
			return textResult(result.Reason, true), nil, nil
		}

		b.count(ctx, c.Tools.Add.Name, "ok")
		return textResult(c.Tools.Add.Success, false), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        c.Tools.Search.Name,
		Description: c.Tools.Search.Description,
		InputSchema: stringSchema("informationToGet", c.Tools.Search.ArgumentDescription),
	}, func(ctx context.Context, req *mcp.CallToolRequest, params *searchParams) (*mcp.CallToolResult, any, error) {
		ctx = logging.With(ctx, logging.From(ctx).With("user_id", user, "tool", c.Tools.Search.Name))

		results, err := b.uc.Search(ctx, user, params.InformationToGet)
		if err != nil {
			b.count(ctx, c.Tools.Search.Name, "error")
			logging.From(ctx).Error("failed to search memories", logging.ErrAttr(err))
			return nil, nil, err
		}

		b.count(ctx, c.Tools.Search.Name, "ok")
		return textResult(memory.JoinResults(results), false), nil, nil
	})

	server.AddPrompt(&mcp.Prompt{
		Name:        c.Prompt.Name,
		Description: c.Prompt.Description,
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{
			Description: c.Prompt.Description,
			Messages: []*mcp.PromptMessage{
				{Role: "user", Content: &mcp.TextContent{Text: c.Prompt.Text}},
			},
		}, nil
	})

	return server
}
