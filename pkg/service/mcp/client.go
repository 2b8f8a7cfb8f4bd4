package mcp

import (
	"context"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client connects to a kioku MCP endpoint over SSE, the way an agent
// does. It is used to probe a running deployment.
type Client struct {
	session *mcp.ClientSession
}

type ClientOption func(*mcp.SSEClientTransport)

// WithClientHTTPClient sets the HTTP client used for the stream and posts
func WithClientHTTPClient(client *http.Client) ClientOption {
	return func(t *mcp.SSEClientTransport) {
		t.HTTPClient = client
	}
}

// Dial opens a stream on endpoint (https://host/<userId>/sse) and
// initializes an MCP session over it.
func Dial(ctx context.Context, endpoint string, opts ...ClientOption) (*Client, error) {
	if endpoint == "" {
		return nil, goerr.New("endpoint is required")
	}

	transport := &mcp.SSEClientTransport{Endpoint: endpoint}
	for _, opt := range opts {
		opt(transport)
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "kioku-probe",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to MCP endpoint", goerr.V("endpoint", endpoint))
	}

	return &Client{session: session}, nil
}

// Tools lists the tools the endpoint advertises
func (c *Client) Tools(ctx context.Context) ([]*mcp.Tool, error) {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tools")
	}
	return result.Tools, nil
}

// CallTool calls a tool and returns its text output. A tool-level failure
// is reported as an error carrying the tool's text.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to call tool", goerr.V("tool", name))
	}

	text := joinText(result.Content)
	if result.IsError {
		return "", goerr.New("tool returned an error", goerr.V("tool", name), goerr.V("message", text))
	}
	return text, nil
}

// Prompt fetches a prompt and returns the text of its messages
func (c *Client) Prompt(ctx context.Context, name string) (string, error) {
	result, err := c.session.GetPrompt(ctx, &mcp.GetPromptParams{Name: name})
	if err != nil {
		return "", goerr.Wrap(err, "failed to get prompt", goerr.V("prompt", name))
	}

	contents := make([]mcp.Content, 0, len(result.Messages))
	for _, m := range result.Messages {
		contents = append(contents, m.Content)
	}
	return joinText(contents), nil
}

func (c *Client) Close() error {
	if err := c.session.Close(); err != nil {
		return goerr.Wrap(err, "failed to close session")
	}
	return nil
}

func joinText(contents []mcp.Content) string {
	texts := make([]string, 0, len(contents))
	for _, content := range contents {
		if t, ok := content.(*mcp.TextContent); ok {
			texts = append(texts, t.Text)
		}
	}
	return strings.Join(texts, "\n")
}
