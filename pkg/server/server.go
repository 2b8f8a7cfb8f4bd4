package server

import (
	"html/template"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/service/mcp"
	"github.com/m-mizutani/kioku/pkg/session"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// Server serves the memory UI, its action endpoint and, when a router is
// given, the MCP stream and message endpoints.
type Server struct {
	handler   http.Handler
	uc        *memory.UseCase
	sessions  *session.Store
	router    *mcp.Router
	publicURL string
	page      *template.Template
}

type Option func(*Server)

// WithRouter mounts the MCP session router
func WithRouter(router *mcp.Router) Option {
	return func(s *Server) {
		s.router = router
	}
}

// WithPublicURL sets the base URL shown to users for the MCP endpoint. When
// empty it is derived from each request.
func WithPublicURL(url string) Option {
	return func(s *Server) {
		s.publicURL = url
	}
}

// New creates a Server
func New(uc *memory.UseCase, sessions *session.Store, opts ...Option) (*Server, error) {
	page, err := parsePage()
	if err != nil {
		return nil, err
	}

	s := &Server{
		uc:       uc,
		sessions: sessions,
		page:     page,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("POST /{$}", s.handleAction)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	if s.router != nil {
		s.router.Register(mux)
	}

	s.handler = logging.Middleware(logging.Default())(mux)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func parsePage() (*template.Template, error) {
	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse page template")
	}
	return page, nil
}
