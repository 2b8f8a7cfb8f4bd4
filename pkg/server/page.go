package server

import (
	"bytes"
	"embed"
	"net/http"

	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

//go:embed templates/*
var templateFS embed.FS

// clients are the install-mcp client names offered on the page
var clients = []string{
	"claude",
	"cursor",
	"cline",
	"roo-cline",
	"windsurf",
	"witsy",
	"enconvo",
}

type pageData struct {
	Message  string
	UserID   model.UserID
	BaseURL  string
	Clients  []string
	Memories []*model.Memory
}

func (s *Server) baseURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// handlePage renders the memory list of the session's user, issuing a new
// identifier on first visit.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := pageData{
		BaseURL:  s.baseURL(r),
		Clients:  clients,
		Memories: []*model.Memory{},
	}

	if user, ok := s.sessions.Load(r); ok {
		memories, err := s.uc.Fetch(ctx, user)
		if err != nil {
			logging.From(ctx).Error("failed to load memories", logging.ErrAttr(err), "user_id", user)
			http.Error(w, "Failed to load memories", http.StatusInternalServerError)
			return
		}
		data.Message = "Welcome back!"
		data.UserID = user
		data.Memories = memories
	} else {
		user, err := s.sessions.Issue(ctx, w)
		if err != nil {
			logging.From(ctx).Error("failed to issue session", logging.ErrAttr(err))
			http.Error(w, "Failed to create session", http.StatusInternalServerError)
			return
		}
		data.Message = "Welcome to Supermemory MCP!"
		data.UserID = user
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		logging.From(ctx).Error("failed to render page", logging.ErrAttr(err))
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
