package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/session"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

const maxFormSize = 1 << 20

type actionResponse struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message,omitempty"`
	UserID   model.UserID    `json:"userId,omitempty"`
	Memories []*model.Memory `json:"memories"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type actionResult struct {
	status int
	body   any
}

func succeeded(body *actionResponse) *actionResult {
	body.Success = true
	if body.Memories == nil {
		body.Memories = []*model.Memory{}
	}
	return &actionResult{status: http.StatusOK, body: body}
}

func failed(status int, msg string) *actionResult {
	return &actionResult{status: status, body: &errorResponse{Error: msg}}
}

// memoryAction is one decoded request of the action endpoint
type memoryAction interface {
	run(ctx context.Context, s *Server, w http.ResponseWriter) *actionResult
}

type fetchAction struct {
	user model.UserID
}

type deleteAction struct {
	user model.UserID
	id   model.MemoryID
}

type updateAction struct {
	user    model.UserID
	id      model.MemoryID
	content string
}

type restoreAction struct {
	user model.UserID
}

// decodeAction turns the submitted form into one of the action variants
func decodeAction(r *http.Request) (memoryAction, *actionResult) {
	if err := r.ParseMultipartForm(maxFormSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, failed(http.StatusBadRequest, "Invalid form data")
	}

	user := model.UserID(r.PostFormValue("userId"))
	if user == "" {
		return nil, failed(http.StatusBadRequest, "User ID is required")
	}
	id := model.MemoryID(r.PostFormValue("memoryId"))

	switch r.PostFormValue("action") {
	case "fetch":
		return &fetchAction{user: user}, nil

	case "delete":
		if id == "" {
			return nil, failed(http.StatusBadRequest, "Memory ID is required")
		}
		return &deleteAction{user: user, id: id}, nil

	case "update":
		if id == "" {
			return nil, failed(http.StatusBadRequest, "Memory ID is required")
		}
		content := r.PostFormValue("content")
		if content == "" {
			return nil, failed(http.StatusBadRequest, "Content is required")
		}
		return &updateAction{user: user, id: id, content: content}, nil

	case "restore":
		return &restoreAction{user: user}, nil

	default:
		return nil, failed(http.StatusBadRequest, "Invalid action type")
	}
}

func (a *fetchAction) run(ctx context.Context, s *Server, w http.ResponseWriter) *actionResult {
	memories, err := s.uc.Fetch(ctx, a.user)
	if err != nil {
		logging.From(ctx).Error("failed to fetch memories", logging.ErrAttr(err))
		return failed(http.StatusInternalServerError, "Failed to process memory action")
	}
	return succeeded(&actionResponse{Memories: memories})
}

func (a *deleteAction) run(ctx context.Context, s *Server, w http.ResponseWriter) *actionResult {
	memories, err := s.uc.Delete(ctx, a.user, a.id)
	if err != nil {
		logging.From(ctx).Error("failed to delete memory", logging.ErrAttr(err), "memory_id", a.id)
		return failed(http.StatusInternalServerError, "Error deleting memory: "+err.Error())
	}
	return succeeded(&actionResponse{
		Message:  "Memory deleted successfully",
		Memories: memories,
	})
}

func (a *updateAction) run(ctx context.Context, s *Server, w http.ResponseWriter) *actionResult {
	memories, err := s.uc.Update(ctx, a.user, a.id, a.content)
	if err != nil {
		logging.From(ctx).Error("failed to update memory", logging.ErrAttr(err), "memory_id", a.id)
		return failed(http.StatusInternalServerError, "Error updating memory: "+err.Error())
	}
	return succeeded(&actionResponse{
		Message:  "Memory updated successfully",
		Memories: memories,
	})
}

func (a *restoreAction) run(ctx context.Context, s *Server, w http.ResponseWriter) *actionResult {
	// the cookie is rebound only once the partition could be read
	memories, err := s.uc.Restore(ctx, a.user)
	if err != nil {
		logging.From(ctx).Error("failed to fetch restored memories", logging.ErrAttr(err))
		return failed(http.StatusInternalServerError, "Failed to process memory action")
	}

	if err := s.sessions.Bind(ctx, w, a.user); err != nil {
		if errors.Is(err, session.ErrUnknownUserID) {
			return failed(http.StatusBadRequest, "Unknown user ID")
		}
		logging.From(ctx).Error("failed to restore session", logging.ErrAttr(err))
		return failed(http.StatusInternalServerError, "Failed to process memory action")
	}

	return succeeded(&actionResponse{
		Message:  "Session restored successfully",
		UserID:   a.user,
		Memories: memories,
	})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)

	action, result := decodeAction(r)
	if result == nil {
		result = action.run(r.Context(), s, w)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.status)
	if err := json.NewEncoder(w).Encode(result.body); err != nil {
		logging.From(r.Context()).Warn("failed to write action response", logging.ErrAttr(err))
	}
}
