package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/policy"
	"github.com/m-mizutani/kioku/pkg/repository"
	"github.com/m-mizutani/kioku/pkg/server"
	"github.com/m-mizutani/kioku/pkg/session"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
)

type response struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	UserID   model.UserID    `json:"userId"`
	Memories []*model.Memory `json:"memories"`
	Error    string          `json:"error"`
}

type fixture struct {
	srv  *server.Server
	repo *repository.Chromem
}

func setup(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()
	admission, err := policy.NewAdmission(t.Context(), "")
	gt.NoError(t, err)

	repo := repository.NewChromem()
	store, err := session.NewStore([]byte("test-secret"), opts...)
	gt.NoError(t, err)

	srv, err := server.New(memory.New(repo, admission), store, server.WithPublicURL("https://mcp.example.com"))
	gt.NoError(t, err)

	return &fixture{srv: srv, repo: repo}
}

func (f *fixture) action(t *testing.T, form url.Values, cookies ...*http.Cookie) (*httptest.ResponseRecorder, *response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/?index", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)

	var resp response
	gt.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w, &resp
}

func TestPageIssuesSession(t *testing.T) {
	f := setup(t)

	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	gt.Equal(t, w.Code, http.StatusOK)

	cookies := w.Result().Cookies()
	gt.A(t, cookies).Length(1)
	gt.Equal(t, cookies[0].Name, session.CookieName)

	body := w.Body.String()
	gt.S(t, body).Contains("Welcome to Supermemory MCP!")
	gt.S(t, body).Contains("https://mcp.example.com")

	t.Run("returning visitor sees own memories", func(t *testing.T) {
		// the issued identifier is embedded in the page script
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookies[0])

		w := httptest.NewRecorder()
		f.srv.ServeHTTP(w, req)
		gt.Equal(t, w.Code, http.StatusOK)
		gt.A(t, w.Result().Cookies()).Length(0)
		gt.S(t, w.Body.String()).Contains("Welcome back!")
	})
}

func TestHealthz(t *testing.T) {
	f := setup(t)
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	gt.Equal(t, w.Code, http.StatusOK)
	body, err := io.ReadAll(w.Body)
	gt.NoError(t, err)
	gt.Equal(t, string(body), "ok")
}

func TestFetchAction(t *testing.T) {
	f := setup(t)
	user := model.NewUserID()

	w, resp := f.action(t, url.Values{"userId": {user.String()}, "action": {"fetch"}})
	gt.Equal(t, w.Code, http.StatusOK)
	gt.True(t, resp.Success)
	gt.A(t, resp.Memories).Length(0)

	_, err := f.repo.Add(t.Context(), user.Tag(), "likes go")
	gt.NoError(t, err)

	_, resp = f.action(t, url.Values{"userId": {user.String()}, "action": {"fetch"}})
	gt.A(t, resp.Memories).Length(1)
	gt.Equal(t, resp.Memories[0].Content, "likes go")
}

func TestActionValidation(t *testing.T) {
	f := setup(t)

	testCases := []struct {
		name string
		form url.Values
		code int
		msg  string
	}{
		{
			name: "missing user",
			form: url.Values{"action": {"fetch"}},
			code: http.StatusBadRequest,
			msg:  "User ID is required",
		},
		{
			name: "unknown action",
			form: url.Values{"userId": {"u"}, "action": {"explode"}},
			code: http.StatusBadRequest,
			msg:  "Invalid action type",
		},
		{
			name: "delete without memory",
			form: url.Values{"userId": {"u"}, "action": {"delete"}},
			code: http.StatusBadRequest,
			msg:  "Memory ID is required",
		},
		{
			name: "update without memory",
			form: url.Values{"userId": {"u"}, "action": {"update"}, "content": {"x"}},
			code: http.StatusBadRequest,
			msg:  "Memory ID is required",
		},
		{
			name: "update without content",
			form: url.Values{"userId": {"u"}, "action": {"update"}, "memoryId": {"m"}},
			code: http.StatusBadRequest,
			msg:  "Content is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, resp := f.action(t, tc.form)
			gt.Equal(t, w.Code, tc.code)
			gt.False(t, resp.Success)
			gt.Equal(t, resp.Error, tc.msg)
		})
	}
}

func TestDeleteAndUpdateActions(t *testing.T) {
	f := setup(t)
	user := model.NewUserID()

	id1, err := f.repo.Add(t.Context(), user.Tag(), "first")
	gt.NoError(t, err)
	id2, err := f.repo.Add(t.Context(), user.Tag(), "second")
	gt.NoError(t, err)

	t.Run("update", func(t *testing.T) {
		w, resp := f.action(t, url.Values{
			"userId": {user.String()}, "action": {"update"},
			"memoryId": {id2.String()}, "content": {"second, edited"},
		})
		gt.Equal(t, w.Code, http.StatusOK)
		gt.Equal(t, resp.Message, "Memory updated successfully")
		gt.A(t, resp.Memories).Length(2)
		gt.Equal(t, resp.Memories[0].Content, "second, edited")
	})

	t.Run("delete", func(t *testing.T) {
		w, resp := f.action(t, url.Values{
			"userId": {user.String()}, "action": {"delete"}, "memoryId": {id1.String()},
		})
		gt.Equal(t, w.Code, http.StatusOK)
		gt.Equal(t, resp.Message, "Memory deleted successfully")
		gt.A(t, resp.Memories).Length(1)
		gt.Equal(t, resp.Memories[0].ID, id2)
	})

	t.Run("delete missing", func(t *testing.T) {
		w, resp := f.action(t, url.Values{
			"userId": {user.String()}, "action": {"delete"}, "memoryId": {id1.String()},
		})
		gt.Equal(t, w.Code, http.StatusInternalServerError)
		gt.True(t, strings.HasPrefix(resp.Error, "Error deleting memory: "))
	})

	t.Run("update of another partition", func(t *testing.T) {
		w, resp := f.action(t, url.Values{
			"userId": {model.NewUserID().String()}, "action": {"update"},
			"memoryId": {id2.String()}, "content": {"hijacked"},
		})
		gt.Equal(t, w.Code, http.StatusInternalServerError)
		gt.True(t, strings.HasPrefix(resp.Error, "Error updating memory: "))

		m, err := f.repo.Get(t.Context(), id2)
		gt.NoError(t, err)
		gt.Equal(t, m.Content, "second, edited")
	})
}

func TestRestoreAction(t *testing.T) {
	f := setup(t)
	user := model.NewUserID()
	_, err := f.repo.Add(t.Context(), user.Tag(), "restored memory")
	gt.NoError(t, err)

	w, resp := f.action(t, url.Values{"userId": {user.String()}, "action": {"restore"}})
	gt.Equal(t, w.Code, http.StatusOK)
	gt.Equal(t, resp.Message, "Session restored successfully")
	gt.Equal(t, resp.UserID, user)
	gt.A(t, resp.Memories).Length(1)

	cookies := w.Result().Cookies()
	gt.A(t, cookies).Length(1)

	// the rebound cookie now carries the restored identifier
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	page := httptest.NewRecorder()
	f.srv.ServeHTTP(page, req)
	gt.S(t, page.Body.String()).Contains(user.String())
	gt.S(t, page.Body.String()).Contains("Welcome back!")
}

func TestStrictRestore(t *testing.T) {
	f := setup(t, session.WithStrictRestore())

	w, resp := f.action(t, url.Values{"userId": {"never-issued"}, "action": {"restore"}})
	gt.Equal(t, w.Code, http.StatusBadRequest)
	gt.Equal(t, resp.Error, "Unknown user ID")
	gt.A(t, w.Result().Cookies()).Length(0)
}

// unreachableList behaves like the local backend except that listing fails
type unreachableList struct {
	*repository.Chromem
}

func (unreachableList) List(ctx context.Context, tag string, limit int) ([]*model.Memory, error) {
	return nil, errors.New("memory api unreachable")
}

func TestRestoreKeepsCookieWhenFetchFails(t *testing.T) {
	admission, err := policy.NewAdmission(t.Context(), "")
	gt.NoError(t, err)
	store, err := session.NewStore([]byte("test-secret"))
	gt.NoError(t, err)

	uc := memory.New(unreachableList{Chromem: repository.NewChromem()}, admission)
	srv, err := server.New(uc, store)
	gt.NoError(t, err)

	form := url.Values{"userId": {model.NewUserID().String()}, "action": {"restore"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	gt.Equal(t, w.Code, http.StatusInternalServerError)
	gt.A(t, w.Result().Cookies()).Length(0)

	var body map[string]any
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	gt.Equal(t, body["error"], any("Failed to process memory action"))
	_, hasMemories := body["memories"]
	gt.False(t, hasMemories)
}

func TestErrorResponseCarriesOnlyError(t *testing.T) {
	f := setup(t)

	form := url.Values{"userId": {"u1"}, "action": {"delete"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)

	gt.Equal(t, w.Code, http.StatusBadRequest)
	var body map[string]any
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	gt.Equal(t, len(body), 1)
	gt.Equal(t, body["error"], any("Memory ID is required"))
}
