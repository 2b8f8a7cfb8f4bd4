package session_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/session"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

// carry returns a request holding the cookies set on w
func carry(w *httptest.ResponseRecorder) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestIssueAndLoad(t *testing.T) {
	store, err := session.NewStore(secret)
	gt.NoError(t, err)

	w := httptest.NewRecorder()
	user, err := store.Issue(t.Context(), w)
	gt.NoError(t, err)
	gt.NotEqual(t, user, model.UserID(""))

	cookies := w.Result().Cookies()
	gt.A(t, cookies).Length(1)
	c := cookies[0]
	gt.Equal(t, c.Name, session.CookieName)
	gt.Equal(t, c.Path, "/")
	gt.Equal(t, c.SameSite, http.SameSiteLaxMode)
	gt.True(t, c.HttpOnly)
	gt.True(t, c.Secure)
	gt.Equal(t, c.Expires.Year(), 9999)

	loaded, ok := store.Load(carry(w))
	gt.True(t, ok)
	gt.Equal(t, loaded, user)
}

func TestLoadRejectsTampering(t *testing.T) {
	store, err := session.NewStore(secret)
	gt.NoError(t, err)

	t.Run("no cookie", func(t *testing.T) {
		_, ok := store.Load(httptest.NewRequest(http.MethodGet, "/", nil))
		gt.False(t, ok)
	})

	t.Run("signed with another secret", func(t *testing.T) {
		other, err := session.NewStore([]byte("another secret"))
		gt.NoError(t, err)
		w := httptest.NewRecorder()
		_, err = other.Issue(t.Context(), w)
		gt.NoError(t, err)

		_, ok := store.Load(carry(w))
		gt.False(t, ok)
	})

	t.Run("garbage", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: session.CookieName, Value: "not-a-cookie"})
		_, ok := store.Load(r)
		gt.False(t, ok)
	})
}

func TestInsecureCookie(t *testing.T) {
	store, err := session.NewStore(secret, session.WithInsecureCookie())
	gt.NoError(t, err)

	w := httptest.NewRecorder()
	_, err = store.Issue(t.Context(), w)
	gt.NoError(t, err)
	gt.False(t, w.Result().Cookies()[0].Secure)
}

func TestBind(t *testing.T) {
	t.Run("any identifier by default", func(t *testing.T) {
		store, err := session.NewStore(secret)
		gt.NoError(t, err)

		w := httptest.NewRecorder()
		gt.NoError(t, store.Bind(t.Context(), w, "foreign-id"))

		loaded, ok := store.Load(carry(w))
		gt.True(t, ok)
		gt.Equal(t, loaded, model.UserID("foreign-id"))
	})

	t.Run("empty identifier", func(t *testing.T) {
		store, err := session.NewStore(secret)
		gt.NoError(t, err)
		err = store.Bind(t.Context(), httptest.NewRecorder(), "")
		gt.True(t, errors.Is(err, session.ErrEmptyUserID))
	})

	t.Run("strict restore", func(t *testing.T) {
		store, err := session.NewStore(secret, session.WithStrictRestore())
		gt.NoError(t, err)

		err = store.Bind(t.Context(), httptest.NewRecorder(), "never-issued")
		gt.True(t, errors.Is(err, session.ErrUnknownUserID))

		issued, err := store.Issue(t.Context(), httptest.NewRecorder())
		gt.NoError(t, err)
		gt.NoError(t, store.Bind(t.Context(), httptest.NewRecorder(), issued))
	})
}

func TestNewStoreRequiresSecret(t *testing.T) {
	_, err := session.NewStore(nil)
	gt.Error(t, err)
}

func TestRedisRegistry(t *testing.T) {
	mr := miniredis.RunT(t)

	registry, err := session.NewRedisRegistry(t.Context(), "redis://"+mr.Addr())
	gt.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	known, err := registry.Known(t.Context(), "u1")
	gt.NoError(t, err)
	gt.False(t, known)

	gt.NoError(t, registry.Record(t.Context(), "u1"))

	known, err = registry.Known(t.Context(), "u1")
	gt.NoError(t, err)
	gt.True(t, known)

	ok, err := mr.SIsMember("kioku:users", "u1")
	gt.NoError(t, err)
	gt.True(t, ok)

	t.Run("shared between stores", func(t *testing.T) {
		a, err := session.NewStore(secret, session.WithRegistry(registry))
		gt.NoError(t, err)
		b, err := session.NewStore(secret, session.WithRegistry(registry), session.WithStrictRestore())
		gt.NoError(t, err)

		user, err := a.Issue(t.Context(), httptest.NewRecorder())
		gt.NoError(t, err)
		gt.NoError(t, b.Bind(t.Context(), httptest.NewRecorder(), user))
	})
}

func TestRedisRegistryBadURL(t *testing.T) {
	_, err := session.NewRedisRegistry(t.Context(), "not a url")
	gt.Error(t, err)
}
