package session

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// CookieName is the name of the session cookie carrying the user identifier
const CookieName = "mcp_secret"

var (
	ErrUnknownUserID = goerr.New("unknown user ID")
	ErrEmptyUserID   = goerr.New("user ID is empty")
)

// cookieExpiry is far enough in the future that the session never expires
var cookieExpiry = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

type cookieValue struct {
	UserID model.UserID `json:"userId"`
}

// Store maps a signed cookie to a user identifier
type Store struct {
	codec    *securecookie.SecureCookie
	registry Registry
	insecure bool
	strict   bool
}

type Option func(*Store)

// WithRegistry replaces the in-memory registry of issued identifiers
func WithRegistry(registry Registry) Option {
	return func(s *Store) {
		s.registry = registry
	}
}

// WithInsecureCookie drops the Secure attribute, for plain-HTTP development
func WithInsecureCookie() Option {
	return func(s *Store) {
		s.insecure = true
	}
}

// WithStrictRestore makes Bind refuse identifiers this server never issued
func WithStrictRestore() Option {
	return func(s *Store) {
		s.strict = true
	}
}

// NewStore creates a cookie session store signing cookies with secret
func NewStore(secret []byte, opts ...Option) (*Store, error) {
	if len(secret) == 0 {
		return nil, goerr.New("cookie secret is required")
	}

	codec := securecookie.New(secret, nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(0)

	s := &Store{
		codec:    codec,
		registry: NewMemoryRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Load returns the identifier carried by the request's session cookie.
// Missing or tampered cookies yield false.
func (s *Store) Load(r *http.Request) (model.UserID, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}

	var v cookieValue
	if err := s.codec.Decode(CookieName, c.Value, &v); err != nil {
		logging.From(r.Context()).Debug("invalid session cookie", logging.ErrAttr(err))
		return "", false
	}
	if v.UserID == "" {
		return "", false
	}
	return v.UserID, true
}

// Issue creates a new identifier, records it and sets the cookie
func (s *Store) Issue(ctx context.Context, w http.ResponseWriter) (model.UserID, error) {
	user := model.NewUserID()
	if err := s.registry.Record(ctx, user); err != nil {
		return "", err
	}
	if err := s.setCookie(w, user); err != nil {
		return "", err
	}

	logging.From(ctx).Info("session issued", "user_id", user)
	return user, nil
}

// Bind rebinds the session cookie to an existing identifier
func (s *Store) Bind(ctx context.Context, w http.ResponseWriter, user model.UserID) error {
	if user == "" {
		return goerr.Wrap(ErrEmptyUserID, "cannot bind session")
	}

	if s.strict {
		known, err := s.registry.Known(ctx, user)
		if err != nil {
			return err
		}
		if !known {
			return goerr.Wrap(ErrUnknownUserID, "identifier was never issued", goerr.V("user_id", user))
		}
	}

	if err := s.setCookie(w, user); err != nil {
		return err
	}

	logging.From(ctx).Info("session restored", "user_id", user)
	return nil
}

func (s *Store) setCookie(w http.ResponseWriter, user model.UserID) error {
	encoded, err := s.codec.Encode(CookieName, &cookieValue{UserID: user})
	if err != nil {
		return goerr.Wrap(err, "failed to encode session cookie", goerr.V("user_id", user))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		Expires:  cookieExpiry,
		SameSite: http.SameSiteLaxMode,
		HttpOnly: true,
		Secure:   !s.insecure,
	})
	return nil
}
