// Package api is the reference cloud backend for the journaling client: a
// zero-knowledge store of encrypted entries and wrapped entry keys. The
// hosted service is interchangeable with this one; tests and self-hosters
// run it directly.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
)

//go:embed openapi.yaml
var openapiSpec []byte

const tokenDuration = 24 * time.Hour

// API holds the dependencies needed by the REST handlers.
type API struct {
	store  *Store
	tokens *tokenStore
	log    *slog.Logger
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger. If not set, a JSON logger writing
// to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.log = logger }
}

// New creates a new API instance over the given store.
func New(store *Store, opts ...Option) *API {
	a := &API{
		store:  store,
		tokens: &tokenStore{data: make(map[string]tokenSession)},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))

	r.Post("/auth/register", a.Register)
	r.Post("/auth/login", a.Login)

	r.Group(func(r chi.Router) {
		r.Use(a.AuthMiddleware)
		r.Get("/me", a.MeHandler)
		r.Post("/entries", a.CreateEntry)
		r.Get("/entries", a.ListEntries)
		r.Route("/entries/{entryID}", func(r chi.Router) {
			r.Get("/", a.GetEntry)
			r.Put("/", a.UpdateEntry)
			r.Delete("/", a.DeleteEntry)
			r.Post("/access-keys", a.CreateAccessKeys)
			r.Get("/access-keys", a.ListAccessKeys)
			r.Delete("/access-keys/{userID}", a.RevokeAccessKey)
		})
	})

	return r
}

// tokenSession is one issued bearer token.
type tokenSession struct {
	AccountID string
	ExpiresAt time.Time
}

type tokenStore struct {
	mu   sync.RWMutex
	data map[string]tokenSession
}

func (s *tokenStore) put(token string, sess tokenSession) {
	s.mu.Lock()
	s.data[token] = sess
	s.mu.Unlock()
}

func (s *tokenStore) get(token string) (tokenSession, bool) {
	s.mu.RLock()
	sess, ok := s.data[token]
	s.mu.RUnlock()
	if !ok || time.Now().After(sess.ExpiresAt) {
		return tokenSession{}, false
	}
	return sess, true
}
