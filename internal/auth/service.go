package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/jw6ventures/bookings/internal/config"
	httperrors "github.com/jw6ventures/bookings/internal/http/errors"
	"github.com/jw6ventures/bookings/internal/store"
)

// codeExchanger is the part of oauth2.Config used by the login flow.
type codeExchanger interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// identity is what the login flow needs from a verified ID token.
type identity struct {
	Subject string
	Email   string
	Name    string
	Nonce   string
}

type verifyFunc func(ctx context.Context, rawIDToken string) (identity, error)

// Service encapsulates the OIDC login flow and session guards.
type Service struct {
	users    store.UserRepository
	sessions *SessionManager
	oauth    codeExchanger
	verify   verifyFunc
	admins   map[string]struct{}
}

// NewService discovers the OIDC provider and builds the login flow.
func NewService(ctx context.Context, cfg *config.Config, users store.UserRepository, sessions *SessionManager) (*Service, error) {
	provider, err := oidc.NewProvider(ctx, cfg.OAuthIssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  strings.TrimRight(cfg.BaseURL, "/") + cfg.OAuthRedirectPath,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.OAuthClientID})

	return newService(cfg, users, sessions, oauthCfg, verifyWith(verifier)), nil
}

func newService(cfg *config.Config, users store.UserRepository, sessions *SessionManager, oauth codeExchanger, verify verifyFunc) *Service {
	admins := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, email := range cfg.AdminEmails {
		admins[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	}
	return &Service{users: users, sessions: sessions, oauth: oauth, verify: verify, admins: admins}
}

func verifyWith(v *oidc.IDTokenVerifier) verifyFunc {
	return func(ctx context.Context, raw string) (identity, error) {
		tok, err := v.Verify(ctx, raw)
		if err != nil {
			return identity{}, err
		}
		var claims struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := tok.Claims(&claims); err != nil {
			return identity{}, err
		}
		return identity{Subject: tok.Subject, Email: claims.Email, Name: claims.Name, Nonce: tok.Nonce}, nil
	}
}

// BeginOAuth starts the authorization code flow.
func (s *Service) BeginOAuth(w http.ResponseWriter, r *http.Request) {
	state, err := randomToken()
	if err != nil {
		httperrors.InternalError(w, r, err, "generate oauth state")
		return
	}
	nonce, err := randomToken()
	if err != nil {
		httperrors.InternalError(w, r, err, "generate oauth nonce")
		return
	}

	if err := s.sessions.issueState(w, oauthState{State: state, Nonce: nonce, Next: safeNext(r.URL.Query().Get("next"))}); err != nil {
		httperrors.InternalError(w, r, err, "store oauth state")
		return
	}
	http.Redirect(w, r, s.oauth.AuthCodeURL(state, oidc.Nonce(nonce)), http.StatusFound)
}

// HandleOAuthCallback completes the flow, upserts the user and starts a
// session.
func (s *Service) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, ok := s.sessions.consumeState(w, r)
	if !ok || r.URL.Query().Get("state") != st.State {
		httperrors.BadRequestError(w, r, errors.New("oauth state mismatch"), "invalid login state")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		httperrors.BadRequestError(w, r, errors.New("missing code"), "missing authorization code")
		return
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		httperrors.BadRequestError(w, r, err, "login failed")
		return
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		httperrors.BadRequestError(w, r, errors.New("token response without id_token"), "login failed")
		return
	}
	id, err := s.verify(ctx, rawIDToken)
	if err != nil {
		httperrors.BadRequestError(w, r, err, "login failed")
		return
	}
	if id.Nonce != st.Nonce {
		httperrors.BadRequestError(w, r, errors.New("nonce mismatch"), "login failed")
		return
	}
	if id.Subject == "" || id.Email == "" {
		httperrors.BadRequestError(w, r, errors.New("id token missing subject or email"), "login failed")
		return
	}

	user, err := s.users.UpsertOAuthUser(ctx, id.Subject, id.Email, id.Name)
	if err != nil {
		httperrors.InternalError(w, r, err, "persist user")
		return
	}
	if err := s.sessions.Issue(w, user.ID); err != nil {
		httperrors.InternalError(w, r, err, "issue session")
		return
	}
	slog.InfoContext(ctx, "user logged in", "user_id", user.ID)

	next := st.Next
	if next == "" {
		next = "/availability"
	}
	http.Redirect(w, r, next, http.StatusFound)
}

// Logout clears the session.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// RequireSession loads the session user into the request context. Browsers
// are sent to the login page; API callers get a JSON 401.
func (s *Service) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reject := func() {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				httperrors.WriteJSON(w, r, httperrors.Unauthorized("login required"))
				return
			}
			http.Redirect(w, r, "/auth/login?next="+r.URL.EscapedPath(), http.StatusFound)
		}

		userID, ok := s.sessions.CurrentUserID(r)
		if !ok {
			reject()
			return
		}
		user, err := s.users.GetByID(r.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(r.Context(), "session references unknown user, clearing", "user_id", userID)
			s.sessions.Clear(w)
			reject()
			return
		}
		if err != nil {
			httperrors.InternalError(w, r, err, "load session user")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireAdmin rejects callers without the admin role with 401.
func (s *Service) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || !s.IsAdmin(user) {
			httperrors.WriteJSON(w, r, httperrors.Unauthorized("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IsAdmin reports whether user holds the admin role, either stored or
// granted through configuration.
func (s *Service) IsAdmin(user *store.User) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	_, ok := s.admins[strings.ToLower(user.Email)]
	return ok
}

func randomToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// safeNext only allows local absolute paths as post-login targets.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}
