package auth

import (
	"crypto/sha256"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/jw6ventures/bookings/internal/config"
)

const (
	sessionCookieName = "booking_session"
	stateCookieName   = "booking_oauth_state"
	stateMaxAge       = 10 * time.Minute
)

// SessionManager manages web UI sessions and the short-lived OAuth state
// cookie.
type SessionManager struct {
	codec  *securecookie.SecureCookie
	maxAge time.Duration
	secure bool
	now    func() time.Time
}

type sessionValue struct {
	UserID  int64 `json:"user_id"`
	Expires int64 `json:"exp"`
}

type oauthState struct {
	State string `json:"state"`
	Nonce string `json:"nonce"`
	Next  string `json:"next,omitempty"`
}

func NewSessionManager(cfg *config.Config) *SessionManager {
	hash := sha256.Sum256([]byte(cfg.SessionSecret))
	// Derive an AES-256 sized block key to avoid invalid key length errors.
	sc := securecookie.New(hash[:], hash[:])
	sc.MaxAge(int(cfg.SessionMaxAge.Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})

	secure := true
	if base, err := url.Parse(cfg.BaseURL); err == nil && base.Scheme != "https" {
		secure = false
	}

	return &SessionManager{
		codec:  sc,
		maxAge: cfg.SessionMaxAge,
		secure: secure,
		now:    time.Now,
	}
}

// Issue sets the session cookie for a user.
func (m *SessionManager) Issue(w http.ResponseWriter, userID int64) error {
	expires := m.now().Add(m.maxAge)
	encoded, err := m.codec.Encode(sessionCookieName, sessionValue{UserID: userID, Expires: expires.Unix()})
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    encoded,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear removes the session cookie.
func (m *SessionManager) Clear(w http.ResponseWriter) {
	m.expire(w, sessionCookieName)
}

// CurrentUserID extracts the user ID from the request session if present.
func (m *SessionManager) CurrentUserID(r *http.Request) (int64, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return 0, false
	}

	var value sessionValue
	if err := m.codec.Decode(sessionCookieName, c.Value, &value); err != nil {
		return 0, false
	}
	if value.UserID <= 0 || time.Unix(value.Expires, 0).Before(m.now()) {
		return 0, false
	}
	return value.UserID, true
}

func (m *SessionManager) issueState(w http.ResponseWriter, st oauthState) error {
	encoded, err := m.codec.Encode(stateCookieName, st)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    encoded,
		Path:     "/auth",
		MaxAge:   int(stateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// consumeState reads and clears the OAuth state cookie.
func (m *SessionManager) consumeState(w http.ResponseWriter, r *http.Request) (oauthState, bool) {
	var st oauthState
	c, err := r.Cookie(stateCookieName)
	if err != nil {
		return st, false
	}
	m.expire(w, stateCookieName)
	if err := m.codec.Decode(stateCookieName, c.Value, &st); err != nil {
		return st, false
	}
	return st, st.State != ""
}

func (m *SessionManager) expire(w http.ResponseWriter, name string) {
	path := "/"
	if name == stateCookieName {
		path = "/auth"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
	})
}
