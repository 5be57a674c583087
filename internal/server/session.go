package server

import (
	"crypto/rand"
	"crypto/subtle"
	"maps"
	"net/http"
	"sync"
	"time"
)

const (
	sessionCookie = "alarmwatch_session"
	sessionTTL    = 24 * time.Hour
	authRealm     = `Basic realm="alarmwatch"`
)

// CredentialsFunc returns the current web username and password. It is
// called per check so a config reload takes effect without a restart.
type CredentialsFunc func() (user, password string)

// SessionManager tracks dashboard logins. Requests authenticate with either
// the session cookie or HTTP basic credentials.
type SessionManager struct {
	credentials CredentialsFunc
	now         func() time.Time

	mu      sync.Mutex
	expires map[string]time.Time
}

// NewSessionManager returns a SessionManager that checks logins against credentials.
func NewSessionManager(credentials CredentialsFunc) *SessionManager {
	return &SessionManager{
		credentials: credentials,
		now:         time.Now,
		expires:     make(map[string]time.Time),
	}
}

func (sm *SessionManager) issue() string {
	token := rand.Text()
	now := sm.now()

	sm.mu.Lock()
	defer sm.mu.Unlock()
	maps.DeleteFunc(sm.expires, func(_ string, exp time.Time) bool { return !now.Before(exp) })
	sm.expires[token] = now.Add(sessionTTL)
	return token
}

func (sm *SessionManager) valid(token string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	exp, ok := sm.expires[token]
	if ok && !sm.now().Before(exp) {
		delete(sm.expires, token)
		return false
	}
	return ok
}

func (sm *SessionManager) revoke(token string) {
	sm.mu.Lock()
	delete(sm.expires, token)
	sm.mu.Unlock()
}

// matches compares both fields in constant time.
func (sm *SessionManager) matches(user, password string) bool {
	wantUser, wantPass := sm.credentials()
	u := subtle.ConstantTimeCompare([]byte(user), []byte(wantUser))
	p := subtle.ConstantTimeCompare([]byte(password), []byte(wantPass))
	return u&p == 1
}

func (sm *SessionManager) authenticated(r *http.Request) bool {
	if c, err := r.Cookie(sessionCookie); err == nil && sm.valid(c.Value) {
		return true
	}
	user, pass, ok := r.BasicAuth()
	return ok && sm.matches(user, pass)
}

// AuthMiddleware wraps handlers so unauthenticated requests get 401 with a
// basic auth challenge.
func (sm *SessionManager) AuthMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !sm.authenticated(r) {
				w.Header().Set("WWW-Authenticate", authRealm)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
}

// Login checks the credentials and on success sets a fresh session cookie.
func (sm *SessionManager) Login(w http.ResponseWriter, r *http.Request, user, password string) bool {
	if !sm.matches(user, password) {
		return false
	}
	http.SetCookie(w, sessionCookieFor(r, sm.issue(), sessionTTL))
	return true
}

// Logout revokes the caller's session, if any, and expires the cookie.
func (sm *SessionManager) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		sm.revoke(c.Value)
	}
	http.SetCookie(w, sessionCookieFor(r, "", -1))
}

// sessionCookieFor builds the session cookie; a negative ttl deletes it.
func sessionCookieFor(r *http.Request, token string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl / time.Second)
	if ttl < 0 {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	}
}
