package session

import (
    "context"
    "errors"
    "strings"
    "sync"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "go.uber.org/zap"

    "github.com/Dev020403/sweet-shop-management-system/internal/api"
    "github.com/Dev020403/sweet-shop-management-system/internal/domain"
)

var (
    ErrNotAuthenticated = errors.New("not authenticated")
    ErrAdminRequired    = errors.New("admin privileges required")
)

// State is the session gate's current position.
type State int

const (
    StateUnauthenticated State = iota
    StateAuthenticating
    StateUser
    StateAdmin
)

func (s State) String() string {
    switch s {
    case StateUnauthenticated:
        return "unauthenticated"
    case StateAuthenticating:
        return "authenticating"
    case StateUser:
        return "authenticated-user"
    case StateAdmin:
        return "authenticated-admin"
    }
    return "unknown"
}

// tokenClaims is the slice of the JWT payload the client cares about. The
// signature is not verified here; the signing secret lives in the backend
// and the token is otherwise treated as an opaque bearer credential.
type tokenClaims struct {
    Role string `json:"role"`
    jwt.RegisteredClaims
}

func (c *tokenClaims) expired(now time.Time) bool {
    return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

func parseClaims(token string) (*tokenClaims, error) {
    var claims tokenClaims
    if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
        return nil, err
    }
    return &claims, nil
}

// Session is the explicit identity object passed to whichever component
// needs it. It owns the stored credential and gates admin-only operations.
type Session struct {
    client *api.Client
    store  CredentialStore
    logger *zap.Logger

    mu    sync.Mutex
    state State
    creds *Credentials
    role  string
    now   func() time.Time
}

func New(client *api.Client, store CredentialStore, logger *zap.Logger) *Session {
    return &Session{
        client: client,
        store:  store,
        logger: logger,
        state:  StateUnauthenticated,
        now:    time.Now,
    }
}

// Restore runs the process-start transition: unauthenticated -> authenticating
// -> authenticated-* when a stored credential is present and not expired,
// back to unauthenticated (clearing the credential) otherwise.
func (s *Session) Restore() State {
    s.mu.Lock()
    defer s.mu.Unlock()

    s.state = StateAuthenticating

    creds, err := s.store.Load()
    if err != nil {
        s.logger.Warn("Failed to load stored credentials", zap.Error(err))
        s.teardownLocked()
        return s.state
    }
    if creds == nil {
        s.state = StateUnauthenticated
        return s.state
    }

    claims, err := parseClaims(creds.Token)
    if err != nil || claims.expired(s.now()) {
        s.logger.Info("Stored credential invalid or expired, clearing")
        s.teardownLocked()
        return s.state
    }

    s.creds = creds
    s.role = roleFromClaims(claims)
    s.state = stateForRole(s.role)
    s.logger.Info("Session restored",
        zap.String("username", creds.Username),
        zap.String("state", s.state.String()))
    return s.state
}

func (s *Session) Login(ctx context.Context, usernameOrEmail, password string) error {
    resp, err := s.client.Login(ctx, domain.LoginRequest{
        UsernameOrEmail: usernameOrEmail,
        Password:        password,
    })
    if err != nil {
        return err
    }

    claims, err := parseClaims(resp.Token)
    if err != nil {
        return api.ValidationError("login returned an unreadable token")
    }

    creds := &Credentials{Token: resp.Token, Username: resp.Username, Email: resp.Email}
    if err := s.store.Save(creds); err != nil {
        return err
    }

    s.mu.Lock()
    s.creds = creds
    s.role = roleFromClaims(claims)
    s.state = stateForRole(s.role)
    s.mu.Unlock()

    s.logger.Info("Logged in",
        zap.String("username", resp.Username),
        zap.String("role", s.role))
    return nil
}

func (s *Session) Register(ctx context.Context, username, email, password, role string) (domain.RegisterResponse, error) {
    if role == "" {
        role = domain.RoleUser
    }
    return s.client.Register(ctx, domain.RegisterRequest{
        Username: username,
        Email:    email,
        Password: password,
        Role:     strings.ToUpper(role),
    })
}

// Logout is the explicit teardown: credential destroyed, state reset.
func (s *Session) Logout() {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.teardownLocked()
    s.logger.Info("Logged out")
}

// Invalidate is the forced teardown wired to the client's 401 hook.
func (s *Session) Invalidate() {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.state == StateUnauthenticated {
        return
    }
    s.teardownLocked()
    s.logger.Warn("Session invalidated by backend")
}

func (s *Session) teardownLocked() {
    if err := s.store.Clear(); err != nil {
        s.logger.Warn("Failed to clear stored credentials", zap.Error(err))
    }
    s.creds = nil
    s.role = ""
    s.state = StateUnauthenticated
}

// Token implements api.TokenSource. An expired credential is treated as
// detected expiry: the session tears down and nothing is attached.
func (s *Session) Token() string {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.creds == nil {
        return ""
    }
    if claims, err := parseClaims(s.creds.Token); err != nil || claims.expired(s.now()) {
        s.teardownLocked()
        return ""
    }
    return s.creds.Token
}

func (s *Session) State() State {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.state
}

func (s *Session) IsAdmin() bool {
    return s.State() == StateAdmin
}

// User returns the identity of the logged-in user, if any.
func (s *Session) User() (username, email string, ok bool) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.creds == nil {
        return "", "", false
    }
    return s.creds.Username, s.creds.Email, true
}

// RequireAdmin rejects admin-only operations locally, before any request
// is sent.
func (s *Session) RequireAdmin() error {
    switch s.State() {
    case StateAdmin:
        return nil
    case StateUnauthenticated, StateAuthenticating:
        return ErrNotAuthenticated
    default:
        return ErrAdminRequired
    }
}

func roleFromClaims(claims *tokenClaims) string {
    if claims.Role == "" {
        return domain.RoleUser
    }
    return strings.ToUpper(claims.Role)
}

func stateForRole(role string) State {
    if role == domain.RoleAdmin {
        return StateAdmin
    }
    return StateUser
}
