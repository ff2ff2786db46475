package devidentity

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paifgx/quizdom-sub000/internal/password"
	"github.com/paifgx/quizdom-sub000/internal/tokens"
)

const (
	PermissionPlayer = "player"
	PermissionAdmin  = "admin"
)

var (
	errEmailTaken  = errors.New("email already registered")
	errUnknownUser = errors.New("unknown user")
)

// Config configures a [Server].
type Config struct {
	Secret            []byte
	TokenTTL          time.Duration
	Issuer            string
	MinPasswordLength int
	// AdminEmails are granted admin permission when they register.
	AdminEmails []string
	Password    password.Config
	// Now overrides the clock used for token timestamps.
	Now func() time.Time
}

// DefaultConfig returns a configuration with a one hour token lifetime. The
// caller must still supply Secret.
func DefaultConfig() Config {
	return Config{
		TokenTTL:          time.Hour,
		Issuer:            "quizdom-dev",
		MinPasswordLength: 8,
		Password:          password.DefaultConfig(),
	}
}

type account struct {
	ID            string
	Email         string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
	Permission    string
	PasswordHash  string
}

// Server holds accounts and revoked token IDs in memory.
type Server struct {
	cfg    Config
	hasher *password.Hasher
	issuer *tokens.Issuer
	logger *zap.Logger
	admins map[string]struct{}

	mu      sync.RWMutex
	users   map[string]*account
	byEmail map[string]string
	revoked map[string]struct{}
}

// New creates an empty identity service.
func New(cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = 8
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	issuer, err := tokens.NewIssuer(tokens.Config{
		Secret: cfg.Secret,
		TTL:    cfg.TokenTTL,
		Issuer: cfg.Issuer,
	}, cfg.Now)
	if err != nil {
		return nil, err
	}

	admins := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, e := range cfg.AdminEmails {
		admins[normalizeEmail(e)] = struct{}{}
	}

	return &Server{
		cfg:     cfg,
		hasher:  hasher,
		issuer:  issuer,
		logger:  logger.Named("devidentity"),
		admins:  admins,
		users:   make(map[string]*account),
		byEmail: make(map[string]string),
		revoked: make(map[string]struct{}),
	}, nil
}

// Handler returns the gin engine serving the identity routes.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	auth := r.Group("/auth")
	auth.POST("/register", s.register)
	auth.POST("/login", s.login)
	auth.POST("/logout", s.logout)

	me := auth.Group("/me", s.authenticate())
	me.GET("", s.me)
	me.PATCH("", s.updateProfile)
	me.DELETE("", s.deleteAccount)

	return r
}

// CreateAccount adds an account directly, bypassing the HTTP surface. It is
// used to seed admins and test fixtures.
func (s *Server) CreateAccount(email, plain, permission string) (string, error) {
	if permission != PermissionAdmin {
		permission = PermissionPlayer
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return "", err
	}

	email = normalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[email]; exists {
		return "", errEmailTaken
	}
	acc := &account{
		ID:           uuid.NewString(),
		Email:        email,
		Permission:   permission,
		PasswordHash: hash,
	}
	s.users[acc.ID] = acc
	s.byEmail[email] = acc.ID
	return acc.ID, nil
}

// SetPermission changes the permission of an existing account.
func (s *Server) SetPermission(id, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.users[id]
	if !ok {
		return errUnknownUser
	}
	acc.Permission = permission
	return nil
}

// Revoke invalidates token so later requests carrying it get 401. Tokens
// that do not parse are ignored.
func (s *Server) Revoke(token string) {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.revoked[claims.ID] = struct{}{}
	s.mu.Unlock()
}

// Accounts returns the number of registered accounts.
func (s *Server) Accounts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
