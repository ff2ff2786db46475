package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the token payload.
type Claims struct {
	Permission string `json:"perm,omitempty"`
	jwt.RegisteredClaims
}

// Config configures an [Issuer].
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	Leeway time.Duration
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	cfg Config
	now func() time.Time
}

// NewIssuer validates cfg. now may be nil, in which case time.Now is used.
func NewIssuer(cfg Config, now func() time.Time) (*Issuer, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("token TTL must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token leeway must be within [0, 2m]")
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{cfg: cfg, now: now}, nil
}

// Issue returns a signed token for subject together with its token ID.
func (i *Issuer) Issue(subject, permission string) (token string, id string, err error) {
	now := i.now()
	id = uuid.NewString()
	claims := Claims{
		Permission: permission,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   subject,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return token, id, nil
}

// Parse verifies signature, issuer and expiry and returns the claims.
func (i *Issuer) Parse(token string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(i.cfg.Leeway),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.cfg.Issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return i.cfg.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// ExpiredAt reports whether token is a JWT whose exp claim is not after now.
// The signature is not checked. Tokens that are not JWTs, or carry no exp
// claim, report false.
func ExpiredAt(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.Time.After(now)
}
