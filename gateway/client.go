package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	quizdom "github.com/paifgx/quizdom-sub000"
	"github.com/paifgx/quizdom-sub000/internal/tokens"
)

const (
	maxResponseBytes = 1 << 20
	defaultUserAgent = "quizdom-client/1"
)

const (
	opLogin         = "login"
	opRegister      = "register"
	opCurrentUser   = "current_user"
	opUpdateProfile = "update_profile"
	opDeleteAccount = "delete_account"
	opLogout        = "logout"
)

// Client talks to the identity service. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
	clock     clock.Clock
}

var _ quizdom.CredentialGateway = (*Client)(nil)

// Option customizes a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithClock sets the clock used for the token expiry pre-check.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// New creates a client for the identity service rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("gateway base url must be http or https")
	}

	c := &Client{
		base:      u,
		http:      &http.Client{Timeout: 30 * time.Second},
		userAgent: defaultUserAgent,
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges email and password for a user and bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*quizdom.AuthResult, error) {
	return c.authenticate(ctx, opLogin, "/auth/login", email, password)
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, email, password string) (*quizdom.AuthResult, error) {
	return c.authenticate(ctx, opRegister, "/auth/register", email, password)
}

func (c *Client) authenticate(ctx context.Context, op, path, email, password string) (*quizdom.AuthResult, error) {
	var out quizdom.AuthResult
	if err := c.do(ctx, op, http.MethodPost, path, "", credentials{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	if out.Token == "" || !validUser(out.User) {
		return nil, malformed(op)
	}
	normalizeUser(out.User)
	return &out, nil
}

// CurrentUser resolves token to the signed-in user.
func (c *Client) CurrentUser(ctx context.Context, token string) (*quizdom.User, error) {
	if token == "" {
		return nil, &quizdom.GatewayError{Op: opCurrentUser, Err: quizdom.ErrUnauthorized, Reason: "missing token"}
	}
	if tokens.ExpiredAt(token, c.clock.Now()) {
		return nil, &quizdom.GatewayError{Op: opCurrentUser, Err: quizdom.ErrUnauthorized, Reason: "token expired"}
	}

	var out quizdom.User
	if err := c.do(ctx, opCurrentUser, http.MethodGet, "/auth/me", token, nil, &out); err != nil {
		return nil, err
	}
	if !validUser(&out) {
		return nil, malformed(opCurrentUser)
	}
	normalizeUser(&out)
	return &out, nil
}

// UpdateProfile applies patch and returns the fields the server changed.
func (c *Client) UpdateProfile(ctx context.Context, token string, patch quizdom.ProfilePatch) (*quizdom.ProfileFields, error) {
	var out quizdom.ProfileFields
	if err := c.do(ctx, opUpdateProfile, http.MethodPatch, "/auth/me", token, patch, &out); err != nil {
		return nil, err
	}
	if out.Permission != nil && !out.Permission.Valid() {
		out.Permission = nil
	}
	return &out, nil
}

// DeleteAccount removes the signed-in account.
func (c *Client) DeleteAccount(ctx context.Context, token string) error {
	return c.do(ctx, opDeleteAccount, http.MethodDelete, "/auth/me", token, nil, nil)
}

// Logout revokes token on the server.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, opLogout, http.MethodPost, "/auth/logout", token, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &quizdom.GatewayError{
			Op:     op,
			Err:    fmt.Errorf("%w: %w", quizdom.ErrGatewayUnavailable, err),
			Reason: "identity service unreachable",
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &quizdom.GatewayError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%w: read response: %w", quizdom.ErrGatewayUnavailable, err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &quizdom.GatewayError{
			Op:     op,
			Status: resp.StatusCode,
			Reason: errorMessage(raw),
			Err:    classify(op, resp.StatusCode),
		}
	}

	if out == nil || len(raw) == 0 {
		if out != nil {
			return malformed(op)
		}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &quizdom.GatewayError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%w: decode response: %v", quizdom.ErrGatewayUnavailable, err),
		}
	}
	return nil
}

// classify maps an unsuccessful status to a sentinel error.
func classify(op string, status int) error {
	switch {
	case status == http.StatusUnauthorized && op == opLogin:
		return quizdom.ErrInvalidCredentials
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return quizdom.ErrUnauthorized
	case status == http.StatusNotFound && (op == opCurrentUser || op == opUpdateProfile || op == opDeleteAccount):
		return quizdom.ErrUnauthorized
	case status == http.StatusConflict:
		return quizdom.ErrAccountExists
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		switch op {
		case opRegister:
			return quizdom.ErrRegistrationInvalid
		case opUpdateProfile:
			return quizdom.ErrProfileInvalid
		case opLogin:
			return quizdom.ErrInvalidCredentials
		}
	}
	return quizdom.ErrGatewayUnavailable
}

func errorMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	switch {
	case body.Error != "":
		return body.Error
	case body.Message != "":
		return body.Message
	default:
		return body.Detail
	}
}

func malformed(op string) error {
	return &quizdom.GatewayError{
		Op:     op,
		Err:    quizdom.ErrGatewayUnavailable,
		Reason: "malformed response from identity service",
	}
}

func validUser(u *quizdom.User) bool {
	return u != nil && u.ID != ""
}

func normalizeUser(u *quizdom.User) {
	if !u.Permission.Valid() {
		u.Permission = quizdom.RolePlayer
	}
}
