package devidentity

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ctxUserID  = "devidentity.uid"
	ctxTokenID = "devidentity.jti"

	maxDisplayNameLength = 64
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	DisplayName   string `json:"display_name,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	Permission    string `json:"permission"`
}

type authResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

type profileRequest struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Email       *string `json:"email"`
}

type profileResponse struct {
	Email         *string `json:"email,omitempty"`
	EmailVerified *bool   `json:"email_verified,omitempty"`
	DisplayName   *string `json:"display_name,omitempty"`
	AvatarURL     *string `json:"avatar_url,omitempty"`
	Permission    string  `json:"permission"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toUserResponse(acc *account) userResponse {
	return userResponse{
		ID:            acc.ID,
		Email:         acc.Email,
		EmailVerified: acc.EmailVerified,
		DisplayName:   acc.DisplayName,
		AvatarURL:     acc.AvatarURL,
		Permission:    acc.Permission,
	}
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

func (s *Server) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	email := normalizeEmail(req.Email)
	if !validEmail(email) {
		abortWithError(c, http.StatusUnprocessableEntity, "invalid email address")
		return
	}
	if len(req.Password) < s.cfg.MinPasswordLength {
		abortWithError(c, http.StatusUnprocessableEntity,
			"password must be at least "+strconv.Itoa(s.cfg.MinPasswordLength)+" characters")
		return
	}

	permission := PermissionPlayer
	if _, ok := s.admins[email]; ok {
		permission = PermissionAdmin
	}

	id, err := s.CreateAccount(email, req.Password, permission)
	if errors.Is(err, errEmailTaken) {
		abortWithError(c, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		s.logger.Error("create account failed", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "registration failed")
		return
	}

	s.respondWithToken(c, http.StatusCreated, id)
}

func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	email := normalizeEmail(req.Email)
	s.mu.RLock()
	var hash, id string
	if uid, ok := s.byEmail[email]; ok {
		id = uid
		hash = s.users[uid].PasswordHash
	}
	s.mu.RUnlock()

	if id == "" {
		abortWithError(c, http.StatusUnauthorized, "invalid email or password")
		return
	}
	ok, err := s.hasher.Verify(req.Password, hash)
	if err != nil || !ok {
		abortWithError(c, http.StatusUnauthorized, "invalid email or password")
		return
	}

	s.respondWithToken(c, http.StatusOK, id)
}

func (s *Server) respondWithToken(c *gin.Context, status int, id string) {
	s.mu.RLock()
	acc, ok := s.users[id]
	var resp userResponse
	if ok {
		resp = toUserResponse(acc)
	}
	s.mu.RUnlock()
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, _, err := s.issuer.Issue(resp.ID, resp.Permission)
	if err != nil {
		s.logger.Error("issue token failed", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "could not issue token")
		return
	}
	c.JSON(status, authResponse{User: resp, Token: token})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortWithError(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.issuer.Parse(token)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		s.mu.RLock()
		_, revoked := s.revoked[claims.ID]
		_, exists := s.users[claims.Subject]
		s.mu.RUnlock()

		if revoked {
			abortWithError(c, http.StatusUnauthorized, "token revoked")
			return
		}
		if !exists {
			abortWithError(c, http.StatusNotFound, "account not found")
			return
		}

		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxTokenID, claims.ID)
		c.Next()
	}
}

func (s *Server) me(c *gin.Context) {
	uid := c.GetString(ctxUserID)

	s.mu.RLock()
	acc, ok := s.users[uid]
	var resp userResponse
	if ok {
		resp = toUserResponse(acc)
	}
	s.mu.RUnlock()

	if !ok {
		abortWithError(c, http.StatusNotFound, "account not found")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) updateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	var email string
	if req.DisplayName != nil {
		trimmed := strings.TrimSpace(*req.DisplayName)
		if len(trimmed) > maxDisplayNameLength {
			abortWithError(c, http.StatusUnprocessableEntity, "display name too long")
			return
		}
		req.DisplayName = &trimmed
	}
	if req.Email != nil {
		email = normalizeEmail(*req.Email)
		if !validEmail(email) {
			abortWithError(c, http.StatusUnprocessableEntity, "invalid email address")
			return
		}
	}

	uid := c.GetString(ctxUserID)
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.users[uid]
	if !ok {
		abortWithError(c, http.StatusNotFound, "account not found")
		return
	}

	resp := profileResponse{Permission: acc.Permission}
	if req.Email != nil && email != acc.Email {
		if owner, taken := s.byEmail[email]; taken && owner != uid {
			abortWithError(c, http.StatusConflict, "email already registered")
			return
		}
		delete(s.byEmail, acc.Email)
		s.byEmail[email] = uid
		acc.Email = email
		acc.EmailVerified = false
		resp.Email = &email
		verified := false
		resp.EmailVerified = &verified
	}
	if req.DisplayName != nil {
		acc.DisplayName = *req.DisplayName
		name := acc.DisplayName
		resp.DisplayName = &name
	}
	if req.AvatarURL != nil {
		acc.AvatarURL = strings.TrimSpace(*req.AvatarURL)
		avatar := acc.AvatarURL
		resp.AvatarURL = &avatar
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) deleteAccount(c *gin.Context) {
	uid := c.GetString(ctxUserID)
	jti := c.GetString(ctxTokenID)

	s.mu.Lock()
	if acc, ok := s.users[uid]; ok {
		delete(s.byEmail, acc.Email)
		delete(s.users, uid)
	}
	s.revoked[jti] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("account deleted", zap.String("user_id", uid))
	c.Status(http.StatusNoContent)
}

func (s *Server) logout(c *gin.Context) {
	if token := bearerToken(c); token != "" {
		s.Revoke(token)
	}
	c.Status(http.StatusNoContent)
}
