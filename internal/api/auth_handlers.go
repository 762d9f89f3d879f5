package api

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/bookstore/services/storefront/internal/auth"
	"github.com/bookstore/services/storefront/internal/db"
	"github.com/bookstore/services/storefront/internal/repo"
	"go.uber.org/zap"
)

const msgBadCredentials = "invalid credentials"

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required"`
}

func (req *loginRequest) identifier() string {
	for _, v := range []string{req.Login, req.Username, req.Email} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// dummyHash is verified against when the login names no user, so unknown
// and known accounts take the same time to reject.
var (
	dummyHashOnce sync.Once
	dummyHash     string
)

func burnPasswordCheck(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = auth.HashPassword("not-a-real-password")
	})
	auth.VerifyPassword(dummyHash, password)
}

func (s *Server) roleFor(username string) string {
	if _, ok := s.admins[username]; ok {
		return db.RoleAdmin
	}
	return db.RoleUser
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user := &db.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         s.roleFor(req.Username),
	}
	if err := s.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExists) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.internalError(w, r, "failed to register user", err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	login := req.identifier()
	if login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username or email and password are required")
		return
	}

	if !s.loginIDs.allow(strings.ToLower(login)) {
		s.log.Warn("Login rate limit exceeded for account", zap.String("ip", clientIP(r)))
		writeError(w, http.StatusTooManyRequests, msgTooManyLogins)
		return
	}

	user, err := s.users.FindByLogin(r.Context(), login)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			burnPasswordCheck(req.Password)
			writeError(w, http.StatusUnauthorized, msgBadCredentials)
			return
		}
		s.internalError(w, r, "failed to log in", err)
		return
	}
	if !auth.VerifyPassword(user.PasswordHash, req.Password) {
		s.log.Info("Failed login", zap.Uint("user_id", user.ID), zap.String("ip", clientIP(r)))
		writeError(w, http.StatusUnauthorized, msgBadCredentials)
		return
	}

	token, claims, err := s.tokens.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		s.internalError(w, r, "failed to issue token", err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	if err := s.tokens.Revoke(r.Context(), claims); err != nil {
		s.internalError(w, r, "failed to log out", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
