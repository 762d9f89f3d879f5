package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/bookstore/services/storefront/internal/clients"
	"github.com/bookstore/services/storefront/internal/repo"
	"github.com/go-chi/chi/v5"
)

const (
	maxProfilePicSize = 5 << 20
	// multipart overhead on top of the picture itself
	maxProfileFormSize = maxProfilePicSize + 1<<20
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.ListUsers(r.Context())
	if err != nil {
		s.internalError(w, r, "failed to list users", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	user, err := s.users.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.internalError(w, r, "failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.users.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.internalError(w, r, "failed to delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type profileRequest struct {
	Username string `json:"username" validate:"omitempty,min=3,max=100"`
	Email    string `json:"email" validate:"omitempty,email,max=255"`
}

type profilePicture struct {
	data     []byte
	filename string
}

// readProfileForm reads the update from a multipart form, or from a JSON
// body when no picture is sent.
func readProfileForm(w http.ResponseWriter, r *http.Request) (profileRequest, *profilePicture, error) {
	var req profileRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := decodeJSON(w, r, &req); err != nil {
			return req, nil, err
		}
		return req, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxProfileFormSize)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxProfileFormSize); err != nil {
			return req, nil, fmt.Errorf("invalid form: profile_pic must not exceed %d MiB", maxProfilePicSize>>20)
		}
	} else if err := r.ParseForm(); err != nil {
		return req, nil, errors.New("invalid form")
	}
	req.Username = strings.TrimSpace(r.FormValue("username"))
	req.Email = strings.TrimSpace(r.FormValue("email"))

	if r.MultipartForm == nil {
		return req, nil, nil
	}
	file, header, err := r.FormFile("profile_pic")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, errors.New("invalid profile_pic")
	}
	defer file.Close()

	if header.Size > maxProfilePicSize {
		return req, nil, fmt.Errorf("profile_pic must not exceed %d MiB", maxProfilePicSize>>20)
	}
	data, err := io.ReadAll(io.LimitReader(file, maxProfilePicSize+1))
	if err != nil {
		return req, nil, errors.New("invalid profile_pic")
	}
	if len(data) > maxProfilePicSize {
		return req, nil, fmt.Errorf("profile_pic must not exceed %d MiB", maxProfilePicSize>>20)
	}
	if len(data) == 0 {
		return req, nil, errors.New("profile_pic is empty")
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return req, nil, errors.New("profile_pic must be an image")
	}

	return req, &profilePicture{data: data, filename: header.Filename}, nil
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	req, pic, err := readProfileForm(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	update := repo.ProfileUpdate{Username: req.Username, Email: req.Email}
	if pic != nil {
		url, err := s.images.Upload(r.Context(), pic.data, pic.filename)
		if err != nil {
			if errors.Is(err, clients.ErrUploadDisabled) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.internalError(w, r, "failed to upload profile picture", err)
			return
		}
		update.ProfilePicURL = url
	}

	user, err := s.users.UpdateProfile(r.Context(), claims.UserID, update)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, repo.ErrUserAlreadyExists):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.internalError(w, r, "failed to update profile", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, user)
}
