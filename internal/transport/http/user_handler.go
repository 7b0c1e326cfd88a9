package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/service/users"
	"slotbook/backend/internal/store"
)

type usersService interface {
	Register(ctx context.Context, in users.RegisterInput) (domain.User, error)
	Login(ctx context.Context, email, password string) (users.LoginOutput, error)
	Logout(ctx context.Context, tokenID string) error
	GetProfile(ctx context.Context, userID uuid.UUID) (users.ProfileOutput, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, in users.UpdateProfileInput) error
}

type UserHandler struct {
	users    usersService
	validate *validator.Validate
	log      *slog.Logger
}

func NewUserHandler(usersSvc usersService, log *slog.Logger) *UserHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UserHandler{
		users:    usersSvc,
		validate: validator.New(),
		log:      log.With(slog.String("component", "http.users")),
	}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Role      string `json:"role" validate:"required"`
}

type registerResponse struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Message string `json:"message"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "Register"))

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "email, password, firstName, lastName and role are required")
		return
	}

	user, err := h.users.Register(r.Context(), users.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      domain.UserRole(req.Role),
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already in use")
			return
		}
		var vErr *users.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		log.Error("registration failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		UserID:  user.ID.String(),
		Email:   user.Email,
		Role:    string(user.Role),
		Message: "user successfully registered",
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "Login"))

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	out, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user with this email does not exist")
			return
		}
		if errors.Is(err, users.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, loginResponse{Success: false, Message: "incorrect password"})
			return
		}
		var vErr *users.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		log.Error("login failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: out.Token, Message: "login successful"})
}

func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := TokenIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := h.users.Logout(r.Context(), tokenID); err != nil {
		h.log.Error("logout failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

type profileResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "GetProfile"))

	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	out, err := h.users.GetProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		log.Error("profile fetch failed", slog.Any("err", err), slog.String("user_id", userID.String()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		ID:        out.User.ID.String(),
		Email:     out.User.Email,
		FirstName: out.Profile.FirstName,
		LastName:  out.Profile.LastName,
		Role:      string(out.User.Role),
		CreatedAt: out.User.CreatedAt,
		UpdatedAt: out.User.UpdatedAt,
	})
}

type updateProfileRequest struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

type updateProfileResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "UpdateProfile"))

	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "firstName and lastName are required")
		return
	}

	err := h.users.UpdateProfile(r.Context(), userID, users.UpdateProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		var vErr *users.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		log.Error("profile update failed", slog.Any("err", err), slog.String("user_id", userID.String()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, updateProfileResponse{Success: true, Message: "user profile updated successfully"})
}
