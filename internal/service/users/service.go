package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/session"
	"slotbook/backend/internal/store"
	"slotbook/backend/internal/token"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Service struct {
	repo     store.UserRepository
	sessions session.Store
	tokens   *token.Manager
	log      *slog.Logger
}

func NewService(repo store.UserRepository, sessions session.Store, tokens *token.Manager, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:     repo,
		sessions: sessions,
		tokens:   tokens,
		log:      log.With(slog.String("component", "users")),
	}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      domain.UserRole
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, validationError("a valid email is required")
	}
	if len(in.Password) < 8 {
		return domain.User{}, validationError("password must be at least 8 characters")
	}
	if !in.Role.Valid() {
		return domain.User{}, validationError("invalid role")
	}
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if firstName == "" || lastName == "" {
		return domain.User{}, validationError("first_name and last_name are required")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	user, err := s.repo.CreateUser(ctx,
		domain.User{Email: email, HashedPassword: string(hashed), Role: in.Role},
		domain.Profile{FirstName: firstName, LastName: lastName},
	)
	if err != nil {
		return domain.User{}, err
	}

	s.log.Info("user registered", slog.String("user_id", user.ID.String()), slog.String("role", string(user.Role)))
	return user, nil
}

type LoginOutput struct {
	Token string
	User  domain.User
}

func (s *Service) Login(ctx context.Context, email, password string) (LoginOutput, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return LoginOutput{}, validationError("email is required")
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return LoginOutput{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return LoginOutput{}, ErrInvalidCredentials
	}

	signed, tokenID, err := s.tokens.Issue(user.ID.String(), string(user.Role))
	if err != nil {
		return LoginOutput{}, err
	}
	if err := s.sessions.Save(ctx, tokenID, user.ID.String(), s.tokens.TTL()); err != nil {
		return LoginOutput{}, err
	}

	s.log.Info("user logged in", slog.String("user_id", user.ID.String()))
	return LoginOutput{Token: signed, User: user}, nil
}

func (s *Service) Logout(ctx context.Context, tokenID string) error {
	if strings.TrimSpace(tokenID) == "" {
		return validationError("token id is required")
	}
	return s.sessions.Delete(ctx, tokenID)
}

type ProfileOutput struct {
	User    domain.User
	Profile domain.Profile
}

func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (ProfileOutput, error) {
	if userID == uuid.Nil {
		return ProfileOutput{}, validationError("user_id is required")
	}

	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return ProfileOutput{}, err
	}
	profile, err := s.repo.FindProfileByUserID(ctx, userID)
	if err != nil {
		return ProfileOutput{}, err
	}
	return ProfileOutput{User: user, Profile: profile}, nil
}

type UpdateProfileInput struct {
	FirstName string
	LastName  string
}

func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, in UpdateProfileInput) error {
	if userID == uuid.Nil {
		return validationError("user_id is required")
	}
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if firstName == "" || lastName == "" {
		return validationError("first_name and last_name are required")
	}
	return s.repo.UpdateProfile(ctx, userID, firstName, lastName)
}
