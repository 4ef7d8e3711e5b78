package account

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	dlerrors "github.com/tendant/devicelimit/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

type CreateParams struct {
	Username    string
	Email       string
	DisplayName string
	Password    string
	Roles       []string
}

func (s *Service) Create(ctx context.Context, params CreateParams) (Account, error) {
	username := strings.TrimSpace(params.Username)
	if username == "" {
		return Account{}, dlerrors.MissingData("username")
	}
	if params.Email == "" {
		return Account{}, dlerrors.MissingData("email")
	}
	if params.Password == "" {
		return Account{}, dlerrors.MissingData("password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("failed to hash password: %w", err)
	}

	roles := params.Roles
	if len(roles) == 0 {
		roles = []string{RoleSubscriber}
	}

	created, err := s.repo.Create(ctx, Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        params.Email,
		DisplayName:  params.DisplayName,
		PasswordHash: string(hash),
		Roles:        roles,
		CreatedAt:    s.now().UTC(),
	})
	if errors.Is(err, ErrAlreadyExists) {
		return Account{}, dlerrors.InvalidInput("username", "already taken")
	}
	if err != nil {
		return Account{}, err
	}
	slog.Info("Account created", "userID", created.ID, "username", created.Username, "roles", created.Roles)
	return created, nil
}

// Authenticate checks username and password. Unknown users and wrong passwords yield the
// same error.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Account, error) {
	a, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return Account{}, dlerrors.InvalidCredentials()
	}
	if err != nil {
		return Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return Account{}, dlerrors.InvalidCredentials()
		}
		return Account{}, fmt.Errorf("failed to compare password: %w", err)
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Account{}, dlerrors.NotFound("user", id.String())
	}
	return a, err
}

func (s *Service) FindByUsername(ctx context.Context, username string) (Account, error) {
	a, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return Account{}, dlerrors.NotFound("user", username)
	}
	return a, err
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// Delete removes the account. Deleting an unknown id is not an error.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

type AdminParams struct {
	Username string
	Email    string
	Password string
}

// EnsureAdmin creates the administrator account unless the username already exists.
// When Password is empty a random one is generated and returned so it can be shown once.
func (s *Service) EnsureAdmin(ctx context.Context, params AdminParams) (Account, string, error) {
	existing, err := s.repo.GetByUsername(ctx, params.Username)
	if err == nil {
		return existing, "", nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Account{}, "", err
	}

	password := params.Password
	generated := ""
	if password == "" {
		if password, err = generatePassword(); err != nil {
			return Account{}, "", err
		}
		generated = password
	}

	a, err := s.Create(ctx, CreateParams{
		Username: params.Username,
		Email:    params.Email,
		Password: password,
		Roles:    []string{RoleAdmin},
	})
	if err != nil {
		return Account{}, "", fmt.Errorf("failed to create admin account: %w", err)
	}
	return a, generated, nil
}

func generatePassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
