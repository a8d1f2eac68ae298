package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paloma-health/paloma-server/internal/apperrors"
	"github.com/paloma-health/paloma-server/internal/models"
	"github.com/paloma-health/paloma-server/internal/repository"
	"github.com/paloma-health/paloma-server/internal/service/auth/tokenmanager"
)

const (
	defaultAuthHeaderName = "Authorization"
	defaultAuthScheme     = "Bearer"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type Config struct {
	// Hasher to use during user registration or login process
	// BcryptHasher is used when empty
	Hasher PasswordHasher
}

// Identity of an authenticated request
// Carries only what the access token proves, no store lookup involved
type Identity struct {
	UserID uuid.UUID
}

type RegisterParams struct {
	Username string
	Email    string
	FullName string
	Password string

	// Initial role granted as primary, RoleUser when empty
	Role models.RoleType
}

type AuthService struct {
	token   *tokenmanager.TokenManager
	hasher  PasswordHasher
	storage repository.Storage

	// Digest compared against when login hits an unknown user, so both
	// failure paths cost one bcrypt comparison
	dummyHash string
}

func NewService(cfg Config, token *tokenmanager.TokenManager, storage repository.Storage) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}

	if token == nil || storage == nil {
		return nil, errors.New("token manager and storage must not be nil")
	}

	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("error while preparing hasher. Err: %w", err)
	}

	return &AuthService{
		token:     token,
		hasher:    hasher,
		storage:   storage,
		dummyHash: dummyHash,
	}, nil
}

// Register creates the user and grants the initial primary role
// It does not authenticate: the client is expected to login afterwards
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (models.User, error) {
	var user models.User

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	role := params.Role
	if role == "" {
		role = models.RoleUser
	}

	// User row and the initial role grant must appear together
	err = s.storage.InTx(ctx, func(store repository.Storage) error {
		user, err = store.User().CreateUser(ctx, repository.CreateUserParams{
			Username:       params.Username,
			Email:          params.Email,
			FullName:       params.FullName,
			HashedPassword: hash,
		})
		if err != nil {
			return err
		}

		_, err = store.Role().Grant(ctx, models.RoleGrant{
			UserID:    user.ID,
			Role:      role,
			IsPrimary: true,
		})
		return err
	})
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

// Login verifies credentials and mints a fresh token pair
// Missing user and wrong password both return ErrInvalidCredentials
func (s *AuthService) Login(ctx context.Context, login string, password string) (models.User, models.TokenPair, error) {
	user, err := s.storage.User().GetUserByLogin(ctx, login)
	if err != nil {
		// Burn a comparison anyway to keep both paths the same cost
		_ = s.hasher.Compare(s.dummyHash, password)
		return models.User{}, models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	// Single active session: outstanding refresh tokens die on new login
	if _, err := s.storage.Refresh().RevokeActive(ctx, user.ID); err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("error while revoking old tokens. Err: %w", err)
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	now := time.Now()
	if err := s.storage.User().SetLastLogin(ctx, user.ID, now); err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("error while updating last login. Err: %w", err)
	}
	user.LastLoginAt = &now

	return user, pair, nil
}

// RefreshPair rotates tokens: the presented refresh token is atomically
// marked used and a new pair is minted
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	token, err := s.token.UseRefresh(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.storage.User().GetUserByID(ctx, token.UserID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while loading token subject. Err: %w", err)
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return pair, nil
}

// Logout revokes every unused refresh token of the user
// Access tokens already issued stay valid until natural expiry: stateless
// tokens cannot be recalled, known limitation of this design
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	_, err := s.storage.Refresh().RevokeActive(ctx, userID)
	if err != nil {
		return fmt.Errorf("error while revoking tokens. Err: %w", err)
	}

	return nil
}

// Authenticate resolves the bearer token of the request to an identity
// Pure token verification, storage is never touched here
func (s *AuthService) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	access, err := readBearer(r)
	if err != nil {
		return Identity{}, err
	}

	userID, err := s.token.ParseAccess(ctx, access)
	if err != nil {
		return Identity{}, err
	}

	return Identity{UserID: userID}, nil
}

func readBearer(r *http.Request) (string, error) {
	header := r.Header.Get(defaultAuthHeaderName)
	if header == "" {
		return "", fmt.Errorf("%w: no authorization header", apperrors.ErrAccessTokenInvalid)
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, defaultAuthScheme) || token == "" {
		return "", fmt.Errorf("%w: malformed authorization header", apperrors.ErrAccessTokenInvalid)
	}

	return token, nil
}
