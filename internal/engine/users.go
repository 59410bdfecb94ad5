package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"teamtask/internal/config"
	"teamtask/internal/domain"
	"teamtask/internal/engine/auth"
	"teamtask/internal/repo"
)

// ErrInvalidCredentials is returned by Login for any unknown email or wrong password.
var ErrInvalidCredentials = auth.UnauthenticatedError{Reason: "invalid email or password"}

// ResolvePrincipal loads the current role of userID.
func (e Engine) ResolvePrincipal(ctx context.Context, userID string) (domain.Principal, error) {
	u, err := e.users().GetUser(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Principal{}, auth.UnauthenticatedError{Reason: "unknown user " + userID}
	}
	if err != nil {
		return domain.Principal{}, fmt.Errorf("resolve principal %s: %w", userID, err)
	}
	return domain.Principal{ID: u.ID, Role: u.Role}, nil
}

// Me returns the user record of the caller.
func (e Engine) Me(ctx context.Context, actor *domain.Principal) (domain.User, error) {
	p, err := principal(actor)
	if err != nil {
		return domain.User{}, err
	}
	u, err := e.users().GetUser(ctx, p.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, auth.NotFoundError{Entity: "user", ID: p.ID}
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user %s: %w", p.ID, err)
	}
	u.PasswordHash = ""
	return u, nil
}

// ListUsers returns every user. Any authenticated principal may call it.
func (e Engine) ListUsers(ctx context.Context, actor *domain.Principal) ([]domain.User, error) {
	if _, err := principal(actor); err != nil {
		return nil, err
	}
	users, err := e.Repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// UserCreateOptions are parameters for creating a user.
type UserCreateOptions struct {
	ID       string
	Name     string `validate:"required,max=100"`
	Email    string `validate:"required,email"`
	Role     string `validate:"required"`
	Password string `validate:"required,min=6"`
}

// CreateUser registers a user. Only an Admin may do so.
func (e Engine) CreateUser(ctx context.Context, actor *domain.Principal, opts UserCreateOptions) (domain.User, error) {
	p, err := principal(actor)
	if err != nil {
		return domain.User{}, err
	}
	if err := auth.Require(p, domain.RoleAdmin); err != nil {
		return domain.User{}, e.denied("create_user", p, "", err)
	}
	return e.insertUser(ctx, opts)
}

func (e Engine) insertUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	opts.Email = strings.ToLower(strings.TrimSpace(opts.Email))
	opts.ID = strings.TrimSpace(opts.ID)
	if err := validateStruct(opts); err != nil {
		return domain.User{}, err
	}
	role, ok := domain.ParseRole(opts.Role)
	if !ok {
		return domain.User{}, auth.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", opts.Role)}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	u := domain.User{
		ID:           opts.ID,
		Name:         opts.Name,
		Email:        opts.Email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    e.now(),
	}
	if err := e.Repo.InsertUser(ctx, nil, u); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.User{}, auth.ValidationError{Field: "email", Reason: "a user with this id or email already exists"}
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	e.logger().WithFields(log.Fields{"user_id": u.ID, "role": u.Role.String()}).Info("user created")
	u.PasswordHash = ""
	return u, nil
}

// SetUserRole changes the role of id. Only an Admin may do so; the new
// role takes effect on the user's next request.
func (e Engine) SetUserRole(ctx context.Context, actor *domain.Principal, id, role string) (domain.User, error) {
	p, err := principal(actor)
	if err != nil {
		return domain.User{}, err
	}
	if err := auth.Require(p, domain.RoleAdmin); err != nil {
		return domain.User{}, e.denied("set_role", p, "", err)
	}
	r, ok := domain.ParseRole(role)
	if !ok {
		return domain.User{}, auth.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}
	if err := e.Repo.UpdateUserRole(ctx, id, r); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, auth.NotFoundError{Entity: "user", ID: id}
		}
		return domain.User{}, fmt.Errorf("update role: %w", err)
	}
	if ev, ok := e.users().(evicter); ok {
		ev.Evict(ctx, id)
	}
	u, err := e.Repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("reload user: %w", err)
	}
	e.logger().WithFields(log.Fields{"user_id": id, "role": r.String(), "by": p.ID}).Info("role changed")
	u.PasswordHash = ""
	return u, nil
}

// Login checks credentials and returns the matching user.
func (e Engine) Login(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	u.PasswordHash = ""
	return u, nil
}

// SeedUsers creates the configured users that do not exist yet.
// It returns how many were created.
func (e Engine) SeedUsers(ctx context.Context, seeds []config.SeedUser) (int, error) {
	created := 0
	for _, s := range seeds {
		ok, err := e.Repo.UserExists(ctx, s.ID)
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", s.ID, err)
		}
		if ok {
			continue
		}
		if _, err := e.insertUser(ctx, UserCreateOptions{
			ID: s.ID, Name: s.Name, Email: s.Email, Role: s.Role, Password: s.Password,
		}); err != nil {
			return created, fmt.Errorf("seed %s: %w", s.ID, err)
		}
		created++
	}
	return created, nil
}

// CreateAPIKey issues a new key for userID and returns the raw key once.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (string, domain.APIKey, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", domain.APIKey{}, auth.NotFoundError{Entity: "user", ID: userID}
		}
		return "", domain.APIKey{}, err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, fmt.Errorf("generate key: %w", err)
	}
	raw := "tt_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.now(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", domain.APIKey{}, fmt.Errorf("insert api key: %w", err)
	}
	return raw, key, nil
}

// AuthenticateAPIKey resolves a raw API key to its owner's current principal.
func (e Engine) AuthenticateAPIKey(ctx context.Context, raw string) (domain.Principal, error) {
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(raw))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Principal{}, auth.UnauthenticatedError{Reason: "invalid api key"}
	}
	if err != nil {
		return domain.Principal{}, fmt.Errorf("lookup api key: %w", err)
	}
	return e.ResolvePrincipal(ctx, key.UserID)
}
