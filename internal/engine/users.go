package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskline/internal/domain"
	"taskline/internal/repo"
)

// ErrBadCredentials covers unknown email and wrong password alike so
// login failures do not leak which one it was.
var ErrBadCredentials = errors.New("invalid email or password")

const minPasswordLen = 8

func (e Engine) CreateUser(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, fmt.Errorf("%w: valid email is required", ErrValidation)
	}
	if len(password) < minPasswordLen {
		return domain.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}
	if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, fmt.Errorf("%w: email already registered", ErrValidation)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrBadCredentials
		}
		return domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrBadCredentials
	}
	return u, nil
}
