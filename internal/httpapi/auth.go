package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tokopos/internal/domain"
	"tokopos/internal/store"
)

// AuthManager issues and parses the HS256 bearer tokens the API runs
// on. Credentials live in the store; nothing is cached here, so a user
// created mid-flight can log in immediately.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	repo     store.Repository
}

type posClaims struct {
	jwtlib.RegisteredClaims
	Role   string `json:"role"`
	UserID int64  `json:"uid"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, repo store.Repository) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		repo:     repo,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || strings.TrimSpace(req.Password) == "" {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	account, err := a.findUser(ctx, username)
	if err != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(account, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        account.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) findUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	users, err := a.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.ToLower(users[i].Username) == username {
			return &users[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.UserID < 1 {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{
		UserID:   claims.UserID,
		Username: sub,
		Role:     claims.Role,
	}, nil
}

func (a *AuthManager) sign(account *domain.UserAccount, expiresAt time.Time) (string, error) {
	claims := posClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   account.Username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "tokopos",
		},
		Role:   account.Role,
		UserID: account.ID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
