package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/codeWithGodstime/meetmesh/pkg/errors"
)

type Service struct {
	repo      *Repository
	jwtSecret string
	issuer    string
}

// Claims are the access-token claims minted by the Identity Service.
type Claims struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, secret, issuer string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
		issuer:    issuer,
	}
}

func (s *Service) ValidateToken(tokenString string) (int, string, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return 0, "", fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}
	if claims.ID <= 0 {
		return 0, "", fmt.Errorf("%w: missing user id", apperrors.ErrInvalidToken)
	}

	return claims.ID, claims.Username, nil
}

func (s *Service) GetUser(ctx context.Context, id ID) (*User, error) {
	if id <= 0 {
		return nil, apperrors.ErrUserNotFound
	}
	return s.repo.GetUserByID(ctx, id)
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []User{}, nil
	}
	return s.repo.SearchUsers(ctx, query)
}
