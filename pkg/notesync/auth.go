package notesync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/notesync/notesync/pkg/engine"
	"github.com/notesync/notesync/pkg/models"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext returns the authenticated user stored by the auth
// middleware.
func UserIDFromContext(ctx context.Context) (models.UserID, bool) {
	id, ok := ctx.Value(userIDKey).(models.UserID)
	return id, ok && !id.IsZero()
}

// SignToken issues an HS256 token for userID, valid for ttl.
func SignToken(secret string, userID models.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(secret, token string) (models.UserID, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return models.UserID(sub), nil
}

// authenticate resolves the calling user. With a JWT secret configured the
// token comes from the Authorization header, or from the token query
// parameter for websocket clients that cannot set headers. Without one the
// X-User-ID header or userID query parameter is trusted as is.
func (a *App) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.resolveUser(r)
		if err != nil {
			a.logger.Debug("Authentication failed", "path", r.URL.Path, "error", err)
			respondError(w, http.StatusUnauthorized, engine.KindAuthorization, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *App) resolveUser(r *http.Request) (models.UserID, error) {
	if a.config.JWTSecret == "" {
		id := r.Header.Get("X-User-ID")
		if id == "" {
			id = r.URL.Query().Get("userID")
		}
		if id == "" {
			return "", errors.New("missing X-User-ID")
		}
		return models.UserID(id), nil
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	userID, err := parseToken(a.config.JWTSecret, token)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	return userID, nil
}
