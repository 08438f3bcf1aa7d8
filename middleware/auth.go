package middleware

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

type contextKey string

const ClaimsContextKey = contextKey("claims")

// DefaultTokenTTL is how long a session token handed out by the upload flow
// stays valid.
const DefaultTokenTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims carry the session id as the subject.
type SessionClaims struct {
	jwt.RegisteredClaims
	BackgroundRemoved bool `json:"bg_removed,omitempty"`
}

type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: secret, ttl: ttl}
}

// TokensFromEnv signs with SESSION_SECRET. Without it a random key is used,
// so tokens do not survive a restart.
func TokensFromEnv() *Tokens {
	secret := []byte(os.Getenv("SESSION_SECRET"))
	if len(secret) == 0 {
		logrus.Warn("SESSION_SECRET is not set, using a random key; session tokens will not survive a restart")
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logrus.WithError(err).Fatal("Failed to generate session secret")
		}
	}
	return NewTokens(secret, DefaultTokenTTL)
}

func (t *Tokens) Issue(sessionID string, backgroundRemoved bool) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		BackgroundRemoved: backgroundRemoved,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *Tokens) Parse(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RequireSession accepts a Bearer token, or a "token" query parameter for
// plain links such as downloads. When the route has a {sessionId} parameter
// the token must belong to that session.
func (t *Tokens) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearer(r)
		if err != nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}

		claims, err := t.Parse(tokenString)
		if err != nil {
			logrus.WithError(err).Debug("Rejected session token")
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Invalid token"})
			return
		}

		if id := chi.URLParam(r, "sessionId"); id != "" && id != claims.Subject {
			logrus.WithFields(logrus.Fields{
				"session_id": id,
				"subject":    claims.Subject,
			}).Warn("Session token used for another session")
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, map[string]string{"error": "Token does not grant access to this session"})
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearer reads the Authorization header. Downloads opened by the browser
// cannot set headers, so GET and HEAD may pass the token as ?token= instead.
func bearer(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			if q := r.URL.Query().Get("token"); q != "" {
				return q, nil
			}
		}
		return "", errors.New("Authorization header is required")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("Authorization header format must be Bearer {token}")
	}
	return parts[1], nil
}

// RedactToken blanks the token query parameter in r.RequestURI so access logs
// never carry session tokens. r.URL is left alone for RequireSession.
func RedactToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Has("token") {
			q.Set("token", "REDACTED")
			u := *r.URL
			u.RawQuery = q.Encode()
			r = r.WithContext(r.Context())
			r.RequestURI = u.RequestURI()
		}
		next.ServeHTTP(w, r)
	})
}

// Claims returns the claims RequireSession stored on the request.
func Claims(r *http.Request) (*SessionClaims, bool) {
	claims, ok := r.Context().Value(ClaimsContextKey).(*SessionClaims)
	return claims, ok
}
