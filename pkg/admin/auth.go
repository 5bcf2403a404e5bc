package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/fluxorio/symphony/pkg/core"
)

const (
	// APIKeyHeader carries the plain API key checked against the bcrypt hash.
	APIKeyHeader = "X-API-Key"

	// TokenQueryParam carries a bearer token for clients that cannot set
	// headers, such as browser websockets.
	TokenQueryParam = "access_token"

	authScheme = "Bearer"
)

var (
	errMissingCredentials = errors.New("credentials missing")
	errInvalidAPIKey      = errors.New("api key does not match")
)

// Auth guards admin routes with a bearer JWT (HS256) and/or an API key.
// A request passes when any configured method accepts it.
type Auth struct {
	secret     []byte
	apiKeyHash []byte
	logger     core.Logger
}

// NewAuth returns nil when neither a secret nor a hash is configured, which
// leaves routes open.
func NewAuth(jwtSecret, apiKeyHash string, logger core.Logger) *Auth {
	if jwtSecret == "" && apiKeyHash == "" {
		return nil
	}
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	return &Auth{
		secret:     []byte(jwtSecret),
		apiKeyHash: []byte(apiKeyHash),
		logger:     logger,
	}
}

// Middleware rejects unauthenticated requests with 401.
// A nil *Auth passes every request through.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := a.authenticate(r)
		if err != nil {
			a.logger.Debugf("admin auth failed for %s %s: %v", r.Method, r.URL.Path, err)
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`%s realm="symphony", error="invalid_token"`, authScheme))
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing credentials")
			return
		}
		a.logger.Debugf("admin request %s %s by %s", r.Method, r.URL.Path, subject)
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) authenticate(r *http.Request) (string, error) {
	if key := r.Header.Get(APIKeyHeader); key != "" && len(a.apiKeyHash) > 0 {
		if err := bcrypt.CompareHashAndPassword(a.apiKeyHash, []byte(key)); err != nil {
			return "", errInvalidAPIKey
		}
		return "api-key", nil
	}

	if len(a.secret) == 0 {
		return "", errMissingCredentials
	}

	token, err := bearerToken(r)
	if err != nil {
		return "", err
	}
	return a.verify(token)
}

func bearerToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != authScheme {
			return "", fmt.Errorf("invalid authorization header format")
		}
		return parts[1], nil
	}
	if token := r.URL.Query().Get(TokenQueryParam); token != "" {
		return token, nil
	}
	return "", errMissingCredentials
}

// verify parses an HS256 token and returns its subject.
func (a *Auth) verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("token is not valid")
	}
	return claims.Subject, nil
}

// IssueToken signs an HS256 token for subject that expires after ttl.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "symphony",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// HashAPIKey returns the bcrypt hash to put in admin.api_key_hash.
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("api key is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(hash), nil
}
