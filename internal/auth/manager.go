// internal/auth/manager.go
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	MethodJWT       = "jwt"
	MethodAPIKey    = "api_key"
	MethodAnonymous = "anonymous"

	apiKeyPrefix = "vps_"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	Name   string `json:"name"`
	Method string `json:"method"`
}

// Claims represents JWT claims. Subject carries the principal name.
type Claims struct {
	KeyName string `json:"key_name,omitempty"`
	jwt.RegisteredClaims
}

// Config holds authentication configuration
type Config struct {
	Enabled        bool
	JWTSecret      string
	JWTIssuer      string
	JWTExpiry      time.Duration
	APIKeys        []string // name:bcrypt-hash
	RateLimit      int      // requests per minute
	RateBurst      int
	AllowAnonymous bool
}

type apiKeyEntry struct {
	name string
	hash []byte
}

// Authenticator verifies bearer tokens and API keys. API keys are only ever
// held as bcrypt hashes; a verified key is remembered by its SHA-256 digest
// so repeat requests skip the bcrypt comparison.
type Authenticator struct {
	config   Config
	keys     []apiKeyEntry
	verified map[string]string // sha256(key) -> name
	mu       sync.RWMutex
}

// NewAuthenticator parses the configured API key hashes.
func NewAuthenticator(config Config) (*Authenticator, error) {
	if config.JWTExpiry == 0 {
		config.JWTExpiry = 24 * time.Hour
	}
	if config.JWTIssuer == "" {
		config.JWTIssuer = "viewpoint-search"
	}
	if config.RateLimit == 0 {
		config.RateLimit = 60
	}
	if config.RateBurst == 0 {
		config.RateBurst = 10
	}

	a := &Authenticator{
		config:   config,
		verified: make(map[string]string),
	}

	for i, entry := range config.APIKeys {
		name, hash, ok := strings.Cut(entry, ":")
		if !ok || name == "" || hash == "" {
			return nil, fmt.Errorf("API key entry %d must be name:bcrypt-hash", i)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("API key %q: %w", name, err)
		}
		a.keys = append(a.keys, apiKeyEntry{name: name, hash: []byte(hash)})
	}

	return a, nil
}

// Config returns the effective configuration.
func (a *Authenticator) Config() Config {
	return a.config
}

// CanIssueTokens reports whether a JWT secret is configured.
func (a *Authenticator) CanIssueTokens() bool {
	return a.config.JWTSecret != ""
}

// IssueToken signs an HS256 token for principal.
func (a *Authenticator) IssueToken(principal Principal) (string, time.Time, error) {
	if !a.CanIssueTokens() {
		return "", time.Time{}, fmt.Errorf("token issuance is not configured")
	}

	now := time.Now()
	expiresAt := now.Add(a.config.JWTExpiry)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   principal.Name,
			Issuer:    a.config.JWTIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if principal.Method == MethodAPIKey {
		claims.KeyName = principal.Name
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.config.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// ValidateToken parses and verifies a token issued by IssueToken.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	if !a.CanIssueTokens() {
		return nil, fmt.Errorf("token validation is not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.config.JWTSecret), nil
	}, jwt.WithIssuer(a.config.JWTIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return claims, nil
}

// ValidateAPIKey returns the principal for a plaintext API key.
func (a *Authenticator) ValidateAPIKey(key string) (Principal, error) {
	if key == "" {
		return Principal{}, fmt.Errorf("empty API key")
	}

	digest := digestAPIKey(key)

	a.mu.RLock()
	name, ok := a.verified[digest]
	a.mu.RUnlock()
	if ok {
		return Principal{Name: name, Method: MethodAPIKey}, nil
	}

	for _, entry := range a.keys {
		if bcrypt.CompareHashAndPassword(entry.hash, []byte(key)) == nil {
			a.mu.Lock()
			a.verified[digest] = entry.name
			a.mu.Unlock()
			return Principal{Name: entry.name, Method: MethodAPIKey}, nil
		}
	}

	return Principal{}, fmt.Errorf("invalid API key")
}

// GenerateAPIKey returns a new random plaintext key.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}

// HashAPIKey returns the bcrypt hash to place in API_KEYS.
func HashAPIKey(key string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hashed), nil
}

func digestAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
