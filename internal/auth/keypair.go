package auth

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultExpiry is the token lifetime used when TokenConfig.ExpireAfter is zero.
// Snowflake rejects key-pair tokens valid for more than an hour.
const DefaultExpiry = time.Hour

// refreshMargin is how long before expiry a cached token is replaced.
const refreshMargin = time.Minute

// TokenConfig holds info needed to generate a Snowflake JWT.
type TokenConfig struct {
	Account     string // e.g., CXEEZLW-JQB53549
	User        string // e.g., VJAIN27
	PrivateKey  []byte // PEM-encoded private key (PKCS8)
	PublicKey   []byte // PEM-encoded public key (used for fingerprint); derived from PrivateKey when empty
	ExpireAfter time.Duration
}

// GenerateJWT returns a Snowflake-compatible JWT token.
func GenerateJWT(cfg TokenConfig, now time.Time) (string, error) {
	privKey, err := parsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return "", err
	}

	fp, err := fingerprint(privKey, cfg.PublicKey)
	if err != nil {
		return "", fmt.Errorf("fingerprint generation failed: %w", err)
	}

	expiry := cfg.ExpireAfter
	if expiry <= 0 {
		expiry = DefaultExpiry
	}

	account := normalizeAccount(cfg.Account)
	user := strings.ToUpper(cfg.User)
	subject := fmt.Sprintf("%s.%s", account, user)
	issuer := fmt.Sprintf("%s.%s.%s", account, user, fp)

	now = now.UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{"snowflake"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(privKey)
	if err != nil {
		return "", fmt.Errorf("JWT signing failed: %w", err)
	}
	return signed, nil
}

// TokenSource hands out key-pair JWTs, signing a new one only when the
// cached token is close to expiry. It is safe for concurrent use.
type TokenSource struct {
	cfg TokenConfig
	now func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenSource validates the key material in cfg up front.
func NewTokenSource(cfg TokenConfig) (*TokenSource, error) {
	if _, err := parsePrivateKey(cfg.PrivateKey); err != nil {
		return nil, err
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = DefaultExpiry
	}
	return &TokenSource{cfg: cfg, now: time.Now}, nil
}

// Token returns a valid JWT.
func (s *TokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(refreshMargin).Before(s.expires) {
		return s.token, nil
	}
	tok, err := GenerateJWT(s.cfg, now)
	if err != nil {
		return "", err
	}
	s.token, s.expires = tok, now.Add(s.cfg.ExpireAfter)
	return tok, nil
}

// parsePrivateKey parses a PEM-encoded PKCS#8 RSA key.
func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM format for private key")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return rsaKey, nil
}

// fingerprint computes the SHA256 fingerprint of the public key, read from
// pubPEM or derived from the private key.
func fingerprint(key *rsa.PrivateKey, pubPEM []byte) (string, error) {
	var der []byte
	if len(pubPEM) > 0 {
		block, _ := pem.Decode(pubPEM)
		if block == nil {
			return "", fmt.Errorf("invalid PEM for public key")
		}
		der = block.Bytes
	} else {
		var err error
		if der, err = x509.MarshalPKIXPublicKey(&key.PublicKey); err != nil {
			return "", err
		}
	}
	hash := sha256.Sum256(der)
	return "SHA256:" + base64.StdEncoding.EncodeToString(hash[:]), nil
}

// normalizeAccount ensures uppercase and replaces periods with hyphens.
func normalizeAccount(account string) string {
	return strings.ToUpper(strings.ReplaceAll(account, ".", "-"))
}
