package googlewallet

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stampably/walletpass/internal/walleterr"
)

const (
	// SaveLinkBase prefixes every add-to-wallet deep link; the signed
	// token rides as a path segment.
	SaveLinkBase = "https://pay.google.com/gp/v/save/"

	// MaxTokenPayloadBytes is the platform ceiling for the serialized
	// token payload, checked before any signing call.
	MaxTokenPayloadBytes = 100 * 1024

	tokenTTL = time.Hour
)

// KeyLoader yields the RS256 signing key for one call; like the bundle
// signing credential it is loaded fresh and discarded with the call.
type KeyLoader func() (*rsa.PrivateKey, error)

// FileKeyLoader reads a PEM private key from disk on every call.
func FileKeyLoader(path string) KeyLoader {
	return func() (*rsa.PrivateKey, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading save-link key: %w", err)
		}
		return ParseRSAKey(b)
	}
}

// StaticKeyLoader serves a pre-parsed key, used by tests.
func StaticKeyLoader(key *rsa.PrivateKey) KeyLoader {
	return func() (*rsa.PrivateKey, error) { return key, nil }
}

// ObjectRef is the minimal object reference embedded in a save token.
type ObjectRef struct {
	ID      string `json:"id"`
	ClassID string `json:"classId,omitempty"`
}

// SavePayload is the token payload: the object (and optionally class)
// records the wallet app should save.
type SavePayload struct {
	LoyaltyObjects []ObjectRef     `json:"loyaltyObjects,omitempty"`
	LoyaltyClasses []*LoyaltyClass `json:"loyaltyClasses,omitempty"`
}

// SaveLink is a signed deep link plus its raw token for debugging.
type SaveLink struct {
	URL   string `json:"save_url"`
	Token string `json:"token,omitempty"`
}

// SaveLinkSigner builds the short-lived RS256 token authorizing a wallet
// app to fetch and display one pass.
type SaveLinkSigner struct {
	issuer string
	load   KeyLoader
	now    func() time.Time
}

func NewSaveLinkSigner(issuer string, load KeyLoader) *SaveLinkSigner {
	return &SaveLinkSigner{issuer: issuer, load: load, now: time.Now}
}

// Sign serializes the payload, enforces the size ceiling, then signs.
// Oversized payloads never reach the key.
func (s *SaveLinkSigner) Sign(payload SavePayload) (*SaveLink, error) {
	if s.issuer == "" {
		return nil, &walleterr.ConfigurationError{Missing: []string{"google.service_account_email"}}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding token payload: %w", err)
	}
	if len(raw) > MaxTokenPayloadBytes {
		return nil, &walleterr.SizeLimitError{Size: len(raw), Limit: MaxTokenPayloadBytes}
	}

	key, err := s.load()
	if err != nil {
		return nil, err
	}

	now := s.now()
	claims := jwt.MapClaims{
		"iss":     s.issuer,
		"aud":     "google",
		"typ":     "savetowallet",
		"iat":     now.Unix(),
		"exp":     now.Add(tokenTTL).Unix(),
		"payload": payload,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return nil, &walleterr.SigningError{Strategy: "savelink", Err: err}
	}

	return &SaveLink{URL: SaveLinkBase + token, Token: token}, nil
}

// ParseRSAKey decodes a PKCS#1 or PKCS#8 PEM private key.
func ParseRSAKey(b []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("no key PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	any, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := any.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %T", any)
	}
	return key, nil
}
