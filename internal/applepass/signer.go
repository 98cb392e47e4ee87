package applepass

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.mozilla.org/pkcs7"
	"golang.org/x/exp/slog"

	"github.com/stampably/walletpass/internal/walleterr"
)

// Signer produces a detached PKCS#7 signature over the exact manifest
// bytes passed in.
type Signer interface {
	Sign(ctx context.Context, manifest []byte) ([]byte, error)
}

// Credential holds the signing certificate, its key and the platform
// authority (intermediate) certificate. It is loaded per signing call and
// discarded with the call; nothing here ever touches durable storage.
type Credential struct {
	SignerCert    *x509.Certificate
	SignerKey     *rsa.PrivateKey
	AuthorityCert *x509.Certificate

	// Raw PEM blocks, kept for the subprocess strategy.
	CertPEM      []byte
	KeyPEM       []byte
	AuthorityPEM []byte
}

// CredentialLoader yields a fresh Credential for one signing call.
type CredentialLoader func() (*Credential, error)

// FileCredentialLoader reads PEM material from the configured paths on
// every call.
func FileCredentialLoader(certPath, keyPath, authorityPath string) CredentialLoader {
	return func() (*Credential, error) {
		certPEM, err := os.ReadFile(certPath)
		if err != nil {
			return nil, fmt.Errorf("reading signer certificate: %w", err)
		}
		keyPEM, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading signer key: %w", err)
		}
		authPEM, err := os.ReadFile(authorityPath)
		if err != nil {
			return nil, fmt.Errorf("reading authority certificate: %w", err)
		}
		return ParseCredential(certPEM, keyPEM, authPEM)
	}
}

// StaticCredentialLoader serves pre-parsed material, used by tests and the
// dev CLI's self-signed mode.
func StaticCredentialLoader(cred *Credential) CredentialLoader {
	return func() (*Credential, error) { return cred, nil }
}

// ParseCredential decodes the three PEM blocks into a usable credential.
func ParseCredential(certPEM, keyPEM, authorityPEM []byte) (*Credential, error) {
	cert, err := parseCertPEM(certPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing signer certificate: %w", err)
	}
	authority, err := parseCertPEM(authorityPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing authority certificate: %w", err)
	}
	key, err := parseKeyPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing signer key: %w", err)
	}
	return &Credential{
		SignerCert:    cert,
		SignerKey:     key,
		AuthorityCert: authority,
		CertPEM:       certPEM,
		KeyPEM:        keyPEM,
		AuthorityPEM:  authorityPEM,
	}, nil
}

// CheckExpiry fails closed when either certificate is outside its validity
// window at signing time.
func (c *Credential) CheckExpiry(now time.Time) error {
	for _, pair := range []struct {
		name string
		cert *x509.Certificate
	}{
		{"signer", c.SignerCert},
		{"authority", c.AuthorityCert},
	} {
		if now.After(pair.cert.NotAfter) {
			return &walleterr.SigningError{
				Strategy: "expiry-check",
				Expired:  true,
				Err:      fmt.Errorf("%s certificate expired %s", pair.name, pair.cert.NotAfter.Format(time.RFC3339)),
			}
		}
		if now.Before(pair.cert.NotBefore) {
			return &walleterr.SigningError{
				Strategy: "expiry-check",
				Expired:  true,
				Err:      fmt.Errorf("%s certificate not valid until %s", pair.name, pair.cert.NotBefore.Format(time.RFC3339)),
			}
		}
	}
	return nil
}

// OpenSSLSigner shells out to the external signing tool. This is the
// primary strategy: its output is the shape the verifying platform accepts
// most reliably. All scratch files live in a per-call temp directory that
// is removed on every exit path.
type OpenSSLSigner struct {
	Binary  string
	Load    CredentialLoader
	Timeout time.Duration
	Logger  *slog.Logger
	now     func() time.Time
}

func NewOpenSSLSigner(load CredentialLoader, logger *slog.Logger) *OpenSSLSigner {
	return &OpenSSLSigner{
		Binary:  "openssl",
		Load:    load,
		Timeout: 5 * time.Second,
		Logger:  logger,
		now:     time.Now,
	}
}

func (s *OpenSSLSigner) Sign(ctx context.Context, manifest []byte) ([]byte, error) {
	cred, err := s.Load()
	if err != nil {
		return nil, &walleterr.SigningError{Strategy: "openssl", Err: err}
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	if err := cred.CheckExpiry(now()); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "passsign-")
	if err != nil {
		return nil, &walleterr.SigningError{Strategy: "openssl", Err: fmt.Errorf("scratch dir: %w", err)}
	}
	defer os.RemoveAll(dir)

	paths := map[string][]byte{
		"manifest.json": manifest,
		"signer.pem":    cred.CertPEM,
		"signer.key":    cred.KeyPEM,
		"authority.pem": cred.AuthorityPEM,
	}
	for name, content := range paths {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o600); err != nil {
			return nil, &walleterr.SigningError{Strategy: "openssl", Err: fmt.Errorf("writing %s: %w", name, err)}
		}
	}
	sigPath := filepath.Join(dir, "signature.der")

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.Binary,
		"smime", "-binary", "-sign",
		"-certfile", filepath.Join(dir, "authority.pem"),
		"-signer", filepath.Join(dir, "signer.pem"),
		"-inkey", filepath.Join(dir, "signer.key"),
		"-in", filepath.Join(dir, "manifest.json"),
		"-out", sigPath,
		"-outform", "DER",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("external signing tool failed",
				slog.String("tool", s.Binary),
				slog.String("output", strings.TrimSpace(string(out))),
			)
		}
		return nil, &walleterr.SigningError{
			Strategy: "openssl",
			Err:      fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))),
		}
	}

	sig, err := os.ReadFile(sigPath)
	if err != nil {
		return nil, &walleterr.SigningError{Strategy: "openssl", Err: fmt.Errorf("reading signature: %w", err)}
	}
	return sig, nil
}

// PKCS7Signer builds the detached signature in process. It is the fallback
// for deployments without the external tool.
type PKCS7Signer struct {
	Load CredentialLoader
	now  func() time.Time
}

func NewPKCS7Signer(load CredentialLoader) *PKCS7Signer {
	return &PKCS7Signer{Load: load, now: time.Now}
}

func (s *PKCS7Signer) Sign(_ context.Context, manifest []byte) ([]byte, error) {
	cred, err := s.Load()
	if err != nil {
		return nil, &walleterr.SigningError{Strategy: "pkcs7", Err: err}
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	if err := cred.CheckExpiry(now()); err != nil {
		return nil, err
	}

	sd, err := pkcs7.NewSignedData(manifest)
	if err != nil {
		return nil, &walleterr.SigningError{Strategy: "pkcs7", Err: err}
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	sd.AddCertificate(cred.AuthorityCert)
	if err := sd.AddSigner(cred.SignerCert, cred.SignerKey, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, &walleterr.SigningError{Strategy: "pkcs7", Err: err}
	}
	sd.Detach()

	sig, err := sd.Finish()
	if err != nil {
		return nil, &walleterr.SigningError{Strategy: "pkcs7", Err: err}
	}
	return sig, nil
}

// FallbackSigner runs the primary strategy and falls back exactly once.
// Expired-certificate failures are final: the fallback would be signing
// with the same dead material.
type FallbackSigner struct {
	Primary  Signer
	Fallback Signer
	Logger   *slog.Logger
}

func NewFallbackSigner(primary, fallback Signer, logger *slog.Logger) *FallbackSigner {
	return &FallbackSigner{Primary: primary, Fallback: fallback, Logger: logger}
}

func (s *FallbackSigner) Sign(ctx context.Context, manifest []byte) ([]byte, error) {
	sig, err := s.Primary.Sign(ctx, manifest)
	if err == nil {
		return sig, nil
	}

	var serr *walleterr.SigningError
	if errors.As(err, &serr) && serr.Expired {
		return nil, err
	}

	if s.Logger != nil {
		s.Logger.Warn("primary signing strategy failed, falling back", "err", err)
	}

	sig, ferr := s.Fallback.Sign(ctx, manifest)
	if ferr != nil {
		return nil, &walleterr.SigningError{
			Strategy: "fallback",
			Err:      fmt.Errorf("primary: %v; fallback: %w", err, ferr),
		}
	}
	return sig, nil
}

func parseCertPEM(b []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(b)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no certificate PEM block found")
	}
	return x509.ParseCertificate(block.Bytes)
}

func parseKeyPEM(b []byte) (*rsa.PrivateKey, error) {
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
