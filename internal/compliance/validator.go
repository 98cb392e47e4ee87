// Package compliance validates signing credentials and identifiers before
// either wallet pipeline touches them. It reports issues instead of
// failing, so callers can degrade to a non-wallet fallback.
package compliance

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stampably/walletpass/internal/applepass"
)

// Issue is one human-readable configuration problem.
type Issue struct {
	Component string `json:"component"`
	Problem   string `json:"problem"`
	Hint      string `json:"hint,omitempty"`
}

// Settings is the configuration surface the validator inspects. It is a
// plain value so the validator stays decoupled from the app's config
// loading.
type Settings struct {
	Production bool

	AppleCertificatePath   string
	ApplePrivateKeyPath    string
	AppleAuthorityCertPath string
	PassTypeIdentifier     string
	TeamIdentifier         string
	OrganizationName       string

	GoogleIssuerID            string
	GoogleServiceAccountEmail string
	GoogleKeyPath             string
	GoogleAPIBase             string
}

// Validator runs the checks. Canary, when set, is used to sign a
// disposable manifest as a live health probe without touching card data.
type Validator struct {
	settings Settings
	canary   applepass.Signer
	now      func() time.Time
}

func NewValidator(settings Settings, canary applepass.Signer) *Validator {
	return &Validator{settings: settings, canary: canary, now: time.Now}
}

// Check returns every detected issue; an empty slice means both pipelines
// are cleared to sign.
func (v *Validator) Check(ctx context.Context) []Issue {
	issues := v.CheckApple()
	issues = append(issues, v.CheckGoogle()...)

	if len(issues) == 0 && v.canary != nil {
		canaryManifest := []byte(`{"canary.json":"0000000000000000000000000000000000000000"}`)
		if _, err := v.canary.Sign(ctx, canaryManifest); err != nil {
			issues = append(issues, Issue{
				Component: "signing",
				Problem:   fmt.Sprintf("canary signing failed: %v", err),
				Hint:      "verify the signing certificate, key and external tool availability",
			})
		}
	}
	return issues
}

// CheckApple validates the bundle-signing pipeline's configuration.
func (v *Validator) CheckApple() []Issue {
	var issues []Issue
	s := v.settings

	required := []struct{ name, value string }{
		{"apple.certificate_path", s.AppleCertificatePath},
		{"apple.private_key_path", s.ApplePrivateKeyPath},
		{"apple.authority_cert_path", s.AppleAuthorityCertPath},
		{"apple.pass_type_identifier", s.PassTypeIdentifier},
		{"apple.team_identifier", s.TeamIdentifier},
		{"apple.organization_name", s.OrganizationName},
	}
	missing := false
	for _, f := range required {
		if f.value == "" {
			missing = true
			issues = append(issues, Issue{
				Component: "apple",
				Problem:   f.name + " is not set",
				Hint:      "supply it via the config file or environment",
			})
		}
	}

	if s.PassTypeIdentifier != "" && !strings.HasPrefix(s.PassTypeIdentifier, "pass.") {
		issues = append(issues, Issue{
			Component: "apple",
			Problem:   "pass_type_identifier must start with \"pass.\"",
		})
	}
	if s.TeamIdentifier != "" && len(s.TeamIdentifier) != 10 {
		issues = append(issues, Issue{
			Component: "apple",
			Problem:   "team_identifier must be 10 characters",
		})
	}

	if !missing {
		issues = append(issues, v.checkCredential()...)
	}
	return issues
}

func (v *Validator) checkCredential() []Issue {
	s := v.settings
	for _, path := range []string{s.AppleCertificatePath, s.ApplePrivateKeyPath, s.AppleAuthorityCertPath} {
		if _, err := os.Stat(path); err != nil {
			return []Issue{{
				Component: "apple",
				Problem:   fmt.Sprintf("credential file %s is unreadable: %v", path, err),
			}}
		}
	}

	load := applepass.FileCredentialLoader(s.AppleCertificatePath, s.ApplePrivateKeyPath, s.AppleAuthorityCertPath)
	cred, err := load()
	if err != nil {
		return []Issue{{
			Component: "apple",
			Problem:   fmt.Sprintf("credential does not parse: %v", err),
		}}
	}
	if err := cred.CheckExpiry(v.now()); err != nil {
		return []Issue{{
			Component: "apple",
			Problem:   err.Error(),
			Hint:      "renew the signing certificate before issuing passes",
		}}
	}
	return nil
}

// CheckGoogle validates the loyalty-object pipeline's configuration.
func (v *Validator) CheckGoogle() []Issue {
	var issues []Issue
	s := v.settings

	if s.GoogleIssuerID == "" {
		issues = append(issues, Issue{Component: "google", Problem: "issuer_id is not set"})
	} else if !isDigits(s.GoogleIssuerID) {
		issues = append(issues, Issue{Component: "google", Problem: "issuer_id must be numeric"})
	}
	if s.GoogleServiceAccountEmail == "" {
		issues = append(issues, Issue{Component: "google", Problem: "service_account_email is not set"})
	} else if !strings.Contains(s.GoogleServiceAccountEmail, "@") {
		issues = append(issues, Issue{Component: "google", Problem: "service_account_email is not an email address"})
	}
	if s.GoogleKeyPath == "" {
		issues = append(issues, Issue{Component: "google", Problem: "key_path is not set"})
	}

	if s.Production && s.GoogleAPIBase != "" && !strings.HasPrefix(s.GoogleAPIBase, "https://") {
		issues = append(issues, Issue{
			Component: "google",
			Problem:   "api base must use https in production",
			Hint:      "plain-http bases are only allowed outside production",
		})
	}
	return issues
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
