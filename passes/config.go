package passes

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppleConfig is the bundle-signing pipeline's configuration surface.
// Credential material is referenced by path and loaded per signing call,
// never held in memory between requests.
type AppleConfig struct {
	CertificatePath   string `yaml:"certificate_path"`
	PrivateKeyPath    string `yaml:"private_key_path"`
	AuthorityCertPath string `yaml:"authority_cert_path"`

	PassTypeIdentifier string `yaml:"pass_type_identifier"`
	TeamIdentifier     string `yaml:"team_identifier"`
	OrganizationName   string `yaml:"organization_name"`

	// OpenSSLBinary overrides the external signing tool, mostly for tests.
	OpenSSLBinary  string        `yaml:"openssl_binary"`
	SigningTimeout time.Duration `yaml:"signing_timeout"`
}

// Configured reports whether the pipeline can sign at all. When false the
// pass endpoint serves setup guidance instead of an error.
func (c AppleConfig) Configured() bool {
	return c.CertificatePath != "" && c.PrivateKeyPath != "" && c.AuthorityCertPath != "" &&
		c.PassTypeIdentifier != "" && c.TeamIdentifier != "" && c.OrganizationName != ""
}

// GoogleConfig is the loyalty-object pipeline's configuration surface.
type GoogleConfig struct {
	IssuerID            string `yaml:"issuer_id"`
	ServiceAccountEmail string `yaml:"service_account_email"`
	PrivateKeyPath      string `yaml:"private_key_path"`

	// APIBaseURL defaults to the production wallet objects endpoint.
	APIBaseURL string `yaml:"api_base_url"`
	APIToken   string `yaml:"api_token"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func (c GoogleConfig) Configured() bool {
	return c.IssuerID != "" && c.ServiceAccountEmail != "" && c.PrivateKeyPath != ""
}

// Config is the configuration for the pass service application.
type Config struct {
	HTTPAddr   string `yaml:"http_addr"`
	Production bool   `yaml:"production"`

	// PublicBaseURL, when set, is emitted as the pass web service URL so
	// wallets can poll for refreshes.
	PublicBaseURL string `yaml:"public_base_url"`

	// ExpiryTZ is an IANA timezone name for card expiry computations.
	ExpiryTZ string `yaml:"expiry_tz"`

	Apple  AppleConfig  `yaml:"apple"`
	Google GoogleConfig `yaml:"google"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr: "localhost:9090",
		Apple: AppleConfig{
			OpenSSLBinary:  "openssl",
			SigningTimeout: 5 * time.Second,
		},
		Google: GoogleConfig{
			RequestTimeout: 10 * time.Second,
		},
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
