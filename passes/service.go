package passes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/stampably/walletpass/internal/applepass"
	"github.com/stampably/walletpass/internal/assets"
	"github.com/stampably/walletpass/internal/compliance"
	"github.com/stampably/walletpass/internal/googlewallet"
	"github.com/stampably/walletpass/internal/passdata"
	"github.com/stampably/walletpass/internal/walleterr"
	"github.com/stampably/walletpass/passes/models"
)

// Service orchestrates both wallet pipelines. Each request assembles a
// fresh descriptor and forks into the Apple bundle path or the Google
// upsert path; nothing is shared between requests.
type Service struct {
	repo      *Repository
	cfg       *Config
	assembler *passdata.Assembler
	assets    *assets.Generator
	wallet    *googlewallet.Client
	savelink  *googlewallet.SaveLinkSigner
	validator *compliance.Validator
	signer    applepass.Signer
	logger    *slog.Logger
}

func NewService(repo *Repository, cfg *Config, logger *slog.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	loc := time.UTC
	if cfg.ExpiryTZ != "" {
		if l, err := time.LoadLocation(cfg.ExpiryTZ); err == nil {
			loc = l
		} else if logger != nil {
			logger.Info("invalid ExpiryTZ; using UTC", slog.String("tz", cfg.ExpiryTZ), slog.Any("err", err))
		}
	}

	loader := applepass.FileCredentialLoader(
		cfg.Apple.CertificatePath,
		cfg.Apple.PrivateKeyPath,
		cfg.Apple.AuthorityCertPath,
	)
	primary := applepass.NewOpenSSLSigner(loader, logger)
	if cfg.Apple.OpenSSLBinary != "" {
		primary.Binary = cfg.Apple.OpenSSLBinary
	}
	if cfg.Apple.SigningTimeout > 0 {
		primary.Timeout = cfg.Apple.SigningTimeout
	}
	signer := applepass.NewFallbackSigner(primary, applepass.NewPKCS7Signer(loader), logger)

	hc := &http.Client{Timeout: cfg.Google.RequestTimeout}

	s := &Service{
		repo:      repo,
		cfg:       cfg,
		assembler: passdata.NewAssembler(loc),
		assets:    assets.NewGenerator(),
		wallet:    googlewallet.NewClient(cfg.Google.APIBaseURL, cfg.Google.APIToken, hc, logger),
		savelink:  googlewallet.NewSaveLinkSigner(cfg.Google.ServiceAccountEmail, googlewallet.FileKeyLoader(cfg.Google.PrivateKeyPath)),
		signer:    signer,
		logger:    logger,
	}

	var canary applepass.Signer
	if cfg.Apple.Configured() {
		canary = signer
	}
	s.validator = compliance.NewValidator(compliance.Settings{
		Production:                cfg.Production,
		AppleCertificatePath:      cfg.Apple.CertificatePath,
		ApplePrivateKeyPath:       cfg.Apple.PrivateKeyPath,
		AppleAuthorityCertPath:    cfg.Apple.AuthorityCertPath,
		PassTypeIdentifier:        cfg.Apple.PassTypeIdentifier,
		TeamIdentifier:            cfg.Apple.TeamIdentifier,
		OrganizationName:          cfg.Apple.OrganizationName,
		GoogleIssuerID:            cfg.Google.IssuerID,
		GoogleServiceAccountEmail: cfg.Google.ServiceAccountEmail,
		GoogleKeyPath:             cfg.Google.PrivateKeyPath,
		GoogleAPIBase:             cfg.Google.APIBaseURL,
	}, canary)

	return s
}

// ApplePass builds and signs the .pkpass bundle for a card. Returns the
// bundle and the safe download filename.
func (s *Service) ApplePass(ctx context.Context, cardID string) (*applepass.Bundle, string, error) {
	if !s.cfg.Apple.Configured() {
		return nil, "", &walleterr.ConfigurationError{Missing: s.missingAppleKeys()}
	}

	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, "", fmt.Errorf("finding card: %w", err)
	}

	desc, err := s.assembler.Assemble(card)
	if err != nil {
		return nil, "", err
	}

	imgs := s.assets.Render(desc.LogoPNG, desc.BrandColor)

	passCfg := applepass.PassConfig{
		PassTypeIdentifier: s.cfg.Apple.PassTypeIdentifier,
		TeamIdentifier:     s.cfg.Apple.TeamIdentifier,
		OrganizationName:   s.cfg.Apple.OrganizationName,
	}
	if s.cfg.PublicBaseURL != "" {
		passCfg.WebServiceURL = s.cfg.PublicBaseURL
		// Stable per card so a rebuilt pass keeps its token across refreshes.
		passCfg.AuthenticationToken = uuid.NewSHA1(uuid.NameSpaceOID, []byte(card.ID+":"+card.CustomerToken)).String()
	}

	builder := applepass.NewBuilder(passCfg, s.signer, s.logger)
	bundle, err := builder.Build(ctx, desc, imgs)
	if err != nil {
		return nil, "", err
	}

	return bundle, applepass.SafeFilename(desc.Title) + ".pkpass", nil
}

// GoogleSaveLink upserts the card's loyalty class and object, then signs
// the add-to-wallet deep link. Repeated calls for the same card update the
// same remote resources.
func (s *Service) GoogleSaveLink(ctx context.Context, cardID string, cardType models.CardType) (*googlewallet.SaveLink, error) {
	if !s.cfg.Google.Configured() {
		return nil, &walleterr.ConfigurationError{Missing: s.missingGoogleKeys()}
	}

	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("finding card: %w", err)
	}
	if cardType != "" && card.Type != cardType {
		return nil, walleterr.Invalid("type")
	}

	desc, err := s.assembler.Assemble(card)
	if err != nil {
		return nil, err
	}

	class, err := googlewallet.BuildClass(desc, s.cfg.Google.IssuerID)
	if err != nil {
		return nil, err
	}
	obj, err := googlewallet.BuildObject(desc, class)
	if err != nil {
		return nil, err
	}

	if err := s.wallet.UpsertClass(ctx, class); err != nil {
		return nil, fmt.Errorf("upserting class: %w", err)
	}
	if err := s.wallet.UpsertObject(ctx, obj); err != nil {
		return nil, fmt.Errorf("upserting object: %w", err)
	}

	return s.savelink.Sign(googlewallet.SavePayload{
		LoyaltyObjects: []googlewallet.ObjectRef{{ID: obj.ID, ClassID: class.ID}},
	})
}

// WalletHealth runs the compliance checks for both pipelines.
func (s *Service) WalletHealth(ctx context.Context) []compliance.Issue {
	return s.validator.Check(ctx)
}

// SeedCard stores a card record; dev/test tooling only.
func (s *Service) SeedCard(ctx context.Context, card *models.CardRecord) error {
	if card.ID == "" {
		card.ID = uuid.New().String()
	}
	if card.CustomerToken == "" {
		card.CustomerToken = uuid.New().String()
	}
	return s.repo.CreateCard(ctx, card)
}

func (s *Service) missingAppleKeys() []string {
	var missing []string
	a := s.cfg.Apple
	for _, f := range []struct{ key, value string }{
		{"apple.certificate_path", a.CertificatePath},
		{"apple.private_key_path", a.PrivateKeyPath},
		{"apple.authority_cert_path", a.AuthorityCertPath},
		{"apple.pass_type_identifier", a.PassTypeIdentifier},
		{"apple.team_identifier", a.TeamIdentifier},
		{"apple.organization_name", a.OrganizationName},
	} {
		if f.value == "" {
			missing = append(missing, f.key)
		}
	}
	return missing
}

func (s *Service) missingGoogleKeys() []string {
	var missing []string
	g := s.cfg.Google
	for _, f := range []struct{ key, value string }{
		{"google.issuer_id", g.IssuerID},
		{"google.service_account_email", g.ServiceAccountEmail},
		{"google.private_key_path", g.PrivateKeyPath},
	} {
		if f.value == "" {
			missing = append(missing, f.key)
		}
	}
	return missing
}
