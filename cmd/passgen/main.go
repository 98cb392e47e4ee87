// passgen builds a .pkpass bundle for a synthetic card and writes it to
// disk, for local inspection of pass layout and signing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stampably/walletpass/internal/applepass"
	"github.com/stampably/walletpass/internal/assets"
	"github.com/stampably/walletpass/internal/passdata"
	"github.com/stampably/walletpass/passes"
	"github.com/stampably/walletpass/passes/models"
)

var (
	flagConfig   = flag.String("config", "", "service config file; omit to self-sign with a throwaway certificate")
	flagOut      = flag.String("out", "preview.pkpass", "output file")
	flagBusiness = flag.String("business", "Cafe Luna", "business display name")
	flagColor    = flag.String("color", "#1D3557", "brand color (#RRGGBB)")
	flagStamps   = flag.Int("stamps", 7, "current stamp count")
	flagRequired = flag.Int("required", 10, "stamps required for the reward")
	flagReward   = flag.String("reward", "Free coffee", "reward description")
	flagCustomer = flag.String("customer", "Preview Customer", "customer display name")
)

func main() {
	flag.Parse()

	card := &models.CardRecord{
		ID:                "preview-card",
		Type:              models.CardTypeStamp,
		CustomerName:      *flagCustomer,
		CustomerToken:     "preview-customer",
		Business:          models.Business{ID: "preview-biz", Name: *flagBusiness, BrandColor: *flagColor},
		CurrentStamps:     *flagStamps,
		StampsRequired:    *flagRequired,
		RewardDescription: *flagReward,
	}

	desc, err := passdata.NewAssembler(time.UTC).Assemble(card)
	must(err)

	passCfg, signer := signingSetup()

	bundle, err := applepass.NewBuilder(passCfg, signer, nil).
		Build(context.Background(), desc, assets.NewGenerator().Render(nil, *flagColor))
	must(err)

	f, err := os.Create(*flagOut)
	must(err)
	defer f.Close()
	must(bundle.WriteZip(f))

	fmt.Printf("wrote %s (%s, state %s)\n", *flagOut, desc.Title, desc.State)
}

func signingSetup() (applepass.PassConfig, applepass.Signer) {
	if *flagConfig != "" {
		cfg, err := passes.LoadConfig(*flagConfig)
		must(err)
		loader := applepass.FileCredentialLoader(
			cfg.Apple.CertificatePath,
			cfg.Apple.PrivateKeyPath,
			cfg.Apple.AuthorityCertPath,
		)
		primary := applepass.NewOpenSSLSigner(loader, nil)
		if cfg.Apple.OpenSSLBinary != "" {
			primary.Binary = cfg.Apple.OpenSSLBinary
		}
		return applepass.PassConfig{
			PassTypeIdentifier: cfg.Apple.PassTypeIdentifier,
			TeamIdentifier:     cfg.Apple.TeamIdentifier,
			OrganizationName:   cfg.Apple.OrganizationName,
		}, applepass.NewFallbackSigner(primary, applepass.NewPKCS7Signer(loader), nil)
	}

	// No config: self-sign with a throwaway certificate. The output will
	// not be accepted by a real wallet but is fine for layout checks.
	cred, err := applepass.NewEphemeralCredential(time.Now().Add(-time.Hour), 24*time.Hour)
	must(err)
	return applepass.PassConfig{
		PassTypeIdentifier: "pass.dev.preview",
		TeamIdentifier:     "PREVIEW000",
		OrganizationName:   *flagBusiness,
	}, applepass.NewPKCS7Signer(applepass.StaticCredentialLoader(cred))
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
