package applepass_test

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stampably/walletpass/internal/applepass"
	"github.com/stampably/walletpass/internal/assets"
	"github.com/stampably/walletpass/internal/walleterr"
	"github.com/stampably/walletpass/passes/models"
)

// stubSigner records whether it was invoked and returns fixed bytes.
type stubSigner struct {
	called int
	sig    []byte
}

func (s *stubSigner) Sign(_ context.Context, _ []byte) ([]byte, error) {
	s.called++
	return s.sig, nil
}

func testConfig() applepass.PassConfig {
	return applepass.PassConfig{
		PassTypeIdentifier: "pass.com.stampably.loyalty",
		TeamIdentifier:     "ABCDE12345",
		OrganizationName:   "Stampably",
	}
}

func testDescriptor() *models.PassDescriptor {
	return &models.PassDescriptor{
		ID:            "card-1",
		SerialNumber:  "card-1",
		CardType:      models.CardTypeStamp,
		Title:         "Cafe Luna",
		Description:   "Cafe Luna stamp card",
		BarcodeValue:  "card-1",
		BarcodeFormat: models.BarcodeQR,
		Primary:       []models.Field{{Key: "progress", Label: "Stamps", Value: "7/10"}},
	}
}

func TestBuild_ManifestMatchesArchive(t *testing.T) {
	signer := &stubSigner{sig: []byte("detached-signature")}
	b := applepass.NewBuilder(testConfig(), signer, nil)

	imgs := assets.NewGenerator().Render(nil, "#1D3557")
	bundle, err := b.Build(context.Background(), testDescriptor(), imgs)
	require.NoError(t, err)
	require.Equal(t, 1, signer.called)

	var buf bytes.Buffer
	require.NoError(t, bundle.WriteZip(&buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	contents := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		contents[f.Name] = data
	}

	var manifest map[string]string
	require.NoError(t, json.Unmarshal(contents["manifest.json"], &manifest))

	// Manifest key set is exactly the archive minus manifest and signature.
	expected := map[string]struct{}{}
	for name := range contents {
		if name != "manifest.json" && name != "signature" {
			expected[name] = struct{}{}
		}
	}
	require.Len(t, manifest, len(expected))
	for name, digest := range manifest {
		data, ok := contents[name]
		require.True(t, ok, "manifest lists %s but archive lacks it", name)
		sum := sha1.Sum(data)
		require.Equal(t, hex.EncodeToString(sum[:]), digest, "digest mismatch for %s", name)
	}

	require.Equal(t, []byte("detached-signature"), contents["signature"])
}

func TestBuild_Deterministic(t *testing.T) {
	signer := &stubSigner{sig: []byte("sig")}
	b := applepass.NewBuilder(testConfig(), signer, nil)
	imgs := assets.NewGenerator().Render(nil, "#1D3557")

	var first, second bytes.Buffer
	bundle1, err := b.Build(context.Background(), testDescriptor(), imgs)
	require.NoError(t, err)
	require.NoError(t, bundle1.WriteZip(&first))

	bundle2, err := b.Build(context.Background(), testDescriptor(), imgs)
	require.NoError(t, err)
	require.NoError(t, bundle2.WriteZip(&second))

	require.Equal(t, first.Bytes(), second.Bytes())
}

func TestBuild_ValidationAbortsBeforeSigning(t *testing.T) {
	signer := &stubSigner{sig: []byte("sig")}

	cases := map[string]func(*models.PassDescriptor, *applepass.PassConfig){
		"missing organization": func(_ *models.PassDescriptor, cfg *applepass.PassConfig) {
			cfg.OrganizationName = ""
		},
		"missing team": func(_ *models.PassDescriptor, cfg *applepass.PassConfig) {
			cfg.TeamIdentifier = ""
		},
		"missing serial": func(d *models.PassDescriptor, _ *applepass.PassConfig) {
			d.SerialNumber = ""
		},
		"unknown barcode format": func(d *models.PassDescriptor, _ *applepass.PassConfig) {
			d.BarcodeFormat = "UPC"
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			desc := testDescriptor()
			cfg := testConfig()
			mutate(desc, &cfg)

			before := signer.called
			b := applepass.NewBuilder(cfg, signer, nil)
			_, err := b.Build(context.Background(), desc, nil)

			var verr *walleterr.ValidationError
			require.ErrorAs(t, err, &verr)
			require.NotEmpty(t, verr.Fields)
			require.Equal(t, before, signer.called, "signer must not run on invalid input")
		})
	}
}

func TestPassValidate_ExactlyOneStyle(t *testing.T) {
	pass := applepass.BuildPass(testDescriptor(), testConfig())
	require.NoError(t, pass.Validate())

	pass.Generic = &applepass.StyleFields{}
	var verr *walleterr.ValidationError
	require.ErrorAs(t, pass.Validate(), &verr)
	require.Contains(t, verr.Fields, "style")

	pass.Generic = nil
	pass.StoreCard = nil
	require.ErrorAs(t, pass.Validate(), &verr)
	require.Contains(t, verr.Fields, "style")
}

func TestSafeFilename(t *testing.T) {
	require.Equal(t, "CafeLuna", applepass.SafeFilename("Cafe Luna"))
	require.Equal(t, "Yoga9", applepass.SafeFilename("Yoga #9!"))
	require.Equal(t, "pass", applepass.SafeFilename("???"))
}
