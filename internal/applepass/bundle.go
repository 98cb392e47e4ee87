package applepass

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"golang.org/x/exp/slog"

	"github.com/stampably/walletpass/passes/models"
)

const (
	passFileName      = "pass.json"
	manifestFileName  = "manifest.json"
	signatureFileName = "signature"
)

// Archive entries carry a fixed timestamp so two builds of the same card
// produce identical bytes.
var archiveTimestamp = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Bundle is the in-memory .pkpass aggregate for one request. It is never
// persisted; WriteZip streams it to the response and it is gone.
type Bundle struct {
	PassJSON  []byte
	Assets    map[string][]byte
	Manifest  Manifest
	Signature []byte
}

// Builder serializes descriptors into signed bundles. It depends only on
// the Signer interface, not on which strategy executes.
type Builder struct {
	cfg    PassConfig
	signer Signer
	logger *slog.Logger
}

func NewBuilder(cfg PassConfig, signer Signer, logger *slog.Logger) *Builder {
	return &Builder{cfg: cfg, signer: signer, logger: logger}
}

// Build validates, digests and signs. Validation failures abort before any
// signing occurs.
func (b *Builder) Build(ctx context.Context, desc *models.PassDescriptor, assets map[string][]byte) (*Bundle, error) {
	pass := BuildPass(desc, b.cfg)
	if err := pass.Validate(); err != nil {
		return nil, err
	}

	passJSON, err := json.MarshalIndent(pass, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing pass document: %w", err)
	}

	files := make(map[string][]byte, len(assets)+1)
	files[passFileName] = passJSON
	for name, content := range assets {
		files[name] = content
	}
	manifest := BuildManifest(files)

	manifestJSON, err := manifest.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serializing manifest: %w", err)
	}

	sig, err := b.signer.Sign(ctx, manifestJSON)
	if err != nil {
		return nil, err
	}

	if b.logger != nil {
		b.logger.Info("pass bundle built",
			slog.String("serial", desc.SerialNumber),
			slog.Int("files", len(files)),
		)
	}

	return &Bundle{
		PassJSON:  passJSON,
		Assets:    assets,
		Manifest:  manifest,
		Signature: sig,
	}, nil
}

// WriteZip writes the archive with deterministic entry ordering:
// pass.json, manifest.json, signature, then assets sorted by name.
func (b *Bundle) WriteZip(w io.Writer) error {
	manifestJSON, err := b.Manifest.Bytes()
	if err != nil {
		return fmt.Errorf("serializing manifest: %w", err)
	}

	names := make([]string, 0, len(b.Assets))
	for name := range b.Assets {
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)
	entries := []struct {
		name    string
		content []byte
	}{
		{passFileName, b.PassJSON},
		{manifestFileName, manifestJSON},
		{signatureFileName, b.Signature},
	}
	for _, name := range names {
		entries = append(entries, struct {
			name    string
			content []byte
		}{name, b.Assets[name]})
	}

	for _, e := range entries {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.name,
			Method:   zip.Deflate,
			Modified: archiveTimestamp,
		})
		if err != nil {
			return fmt.Errorf("creating archive entry %s: %w", e.name, err)
		}
		if _, err := fw.Write(e.content); err != nil {
			return fmt.Errorf("writing archive entry %s: %w", e.name, err)
		}
	}
	return zw.Close()
}
