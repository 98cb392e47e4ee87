// Package applepass builds, signs and archives .pkpass bundles.
package applepass

import (
	"fmt"
	"strings"
	"time"

	"github.com/stampably/walletpass/internal/walleterr"
	"github.com/stampably/walletpass/passes/models"
)

// Barcode formats enumerated by the consuming wallet.
const (
	BarcodeFormatQR      = "PKBarcodeFormatQR"
	BarcodeFormatPDF417  = "PKBarcodeFormatPDF417"
	BarcodeFormatAztec   = "PKBarcodeFormatAztec"
	BarcodeFormatCode128 = "PKBarcodeFormatCode128"
)

var barcodeFormats = map[string]string{
	models.BarcodeQR:      BarcodeFormatQR,
	models.BarcodePDF417:  BarcodeFormatPDF417,
	models.BarcodeAztec:   BarcodeFormatAztec,
	models.BarcodeCode128: BarcodeFormatCode128,
}

type Field struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Value string `json:"value"`
}

type Barcode struct {
	Message         string `json:"message"`
	Format          string `json:"format"`
	MessageEncoding string `json:"messageEncoding"`
	AltText         string `json:"altText,omitempty"`
}

type StyleFields struct {
	HeaderFields    []Field `json:"headerFields,omitempty"`
	PrimaryFields   []Field `json:"primaryFields,omitempty"`
	SecondaryFields []Field `json:"secondaryFields,omitempty"`
	AuxiliaryFields []Field `json:"auxiliaryFields,omitempty"`
	BackFields      []Field `json:"backFields,omitempty"`
}

// Pass is the serialized pass.json document. Exactly one style block
// (StoreCard or Generic) must be set.
type Pass struct {
	FormatVersion      int    `json:"formatVersion"`
	PassTypeIdentifier string `json:"passTypeIdentifier"`
	SerialNumber       string `json:"serialNumber"`
	TeamIdentifier     string `json:"teamIdentifier"`
	OrganizationName   string `json:"organizationName"`
	Description        string `json:"description"`

	ForegroundColor string `json:"foregroundColor,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	LabelColor      string `json:"labelColor,omitempty"`

	ExpirationDate string `json:"expirationDate,omitempty"`
	Voided         bool   `json:"voided,omitempty"`

	WebServiceURL       string `json:"webServiceURL,omitempty"`
	AuthenticationToken string `json:"authenticationToken,omitempty"`

	Barcode  *Barcode  `json:"barcode,omitempty"`
	Barcodes []Barcode `json:"barcodes,omitempty"`

	StoreCard *StyleFields `json:"storeCard,omitempty"`
	Generic   *StyleFields `json:"generic,omitempty"`
}

// PassConfig carries the issuing organization's identifiers.
type PassConfig struct {
	PassTypeIdentifier string
	TeamIdentifier     string
	OrganizationName   string
	// WebServiceURL, when set, is emitted together with a per-pass
	// authentication token so the wallet can poll for refreshes.
	WebServiceURL       string
	AuthenticationToken string
}

// BuildPass maps a platform-neutral descriptor onto the pass document.
func BuildPass(desc *models.PassDescriptor, cfg PassConfig) *Pass {
	format, ok := barcodeFormats[desc.BarcodeFormat]
	if !ok {
		format = desc.BarcodeFormat
	}
	bc := Barcode{
		Message:         desc.BarcodeValue,
		Format:          format,
		MessageEncoding: "iso-8859-1",
		AltText:         desc.BarcodeValue,
	}

	p := &Pass{
		FormatVersion:      1,
		PassTypeIdentifier: cfg.PassTypeIdentifier,
		SerialNumber:       desc.SerialNumber,
		TeamIdentifier:     cfg.TeamIdentifier,
		OrganizationName:   cfg.OrganizationName,
		Description:        desc.Description,
		BackgroundColor:    desc.BrandColor,
		ForegroundColor:    "rgb(255,255,255)",
		Barcode:            &bc,
		Barcodes:           []Barcode{bc},
		StoreCard: &StyleFields{
			HeaderFields:    toFields(desc.Header),
			PrimaryFields:   toFields(desc.Primary),
			SecondaryFields: toFields(desc.Secondary),
			AuxiliaryFields: toFields(desc.Auxiliary),
			BackFields:      toFields(desc.Back),
		},
	}
	if desc.Expiry != nil {
		p.ExpirationDate = desc.Expiry.UTC().Format(time.RFC3339)
	}
	if cfg.WebServiceURL != "" && cfg.AuthenticationToken != "" {
		p.WebServiceURL = cfg.WebServiceURL
		p.AuthenticationToken = cfg.AuthenticationToken
	}
	return p
}

// Validate applies the structural rules the consuming wallet enforces.
// It runs before any signing or archiving.
func (p *Pass) Validate() error {
	var bad []string

	if p.FormatVersion != 1 {
		bad = append(bad, "formatVersion")
	}
	if p.PassTypeIdentifier == "" {
		bad = append(bad, "passTypeIdentifier")
	}
	if p.SerialNumber == "" {
		bad = append(bad, "serialNumber")
	}
	if p.TeamIdentifier == "" {
		bad = append(bad, "teamIdentifier")
	}
	if p.OrganizationName == "" {
		bad = append(bad, "organizationName")
	}
	if p.Description == "" {
		bad = append(bad, "description")
	}

	styles := 0
	if p.StoreCard != nil {
		styles++
	}
	if p.Generic != nil {
		styles++
	}
	if styles != 1 {
		bad = append(bad, "style")
	}

	if p.Barcode != nil {
		if _, ok := knownBarcodeFormat(p.Barcode.Format); !ok {
			bad = append(bad, "barcode.format")
		}
	}
	for i, b := range p.Barcodes {
		if _, ok := knownBarcodeFormat(b.Format); !ok {
			bad = append(bad, fmt.Sprintf("barcodes[%d].format", i))
		}
	}

	if len(bad) > 0 {
		return walleterr.Invalid(bad...)
	}
	return nil
}

func knownBarcodeFormat(f string) (string, bool) {
	switch f {
	case BarcodeFormatQR, BarcodeFormatPDF417, BarcodeFormatAztec, BarcodeFormatCode128:
		return f, true
	}
	return "", false
}

// SafeFilename derives a download filename from a display name, keeping
// alphanumerics only.
func SafeFilename(display string) string {
	var b strings.Builder
	for _, r := range display {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "pass"
	}
	return b.String()
}

func toFields(in []models.Field) []Field {
	if len(in) == 0 {
		return nil
	}
	out := make([]Field, len(in))
	for i, f := range in {
		out[i] = Field{Key: f.Key, Label: f.Label, Value: f.Value}
	}
	return out
}
