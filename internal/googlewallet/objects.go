package googlewallet

import (
	"fmt"
	"time"

	"github.com/stampably/walletpass/passes/models"
)

// Loyalty class/object records mirror the remote wallet API's schema.
// The remote service owns these resources; this system only upserts them.

type LocalizedString struct {
	DefaultValue TranslatedString `json:"defaultValue"`
}

type TranslatedString struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type Image struct {
	SourceURI ImageURI `json:"sourceUri"`
}

type ImageURI struct {
	URI string `json:"uri"`
}

type Barcode struct {
	Type          string `json:"type"`
	Value         string `json:"value"`
	AlternateText string `json:"alternateText,omitempty"`
}

type LoyaltyPoints struct {
	Label   string               `json:"label,omitempty"`
	Balance LoyaltyPointsBalance `json:"balance"`
}

type LoyaltyPointsBalance struct {
	String string `json:"string"`
}

type TextModule struct {
	ID     string `json:"id,omitempty"`
	Header string `json:"header,omitempty"`
	Body   string `json:"body,omitempty"`
}

type TimeInterval struct {
	End *DateTime `json:"end,omitempty"`
}

type DateTime struct {
	Date string `json:"date"`
}

type LoyaltyClass struct {
	ID                  string           `json:"id"`
	IssuerName          string           `json:"issuerName"`
	ProgramName         string           `json:"programName"`
	ProgramLogo         *Image           `json:"programLogo,omitempty"`
	ReviewStatus        string           `json:"reviewStatus"`
	HexBackgroundColor  string           `json:"hexBackgroundColor,omitempty"`
	LocalizedIssuerName *LocalizedString `json:"localizedIssuerName,omitempty"`
}

type LoyaltyObject struct {
	ID                string         `json:"id"`
	ClassID           string         `json:"classId"`
	State             string         `json:"state"`
	AccountID         string         `json:"accountId,omitempty"`
	AccountName       string         `json:"accountName,omitempty"`
	Barcode           *Barcode       `json:"barcode,omitempty"`
	LoyaltyPoints     *LoyaltyPoints `json:"loyaltyPoints,omitempty"`
	TextModulesData   []TextModule   `json:"textModulesData,omitempty"`
	ValidTimeInterval *TimeInterval  `json:"validTimeInterval,omitempty"`
}

var barcodeTypes = map[string]string{
	models.BarcodeQR:      "QR_CODE",
	models.BarcodePDF417:  "PDF_417",
	models.BarcodeAztec:   "AZTEC",
	models.BarcodeCode128: "CODE_128",
}

// BuildClass maps a descriptor's program-level data onto a loyalty class.
// One class per business+card-type, shared by every customer of that
// program.
func BuildClass(desc *models.PassDescriptor, issuerID string) (*LoyaltyClass, error) {
	id, err := ClassID(issuerID, desc.Title, desc.CardType)
	if err != nil {
		return nil, err
	}

	programName := desc.Title + " Stamp Card"
	if desc.CardType == models.CardTypeMembership {
		programName = desc.Title + " Membership"
	}

	return &LoyaltyClass{
		ID:                 id,
		IssuerName:         desc.Title,
		ProgramName:        programName,
		ReviewStatus:       "UNDER_REVIEW",
		HexBackgroundColor: desc.BrandColor,
	}, nil
}

// BuildObject maps a descriptor's per-customer data onto a loyalty object.
func BuildObject(desc *models.PassDescriptor, class *LoyaltyClass) (*LoyaltyObject, error) {
	id, err := ObjectID(class.ID, desc.CustomerToken)
	if err != nil {
		return nil, err
	}

	state := "ACTIVE"
	if desc.State == models.CardStateExpired {
		state = "EXPIRED"
	}

	obj := &LoyaltyObject{
		ID:          id,
		ClassID:     class.ID,
		State:       state,
		AccountID:   desc.CustomerToken,
		AccountName: desc.CustomerName,
		Barcode: &Barcode{
			Type:          barcodeTypes[desc.BarcodeFormat],
			Value:         desc.BarcodeValue,
			AlternateText: desc.BarcodeValue,
		},
	}

	for _, f := range desc.Primary {
		if f.Key == "progress" {
			obj.LoyaltyPoints = &LoyaltyPoints{
				Label:   f.Label,
				Balance: LoyaltyPointsBalance{String: f.Value},
			}
		}
	}
	for _, f := range append(desc.Secondary, desc.Back...) {
		obj.TextModulesData = append(obj.TextModulesData, TextModule{
			ID:     f.Key,
			Header: f.Label,
			Body:   f.Value,
		})
	}
	if desc.Expiry != nil {
		obj.ValidTimeInterval = &TimeInterval{
			End: &DateTime{Date: desc.Expiry.UTC().Format(time.RFC3339)},
		}
	}
	if obj.Barcode.Type == "" {
		return nil, fmt.Errorf("unsupported barcode format %q", desc.BarcodeFormat)
	}
	return obj, nil
}
