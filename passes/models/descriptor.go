package models

import "time"

// CardState is derived per request. Precedence: EXPIRED over COMPLETED
// over ACTIVE.
type CardState string

const (
	CardStateActive    CardState = "ACTIVE"
	CardStateCompleted CardState = "COMPLETED"
	CardStateExpired   CardState = "EXPIRED"
)

// Barcode formats a descriptor may request. Platform builders map these
// onto their own enumerations.
const (
	BarcodeQR      = "QR"
	BarcodePDF417  = "PDF417"
	BarcodeAztec   = "AZTEC"
	BarcodeCode128 = "CODE128"
)

// Field is one labeled display slot on a pass.
type Field struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Value string `json:"value"`
}

// PassDescriptor is the platform-neutral view of a card, rebuilt on every
// request and never persisted.
type PassDescriptor struct {
	ID            string
	SerialNumber  string
	CardType      CardType
	Title         string
	Description   string
	CustomerName  string
	CustomerToken string

	BarcodeValue  string
	BarcodeFormat string

	// Progress is used/required clamped to [0,1].
	Progress float64
	State    CardState
	Expiry   *time.Time

	BrandColor string
	LogoPNG    []byte

	Header    []Field
	Primary   []Field
	Secondary []Field
	Auxiliary []Field
	Back      []Field
}
