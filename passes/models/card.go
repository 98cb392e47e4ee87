package models

import "time"

type CardType string

const (
	CardTypeStamp      CardType = "stamp"
	CardTypeMembership CardType = "membership"
)

// Business is the owning business joined onto every card record.
type Business struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	BrandColor string `json:"brand_color,omitempty"`
	// LogoPNG is the uploaded business logo, if any. Raw PNG bytes.
	LogoPNG []byte `json:"-"`
}

// CardRecord is the resolved card row this service receives as input.
// It is owned by the external data store and treated as read-only here.
// Exactly one of the stamp/membership field groups is meaningful,
// discriminated by Type.
type CardRecord struct {
	ID            string   `json:"id"`
	Type          CardType `json:"type"`
	CustomerName  string   `json:"customer_name,omitempty"`
	CustomerToken string   `json:"customer_token"`
	Business      Business `json:"business"`

	// Stamp card variant
	CurrentStamps     int    `json:"current_stamps,omitempty"`
	StampsRequired    int    `json:"stamps_required,omitempty"`
	RewardDescription string `json:"reward_description,omitempty"`

	// Membership variant
	SessionsUsed  int    `json:"sessions_used,omitempty"`
	TotalSessions int    `json:"total_sessions,omitempty"`
	Cost          int64  `json:"cost,omitempty"`
	Currency      string `json:"currency,omitempty"`

	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
}

// Used returns the consumed count for either variant.
func (c *CardRecord) Used() int {
	if c.Type == CardTypeMembership {
		return c.SessionsUsed
	}
	return c.CurrentStamps
}

// Capacity returns the required/total count for either variant.
func (c *CardRecord) Capacity() int {
	if c.Type == CardTypeMembership {
		return c.TotalSessions
	}
	return c.StampsRequired
}
