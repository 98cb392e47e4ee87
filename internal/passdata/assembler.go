// Package passdata maps resolved card records into the platform-neutral
// pass descriptor both wallet pipelines consume.
package passdata

import (
	"fmt"
	"strings"
	"time"

	"github.com/stampably/walletpass/internal/walleterr"
	"github.com/stampably/walletpass/passes/models"
)

const dateLayout = "Jan 2, 2006"

// Assembler builds PassDescriptors. Expiry comparisons run in loc
// (fallback UTC), matching how the business configured its card programs.
type Assembler struct {
	loc *time.Location
	now func() time.Time
}

func NewAssembler(loc *time.Location) *Assembler {
	if loc == nil {
		loc = time.UTC
	}
	return &Assembler{loc: loc, now: time.Now}
}

// Assemble validates the card record and produces a fresh descriptor.
// A card with zero or negative capacity never yields a pass.
func (a *Assembler) Assemble(card *models.CardRecord) (*models.PassDescriptor, error) {
	if card == nil {
		return nil, walleterr.Invalid("card")
	}

	var missing []string
	if card.ID == "" {
		missing = append(missing, "id")
	}
	if card.Business.Name == "" {
		missing = append(missing, "business.name")
	}
	switch card.Type {
	case models.CardTypeStamp:
		if card.StampsRequired <= 0 {
			missing = append(missing, "stamps_required")
		}
	case models.CardTypeMembership:
		if card.TotalSessions <= 0 {
			missing = append(missing, "total_sessions")
		}
	default:
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return nil, walleterr.Invalid(missing...)
	}

	now := a.now().In(a.loc)
	used, capacity := card.Used(), card.Capacity()
	state := DeriveState(used, capacity, card.ExpiryDate, now)

	progress := float64(used) / float64(capacity)
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	remaining := capacity - used
	if remaining < 0 {
		remaining = 0
	}

	desc := &models.PassDescriptor{
		ID:            card.ID,
		SerialNumber:  card.ID,
		CardType:      card.Type,
		Title:         card.Business.Name,
		CustomerName:  card.CustomerName,
		CustomerToken: card.CustomerToken,
		BarcodeValue:  card.ID,
		BarcodeFormat: models.BarcodeQR,
		Progress:      progress,
		State:         state,
		Expiry:        card.ExpiryDate,
		BrandColor:    card.Business.BrandColor,
		LogoPNG:       card.Business.LogoPNG,
	}

	countLabel := "Stamps"
	if card.Type == models.CardTypeMembership {
		countLabel = "Sessions"
		desc.Description = fmt.Sprintf("%s membership", card.Business.Name)
	} else {
		desc.Description = fmt.Sprintf("%s stamp card", card.Business.Name)
	}

	desc.Header = append(desc.Header, models.Field{
		Key: "state", Label: "Status", Value: string(state),
	})
	desc.Primary = append(desc.Primary, models.Field{
		Key: "progress", Label: countLabel, Value: fmt.Sprintf("%d/%d", used, capacity),
	})
	desc.Secondary = append(desc.Secondary, models.Field{
		Key: "remaining", Label: "Remaining", Value: fmt.Sprintf("%d", remaining),
	})
	if card.Type == models.CardTypeStamp && card.RewardDescription != "" {
		desc.Secondary = append(desc.Secondary, models.Field{
			Key: "reward", Label: "Reward", Value: card.RewardDescription,
		})
	}
	if card.Type == models.CardTypeMembership && card.Cost > 0 {
		desc.Auxiliary = append(desc.Auxiliary, models.Field{
			Key: "cost", Label: "Price", Value: FormatAmount(card.Cost, card.Currency),
		})
	}
	if card.ExpiryDate != nil {
		desc.Auxiliary = append(desc.Auxiliary, models.Field{
			Key: "expires", Label: "Expires", Value: card.ExpiryDate.In(a.loc).Format(dateLayout),
		})
	}
	if card.CustomerName != "" {
		desc.Back = append(desc.Back, models.Field{
			Key: "member", Label: "Member", Value: card.CustomerName,
		})
	}
	if card.Business.Email != "" || card.Business.Phone != "" {
		contact := strings.TrimSpace(strings.Join(nonEmpty(card.Business.Email, card.Business.Phone), " · "))
		desc.Back = append(desc.Back, models.Field{
			Key: "contact", Label: "Contact", Value: contact,
		})
	}
	if card.Business.Address != "" {
		desc.Back = append(desc.Back, models.Field{
			Key: "location", Label: "Find us", Value: card.Business.Address,
		})
	}

	return desc, nil
}

// DeriveState applies the precedence rule: an expiry date in the past wins
// over completion, which wins over active.
func DeriveState(used, capacity int, expiry *time.Time, now time.Time) models.CardState {
	if expiry != nil && expiry.Before(now) {
		return models.CardStateExpired
	}
	if capacity > 0 && used >= capacity {
		return models.CardStateCompleted
	}
	return models.CardStateActive
}

// FormatAmount renders a minor-unit amount for display, e.g. 1250 USD
// becomes "$12.50".
func FormatAmount(minor int64, currency string) string {
	sym, ok := map[string]string{"USD": "$", "EUR": "€", "GBP": "£", "AUD": "$"}[strings.ToUpper(currency)]
	if !ok {
		sym = strings.ToUpper(currency) + " "
	}
	neg := ""
	if minor < 0 {
		neg = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%s%d.%02d", neg, sym, minor/100, minor%100)
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
