package passdata_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stampably/walletpass/internal/passdata"
	"github.com/stampably/walletpass/internal/walleterr"
	"github.com/stampably/walletpass/passes/models"
)

func stampCard(current, required int) *models.CardRecord {
	return &models.CardRecord{
		ID:             "card-1",
		Type:           models.CardTypeStamp,
		CustomerToken:  "cust-1",
		CustomerName:   "Ada Lovelace",
		Business:       models.Business{ID: "biz-1", Name: "Cafe Luna", BrandColor: "#1D3557"},
		CurrentStamps:  current,
		StampsRequired: required,
	}
}

func TestAssemble_StampCard(t *testing.T) {
	a := passdata.NewAssembler(time.UTC)

	t.Run("completed at full count", func(t *testing.T) {
		card := stampCard(10, 10)
		desc, err := a.Assemble(card)
		require.NoError(t, err)
		require.Equal(t, models.CardStateCompleted, desc.State)
		require.Equal(t, "10/10", desc.Primary[0].Value)
		require.Equal(t, "0", desc.Secondary[0].Value)
		require.Equal(t, 1.0, desc.Progress)
	})

	t.Run("active below full count", func(t *testing.T) {
		desc, err := a.Assemble(stampCard(7, 10))
		require.NoError(t, err)
		require.Equal(t, models.CardStateActive, desc.State)
		require.Equal(t, "7/10", desc.Primary[0].Value)
		require.Equal(t, "3", desc.Secondary[0].Value)
		require.InDelta(t, 0.7, desc.Progress, 1e-9)
	})

	t.Run("progress clamps above one", func(t *testing.T) {
		desc, err := a.Assemble(stampCard(14, 10))
		require.NoError(t, err)
		require.Equal(t, 1.0, desc.Progress)
		require.Equal(t, "0", desc.Secondary[0].Value)
	})

	t.Run("barcode carries the card id", func(t *testing.T) {
		desc, err := a.Assemble(stampCard(1, 10))
		require.NoError(t, err)
		require.Equal(t, "card-1", desc.BarcodeValue)
		require.Equal(t, models.BarcodeQR, desc.BarcodeFormat)
	})
}

func TestAssemble_MembershipExpiryWins(t *testing.T) {
	a := passdata.NewAssembler(time.UTC)
	yesterday := time.Now().UTC().Add(-24 * time.Hour)

	card := &models.CardRecord{
		ID:            "mem-1",
		Type:          models.CardTypeMembership,
		CustomerToken: "cust-2",
		Business:      models.Business{ID: "biz-2", Name: "Yoga Nine"},
		SessionsUsed:  3,
		TotalSessions: 12,
		Cost:          12000,
		Currency:      "USD",
		ExpiryDate:    &yesterday,
	}

	desc, err := a.Assemble(card)
	require.NoError(t, err)
	require.Equal(t, models.CardStateExpired, desc.State)
	require.Equal(t, "3/12", desc.Primary[0].Value)
}

func TestAssemble_ExpiryBeatsCompletion(t *testing.T) {
	a := passdata.NewAssembler(time.UTC)
	past := time.Now().UTC().Add(-time.Hour)

	card := stampCard(10, 10)
	card.ExpiryDate = &past
	desc, err := a.Assemble(card)
	require.NoError(t, err)
	require.Equal(t, models.CardStateExpired, desc.State)
}

func TestAssemble_RejectsDegenerateCards(t *testing.T) {
	a := passdata.NewAssembler(time.UTC)

	cases := map[string]*models.CardRecord{
		"zero capacity":     stampCard(0, 0),
		"negative capacity": stampCard(0, -3),
		"missing id": func() *models.CardRecord {
			c := stampCard(1, 10)
			c.ID = ""
			return c
		}(),
		"missing business name": func() *models.CardRecord {
			c := stampCard(1, 10)
			c.Business.Name = ""
			return c
		}(),
	}

	for name, card := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := a.Assemble(card)
			var verr *walleterr.ValidationError
			require.ErrorAs(t, err, &verr)
			require.NotEmpty(t, verr.Fields)
		})
	}
}

func TestDeriveState_Precedence(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	require.Equal(t, models.CardStateExpired, passdata.DeriveState(10, 10, &past, now))
	require.Equal(t, models.CardStateCompleted, passdata.DeriveState(10, 10, &future, now))
	require.Equal(t, models.CardStateCompleted, passdata.DeriveState(10, 10, nil, now))
	require.Equal(t, models.CardStateActive, passdata.DeriveState(9, 10, nil, now))
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "$12.50", passdata.FormatAmount(1250, "USD"))
	require.Equal(t, "€8.00", passdata.FormatAmount(800, "eur"))
	require.Equal(t, "SEK 99.99", passdata.FormatAmount(9999, "SEK"))
}
