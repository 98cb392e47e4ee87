package passes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgconn"
	"github.com/lib/pq"

	"github.com/stampably/walletpass/passes/models"
)

var (
	ErrNotFound = fmt.Errorf("not found")
	ErrConflict = fmt.Errorf("conflict")
)

// Repository resolves card records. The relational store itself is owned
// by the surrounding platform; this service only reads cards, plus a
// create used by tests and local seeding. Backends: in-memory (tests,
// dev) and Postgres.
type Repository struct {
	mu    sync.RWMutex
	cards map[string]*models.CardRecord

	db *sql.DB
}

func NewRepository() *Repository {
	return &Repository{cards: make(map[string]*models.CardRecord)}
}

// NewPGRepository constructs a db-backed repository.
func NewPGRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

// GetCard returns the card joined with its owning business.
func (r *Repository) GetCard(ctx context.Context, id string) (*models.CardRecord, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		card, ok := r.cards[id]
		if !ok {
			return nil, ErrNotFound
		}
		cp := *card
		return &cp, nil
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.card_type, c.customer_name, c.customer_token,
		       c.current_stamps, c.stamps_required, c.reward_description,
		       c.sessions_used, c.total_sessions, c.cost, c.currency,
		       c.expiry_date,
		       b.id, b.name, b.email, b.phone, b.address, b.brand_color, b.logo_png
		FROM loyalty_cards c
		JOIN businesses b ON b.id = c.business_id
		WHERE c.id = $1`, id)

	var card models.CardRecord
	var (
		customerName, reward, currency    sql.NullString
		email, phone, address, brandColor sql.NullString
		currentStamps, stampsRequired     sql.NullInt64
		sessionsUsed, totalSessions, cost sql.NullInt64
		expiry                            sql.NullTime
		logo                              []byte
	)
	err := row.Scan(
		&card.ID, &card.Type, &customerName, &card.CustomerToken,
		&currentStamps, &stampsRequired, &reward,
		&sessionsUsed, &totalSessions, &cost, &currency,
		&expiry,
		&card.Business.ID, &card.Business.Name, &email, &phone, &address, &brandColor, &logo,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying card: %w", err)
	}

	card.CustomerName = customerName.String
	card.CurrentStamps = int(currentStamps.Int64)
	card.StampsRequired = int(stampsRequired.Int64)
	card.RewardDescription = reward.String
	card.SessionsUsed = int(sessionsUsed.Int64)
	card.TotalSessions = int(totalSessions.Int64)
	card.Cost = cost.Int64
	card.Currency = currency.String
	if expiry.Valid {
		t := expiry.Time
		card.ExpiryDate = &t
	}
	card.Business.Email = email.String
	card.Business.Phone = phone.String
	card.Business.Address = address.String
	card.Business.BrandColor = brandColor.String
	card.Business.LogoPNG = logo
	return &card, nil
}

// CreateCard stores a card (and its business row on the pg backend).
// Used by tests, the dev seed endpoint and the dev CLI.
func (r *Repository) CreateCard(ctx context.Context, card *models.CardRecord) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, exists := r.cards[card.ID]; exists {
			return ErrConflict
		}
		cp := *card
		r.cards[card.ID] = &cp
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO businesses (id, name, email, phone, address, brand_color, logo_png)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone,
			address = EXCLUDED.address, brand_color = EXCLUDED.brand_color,
			logo_png = EXCLUDED.logo_png`,
		card.Business.ID, card.Business.Name, card.Business.Email, card.Business.Phone,
		card.Business.Address, card.Business.BrandColor, card.Business.LogoPNG)
	if err != nil {
		return fmt.Errorf("upserting business: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO loyalty_cards
			(id, business_id, card_type, customer_name, customer_token,
			 current_stamps, stamps_required, reward_description,
			 sessions_used, total_sessions, cost, currency, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		card.ID, card.Business.ID, card.Type, card.CustomerName, card.CustomerToken,
		card.CurrentStamps, card.StampsRequired, card.RewardDescription,
		card.SessionsUsed, card.TotalSessions, card.Cost, card.Currency, card.ExpiryDate)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("inserting card: %w", err)
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
