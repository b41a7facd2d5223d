package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/domain"
)

// BalanceProjection is a cached snapshot of an account's balances. Seq is
// the ledger sequence it reflects; zero means it came from an account
// snapshot rather than an entry.
type BalanceProjection struct {
	AccountID uuid.UUID            `json:"account_id"`
	Points    int64                `json:"points"`
	Cash      int64                `json:"cash"`
	Status    domain.AccountStatus `json:"status,omitempty"`
	Disabled  bool                 `json:"disabled"`
	Seq       int64                `json:"seq"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func (p *BalanceProjection) set(c domain.Currency, v int64) {
	switch c {
	case domain.CurrencyPoints:
		p.Points = v
	case domain.CurrencyCash:
		p.Cash = v
	}
}

// RoomProjection is the public view of a room. Choices are never cached.
type RoomProjection struct {
	ID              uuid.UUID          `json:"id"`
	HostID          uuid.UUID          `json:"host_id"`
	GuestID         *uuid.UUID         `json:"guest_id,omitempty"`
	Stake           int64              `json:"stake"`
	Currency        domain.Currency    `json:"currency"`
	State           domain.RoomState   `json:"state"`
	Round           int                `json:"round"`
	LastRoundWinner *uuid.UUID         `json:"last_round_winner,omitempty"`
	LastRoundResult domain.RoundResult `json:"last_round_result,omitempty"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

const (
	balanceTTL = 10 * time.Minute
	roomTTL    = time.Hour
)

func balanceKey(id uuid.UUID) string { return fmt.Sprintf("projection:balance:%s", id) }
func roomKey(id uuid.UUID) string    { return fmt.Sprintf("projection:room:%s", id) }

// UpdateBalance caches an account's balance projection.
func UpdateBalance(ctx context.Context, store Store, p BalanceProjection) error {
	return SetJSON(ctx, store, balanceKey(p.AccountID), p, balanceTTL)
}

// GetBalance retrieves a cached balance projection.
func GetBalance(ctx context.Context, store Store, accountID uuid.UUID) (*BalanceProjection, error) {
	var p BalanceProjection
	if err := GetJSON(ctx, store, balanceKey(accountID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// InvalidateBalance removes an account's cached balance.
func InvalidateBalance(ctx context.Context, store Store, accountID uuid.UUID) error {
	return store.Delete(ctx, balanceKey(accountID))
}

// UpdateRoom caches a room snapshot with the choices stripped.
func UpdateRoom(ctx context.Context, store Store, r *domain.Room) error {
	p := RoomProjection{
		ID:              r.ID,
		HostID:          r.HostID,
		GuestID:         r.GuestID,
		Stake:           r.Stake,
		Currency:        r.Currency,
		State:           r.State,
		Round:           r.Round,
		LastRoundWinner: r.LastRoundWinner,
		LastRoundResult: r.LastRoundResult,
		UpdatedAt:       r.UpdatedAt,
	}
	return SetJSON(ctx, store, roomKey(r.ID), p, roomTTL)
}

// GetRoom retrieves a cached room projection.
func GetRoom(ctx context.Context, store Store, roomID uuid.UUID) (*RoomProjection, error) {
	var p RoomProjection
	if err := GetJSON(ctx, store, roomKey(roomID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// loadBalance returns the cached projection or a fresh one for id.
func loadBalance(ctx context.Context, store Store, id uuid.UUID) (BalanceProjection, error) {
	p, err := GetBalance(ctx, store, id)
	if errors.Is(err, ErrNotFound) {
		return BalanceProjection{AccountID: id}, nil
	}
	if err != nil {
		return BalanceProjection{}, err
	}
	return *p, nil
}
