package domain

import (
	"time"

	"github.com/google/uuid"
)

// RoomState is the lifecycle of a two-party wager.
type RoomState string

const (
	RoomWaiting   RoomState = "waiting"
	RoomPlaying   RoomState = "playing"
	RoomCompleted RoomState = "completed"
)

// Choice is a hand in the two-party choice game.
type Choice string

const (
	ChoiceRock     Choice = "rock"
	ChoicePaper    Choice = "paper"
	ChoiceScissors Choice = "scissors"
)

// Valid reports whether c is a playable hand.
func (c Choice) Valid() bool {
	return c == ChoiceRock || c == ChoicePaper || c == ChoiceScissors
}

// RoundResult is the outcome of the most recently settled round.
type RoundResult string

const (
	RoundHostWon  RoundResult = "host"
	RoundGuestWon RoundResult = "guest"
	RoundDraw     RoundResult = "draw"
)

// Room is a two-party wager played in rounds.
//
// HostReserved and GuestReserved record whether that party's stake is
// currently debited and not yet settled. Settling a round consumes both
// reservations; a party re-reserves when submitting the next choice.
type Room struct {
	ID              uuid.UUID   `json:"id"`
	HostID          uuid.UUID   `json:"host_id"`
	GuestID         *uuid.UUID  `json:"guest_id,omitempty"`
	Stake           int64       `json:"stake"`
	Currency        Currency    `json:"currency"`
	State           RoomState   `json:"state"`
	HostChoice      *Choice     `json:"host_choice,omitempty"`
	GuestChoice     *Choice     `json:"guest_choice,omitempty"`
	HostReserved    bool        `json:"host_reserved"`
	GuestReserved   bool        `json:"guest_reserved"`
	Round           int         `json:"round"`
	LastRoundWinner *uuid.UUID  `json:"last_round_winner,omitempty"`
	LastRoundResult RoundResult `json:"last_round_result,omitempty"`
	Version         int64       `json:"version"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}

// IsHost reports whether id is the room's host.
func (r *Room) IsHost(id uuid.UUID) bool { return r.HostID == id }

// IsGuest reports whether id is the room's guest.
func (r *Room) IsGuest(id uuid.UUID) bool { return r.GuestID != nil && *r.GuestID == id }

// Closed reports whether the room accepts no further actions.
func (r *Room) Closed() bool { return r.State == RoomCompleted }

// Public returns a copy with both pending choices removed, for feeds seen by
// anyone. The reservation flags still show who has submitted.
func (r Room) Public() Room {
	r.HostChoice, r.GuestChoice = nil, nil
	return r
}

// Masked returns a copy without the opponent's pending choice, for display to viewer.
func (r Room) Masked(viewer uuid.UUID) Room {
	if !r.IsHost(viewer) {
		r.HostChoice = nil
	}
	if !r.IsGuest(viewer) {
		r.GuestChoice = nil
	}
	return r
}
