package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/ledger"
	"github.com/stakehouse/platform/internal/policy"
	"github.com/stakehouse/platform/internal/repository"
	"github.com/stakehouse/platform/internal/settlement"
)

// RoomService drives two-party rooms through their rounds.
type RoomService struct {
	runner *repository.TxRunner
	engine *ledger.Engine
	policy Policy
	clock  Clock
	logger *slog.Logger
}

// NewRoomService creates a RoomService.
func NewRoomService(runner *repository.TxRunner, engine *ledger.Engine, policy Policy, clock Clock, logger *slog.Logger) *RoomService {
	return &RoomService{runner: runner, engine: engine, policy: policy, clock: clock, logger: logger}
}

func roundScope(n int) string { return fmt.Sprintf("round:%d", n) }

func roomRef(id uuid.UUID, scope string) domain.Ref {
	return domain.Ref{Kind: domain.RelatedRoom, ID: id, Scope: scope}
}

// CreateRoom opens a room and reserves the host's stake for round one.
func (s *RoomService) CreateRoom(ctx context.Context, hostID uuid.UUID, stake int64, currency domain.Currency) (*domain.Room, error) {
	if err := policy.EvaluateCurrencyRoute(s.policy.Routing, policy.KindRoomStake, currency).Err(); err != nil {
		return nil, err
	}
	if err := policy.EvaluateStakeLimits(s.policy.Limits, stake, policy.KindRoomStake).Err(); err != nil {
		return nil, err
	}
	roomID := uuid.New()

	var room *domain.Room
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		host, err := mustAccount(ctx, tx, hostID)
		if err != nil {
			return err
		}
		if err := policy.EvaluateStanding(host).Err(hostID.String()); err != nil {
			return err
		}

		now := s.clock.now()
		room = &domain.Room{
			ID:           roomID,
			HostID:       hostID,
			Stake:        stake,
			Currency:     currency,
			State:        domain.RoomWaiting,
			HostReserved: true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Rooms().Create(ctx, room); err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		debit := settlement.StakeDebit(room, hostID)
		if _, err := s.engine.Apply(ctx, tx, roomRef(roomID, roundScope(1)), []domain.Delta{debit}); err != nil {
			return err
		}
		return tx.Outbox().Insert(ctx, domain.NewRoomUpdatedEvent(room))
	})
	if err != nil {
		return nil, fail("create room", err)
	}
	s.logger.Info("room created", "room_id", roomID, "host_id", hostID, "stake", stake, "currency", currency)
	return room, nil
}

// JoinRoom seats a guest and reserves their stake, starting play.
func (s *RoomService) JoinRoom(ctx context.Context, roomID, guestID uuid.UUID) (*domain.Room, error) {
	var room *domain.Room
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		room, err = mustRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		switch {
		case room.Closed():
			return domain.ErrRoomClosed(roomID.String())
		case room.IsHost(guestID):
			return domain.ErrValidation("host cannot join their own room")
		case room.IsGuest(guestID):
			return domain.ErrConflict("already joined")
		case room.GuestID != nil:
			return domain.ErrConflict("room is full")
		}

		guest, err := mustAccount(ctx, tx, guestID)
		if err != nil {
			return err
		}
		if err := policy.EvaluateStanding(guest).Err(guestID.String()); err != nil {
			return err
		}

		room.GuestID = &guestID
		room.GuestReserved = true
		room.State = domain.RoomPlaying
		room.UpdatedAt = s.clock.now()
		if err := tx.Rooms().Update(ctx, room); err != nil {
			return fmt.Errorf("update room: %w", err)
		}
		debit := settlement.StakeDebit(room, guestID)
		if _, err := s.engine.Apply(ctx, tx, roomRef(roomID, roundScope(room.Round+1)), []domain.Delta{debit}); err != nil {
			return err
		}
		return tx.Outbox().Insert(ctx, domain.NewRoomUpdatedEvent(room))
	})
	if err != nil {
		return nil, fail("join room", err)
	}
	s.logger.Info("room joined", "room_id", roomID, "guest_id", guestID)
	masked := room.Masked(guestID)
	return &masked, nil
}

// ChoiceResult is the room after a choice, plus the round settlement when
// this choice completed the round.
type ChoiceResult struct {
	Room    domain.Room              `json:"room"`
	Settled *settlement.RoundOutcome `json:"settled,omitempty"`
}

// SubmitChoice records a player's hand for the current round, re-reserving
// their stake if the previous round consumed it. The call that completes
// the round settles it. A non-zero round pins the submission to that round
// so a duplicate cannot spill into the next one.
func (s *RoomService) SubmitChoice(ctx context.Context, roomID, playerID uuid.UUID, choice domain.Choice, round int) (*ChoiceResult, error) {
	if err := domain.ValidateChoice(choice); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	var res *ChoiceResult
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		room, err := mustRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if room.Closed() {
			return domain.ErrRoomClosed(roomID.String())
		}
		isHost := room.IsHost(playerID)
		if !isHost && !room.IsGuest(playerID) {
			return domain.ErrForbidden("not a participant of this room")
		}
		if room.State != domain.RoomPlaying {
			return domain.ErrConflict("room is waiting for a guest")
		}
		current := room.Round + 1
		if round != 0 && round != current {
			return domain.ErrConflict(fmt.Sprintf("round %d is not open, current round is %d", round, current))
		}

		slot, reserved := &room.GuestChoice, &room.GuestReserved
		if isHost {
			slot, reserved = &room.HostChoice, &room.HostReserved
		}
		if *slot != nil {
			return domain.ErrConflict("choice already submitted for this round")
		}

		var deltas []domain.Delta
		if !*reserved {
			deltas = append(deltas, settlement.StakeDebit(room, playerID))
			*reserved = true
		}
		c := choice
		*slot = &c

		res = &ChoiceResult{}
		if room.HostChoice != nil && room.GuestChoice != nil {
			outcome := settlement.SettleRound(room, *room.HostChoice, *room.GuestChoice)
			deltas = append(deltas, outcome.Deltas...)
			res.Settled = &outcome

			room.Round = current
			room.LastRoundResult = outcome.Result
			room.LastRoundWinner = nil
			switch outcome.Result {
			case domain.RoundHostWon:
				room.LastRoundWinner = &room.HostID
			case domain.RoundGuestWon:
				room.LastRoundWinner = room.GuestID
			}
			room.HostChoice, room.GuestChoice = nil, nil
			room.HostReserved, room.GuestReserved = false, false
		}

		room.UpdatedAt = s.clock.now()
		if err := tx.Rooms().Update(ctx, room); err != nil {
			return fmt.Errorf("update room: %w", err)
		}
		if _, err := s.engine.Apply(ctx, tx, roomRef(roomID, roundScope(current)), deltas); err != nil {
			return err
		}
		res.Room = room.Masked(playerID)
		return tx.Outbox().Insert(ctx, domain.NewRoomUpdatedEvent(room))
	})
	if err != nil {
		return nil, fail("submit choice", err)
	}
	if res.Settled != nil {
		s.logger.Info("round settled",
			"room_id", roomID,
			"round", res.Room.Round,
			"result", res.Settled.Result,
			"fee", res.Settled.Fee,
		)
	}
	return res, nil
}

// EndRoom completes a room: the host ends it, the guest quits it. Any stake
// still reserved goes back to its owner.
func (s *RoomService) EndRoom(ctx context.Context, roomID, playerID uuid.UUID) (*domain.Room, error) {
	var room *domain.Room
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		room, err = mustRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if room.Closed() {
			return domain.ErrRoomClosed(roomID.String())
		}
		if !room.IsHost(playerID) && !room.IsGuest(playerID) {
			return domain.ErrForbidden("not a participant of this room")
		}

		refunds := settlement.ReleaseReservations(room)
		now := s.clock.now()
		room.State = domain.RoomCompleted
		room.HostChoice, room.GuestChoice = nil, nil
		room.HostReserved, room.GuestReserved = false, false
		room.CompletedAt = &now
		room.UpdatedAt = now
		if err := tx.Rooms().Update(ctx, room); err != nil {
			return fmt.Errorf("update room: %w", err)
		}
		if _, err := s.engine.Apply(ctx, tx, roomRef(roomID, "close"), refunds); err != nil {
			return err
		}
		return tx.Outbox().Insert(ctx, domain.NewRoomUpdatedEvent(room))
	})
	if err != nil {
		return nil, fail("end room", err)
	}
	action := "ended"
	if !room.IsHost(playerID) {
		action = "quit"
	}
	s.logger.Info("room completed", "room_id", roomID, "by", playerID, "action", action, "rounds", room.Round)
	masked := room.Masked(playerID)
	return &masked, nil
}

// GetRoom returns a room as viewer may see it.
func (s *RoomService) GetRoom(ctx context.Context, roomID, viewer uuid.UUID) (*domain.Room, error) {
	var room *domain.Room
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		room, err = mustRoom(ctx, tx, roomID)
		return err
	})
	if err != nil {
		return nil, fail("get room", err)
	}
	masked := room.Masked(viewer)
	return &masked, nil
}

// ListRooms returns rooms in one state, newest first, as viewer may see them.
func (s *RoomService) ListRooms(ctx context.Context, state domain.RoomState, viewer uuid.UUID, limit int) ([]domain.Room, error) {
	switch state {
	case domain.RoomWaiting, domain.RoomPlaying, domain.RoomCompleted:
	default:
		return nil, domain.ErrValidation(fmt.Sprintf("unknown room state %q", state))
	}
	var rooms []domain.Room
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		rooms, err = tx.Rooms().ListByState(ctx, state, pageSize(limit))
		return err
	})
	if err != nil {
		return nil, fail("list rooms", err)
	}
	out := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Masked(viewer))
	}
	return out, nil
}

func mustRoom(ctx context.Context, tx repository.Tx, id uuid.UUID) (*domain.Room, error) {
	room, err := tx.Rooms().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	if room == nil {
		return nil, domain.ErrNotFound("room", id.String())
	}
	return room, nil
}
