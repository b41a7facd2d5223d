package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func playingRoom(t *testing.T, f *fixture, stake int64) (*domain.Room, *domain.Account, *domain.Account) {
	t.Helper()
	ctx := context.Background()
	host := f.player(t, 1000, 0)
	guest := f.player(t, 1000, 0)
	room, err := f.rooms.CreateRoom(ctx, host.ID, stake, domain.CurrencyPoints)
	require.NoError(t, err)
	room, err = f.rooms.JoinRoom(ctx, room.ID, guest.ID)
	require.NoError(t, err)
	return room, host, guest
}

func TestRoom_CreateAndJoinReserveStakes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.player(t, 1000, 0)
	guest := f.player(t, 1000, 0)

	room, err := f.rooms.CreateRoom(ctx, host.ID, 100, domain.CurrencyPoints)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomWaiting, room.State)
	assert.True(t, room.HostReserved)
	assert.Equal(t, int64(900), f.points(t, host.ID))

	room, err = f.rooms.JoinRoom(ctx, room.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomPlaying, room.State)
	assert.True(t, room.GuestReserved)
	assert.Equal(t, int64(900), f.points(t, guest.ID))

	stakes := f.related(t, domain.RelatedRoom, room.ID)
	assert.Equal(t, 2, countReason(stakes, domain.ReasonRoomStake))
}

func TestRoom_DecisiveRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, host, guest := playingRoom(t, f, 100)

	res, err := f.rooms.SubmitChoice(ctx, room.ID, host.ID, domain.ChoiceRock, 0)
	require.NoError(t, err)
	assert.Nil(t, res.Settled)
	require.NotNil(t, res.Room.HostChoice, "own choice is visible")

	asGuest, err := f.rooms.GetRoom(ctx, room.ID, guest.ID)
	require.NoError(t, err)
	assert.Nil(t, asGuest.HostChoice, "opponent choice is masked")

	res, err = f.rooms.SubmitChoice(ctx, room.ID, guest.ID, domain.ChoiceScissors, 1)
	require.NoError(t, err)
	require.NotNil(t, res.Settled)
	assert.Equal(t, domain.RoundHostWon, res.Settled.Result)
	assert.Equal(t, int64(200), res.Settled.Pool)
	assert.Equal(t, int64(10), res.Settled.Fee)
	assert.Equal(t, int64(190), res.Settled.Payout)

	assert.Equal(t, 1, res.Room.Round)
	assert.Nil(t, res.Room.HostChoice)
	assert.Nil(t, res.Room.GuestChoice)
	assert.False(t, res.Room.HostReserved)
	assert.False(t, res.Room.GuestReserved)
	require.NotNil(t, res.Room.LastRoundWinner)
	assert.Equal(t, host.ID, *res.Room.LastRoundWinner)

	assert.Equal(t, int64(1090), f.points(t, host.ID))
	assert.Equal(t, int64(900), f.points(t, guest.ID))
	assert.Equal(t, int64(10), f.house(t, domain.CurrencyPoints))
	f.verified(t, host.ID, guest.ID)
}

func TestRoom_DrawRefundsBoth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, host, guest := playingRoom(t, f, 100)

	_, err := f.rooms.SubmitChoice(ctx, room.ID, guest.ID, domain.ChoicePaper, 0)
	require.NoError(t, err)
	res, err := f.rooms.SubmitChoice(ctx, room.ID, host.ID, domain.ChoicePaper, 0)
	require.NoError(t, err)

	require.NotNil(t, res.Settled)
	assert.Equal(t, domain.RoundDraw, res.Settled.Result)
	assert.Nil(t, res.Room.LastRoundWinner)
	assert.Equal(t, int64(1000), f.points(t, host.ID))
	assert.Equal(t, int64(1000), f.points(t, guest.ID))
	assert.Zero(t, f.house(t, domain.CurrencyPoints))
}

func TestRoom_NextRoundReReserves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, host, guest := playingRoom(t, f, 100)

	_, err := f.rooms.SubmitChoice(ctx, room.ID, host.ID, domain.ChoiceRock, 0)
	require.NoError(t, err)
	_, err = f.rooms.SubmitChoice(ctx, room.ID, guest.ID, domain.ChoicePaper, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(900), f.points(t, host.ID))
	assert.Equal(t, int64(1090), f.points(t, guest.ID))

	res, err := f.rooms.SubmitChoice(ctx, room.ID, host.ID, domain.ChoiceRock, 2)
	require.NoError(t, err)
	assert.True(t, res.Room.HostReserved)
	assert.False(t, res.Room.GuestReserved)
	assert.Equal(t, int64(800), f.points(t, host.ID))

	// Ending mid-round refunds only the stake still reserved.
	ended, err := f.rooms.EndRoom(ctx, room.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomCompleted, ended.State)
	assert.Equal(t, int64(900), f.points(t, host.ID))
	assert.Equal(t, int64(1090), f.points(t, guest.ID))
	f.verified(t, host.ID, guest.ID)
}

func TestRoom_EndReturnsBothReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, host, guest := playingRoom(t, f, 250)

	ended, err := f.rooms.EndRoom(ctx, room.ID, host.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomCompleted, ended.State)
	assert.NotNil(t, ended.CompletedAt)
	assert.Equal(t, int64(1000), f.points(t, host.ID))
	assert.Equal(t, int64(1000), f.points(t, guest.ID))

	other := f.player(t, 1000, 0)
	_, err = f.rooms.JoinRoom(ctx, room.ID, other.ID)
	assertCode(t, domain.CodeRoomClosed, err)
	_, err = f.rooms.SubmitChoice(ctx, room.ID, host.ID, domain.ChoiceRock, 0)
	assertCode(t, domain.CodeRoomClosed, err)
	_, err = f.rooms.EndRoom(ctx, room.ID, guest.ID)
	assertCode(t, domain.CodeRoomClosed, err)
}

func TestRoom_HostEndsWaitingRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.player(t, 1000, 0)
	room, err := f.rooms.CreateRoom(ctx, host.ID, 100, domain.CurrencyPoints)
	require.NoError(t, err)

	_, err = f.rooms.EndRoom(ctx, room.ID, uuid.New())
	assertCode(t, domain.CodeForbidden, err)

	ended, err := f.rooms.EndRoom(ctx, room.ID, host.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomCompleted, ended.State)
	assert.Equal(t, int64(1000), f.points(t, host.ID))
}

func TestRoom_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, host, guest := playingRoom(t, f, 100)
	outsider := f.player(t, 1000, 0)
	poor := f.player(t, 5, 0)

	waiting, err := f.rooms.CreateRoom(ctx, outsider.ID, 100, domain.CurrencyPoints)
	require.NoError(t, err)

	_, err = f.rooms.SubmitChoice(ctx, room.ID, host.ID, domain.ChoiceRock, 0)
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
		code string
	}{
		{"stake below minimum", func() error {
			_, err := f.rooms.CreateRoom(ctx, host.ID, 0, domain.CurrencyPoints)
			return err
		}, domain.CodeValidation},
		{"unknown currency", func() error {
			_, err := f.rooms.CreateRoom(ctx, host.ID, 10, "gold")
			return err
		}, domain.CodeValidation},
		{"insufficient funds to host", func() error {
			_, err := f.rooms.CreateRoom(ctx, poor.ID, 10, domain.CurrencyPoints)
			return err
		}, domain.CodeInsufficientFunds},
		{"insufficient funds to join", func() error {
			_, err := f.rooms.JoinRoom(ctx, waiting.ID, poor.ID)
			return err
		}, domain.CodeInsufficientFunds},
		{"join own room", func() error {
			_, err := f.rooms.JoinRoom(ctx, waiting.ID, outsider.ID)
			return err
		}, domain.CodeValidation},
		{"join full room", func() error {
			_, err := f.rooms.JoinRoom(ctx, room.ID, outsider.ID)
			return err
		}, domain.CodeConflict},
		{"join unknown room", func() error {
			_, err := f.rooms.JoinRoom(ctx, uuid.New(), outsider.ID)
			return err
		}, domain.CodeNotFound},
		{"outsider choice", func() error {
			_, err := f.rooms.SubmitChoice(ctx, room.ID, outsider.ID, domain.ChoiceRock, 0)
			return err
		}, domain.CodeForbidden},
		{"choice while waiting", func() error {
			_, err := f.rooms.SubmitChoice(ctx, waiting.ID, outsider.ID, domain.ChoiceRock, 0)
			return err
		}, domain.CodeConflict},
		{"second choice same round", func() error {
			_, err := f.rooms.SubmitChoice(ctx, room.ID, host.ID, domain.ChoicePaper, 0)
			return err
		}, domain.CodeConflict},
		{"stale round", func() error {
			_, err := f.rooms.SubmitChoice(ctx, room.ID, guest.ID, domain.ChoicePaper, 3)
			return err
		}, domain.CodeConflict},
		{"invalid choice", func() error {
			_, err := f.rooms.SubmitChoice(ctx, room.ID, guest.ID, "lizard", 0)
			return err
		}, domain.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCode(t, tt.code, tt.call())
		})
	}

	assert.Equal(t, int64(5), f.points(t, poor.ID))
	f.verified(t, host.ID, guest.ID, outsider.ID, poor.ID)
}

func TestRoom_ListMasksChoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, host, guest := playingRoom(t, f, 100)
	_, err := f.rooms.SubmitChoice(ctx, room.ID, host.ID, domain.ChoiceRock, 0)
	require.NoError(t, err)

	rooms, err := f.rooms.ListRooms(ctx, domain.RoomPlaying, guest.ID, 10)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Nil(t, rooms[0].HostChoice)

	rooms, err = f.rooms.ListRooms(ctx, domain.RoomPlaying, host.ID, 10)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.NotNil(t, rooms[0].HostChoice)

	_, err = f.rooms.ListRooms(ctx, "lost", host.ID, 10)
	assertCode(t, domain.CodeValidation, err)
}

func TestRoom_OutboxNeverCarriesPendingChoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, host, guest := playingRoom(t, f, 100)
	_, err := f.rooms.SubmitChoice(ctx, room.ID, host.ID, domain.ChoiceRock, 0)
	require.NoError(t, err)
	_, err = f.rooms.SubmitChoice(ctx, room.ID, guest.ID, domain.ChoiceScissors, 0)
	require.NoError(t, err)
	_, err = f.rooms.SubmitChoice(ctx, room.ID, guest.ID, domain.ChoicePaper, 2)
	require.NoError(t, err)

	var records []domain.OutboxRecord
	require.NoError(t, f.store.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		records, err = tx.Outbox().FetchUnpublished(ctx, 1000)
		return err
	}))

	snapshots := 0
	for _, rec := range records {
		if rec.EventType != domain.EventRoomUpdated {
			continue
		}
		snapshots++
		assert.NotContains(t, string(rec.Payload), "_choice", "seq %d", rec.Seq)
		var got domain.Room
		require.NoError(t, json.Unmarshal(rec.Payload, &got))
		assert.Nil(t, got.HostChoice)
		assert.Nil(t, got.GuestChoice)
	}
	require.NotZero(t, snapshots)

	last := records[len(records)-1]
	require.Equal(t, domain.EventRoomUpdated, last.EventType)
	var pending domain.Room
	require.NoError(t, json.Unmarshal(last.Payload, &pending))
	assert.True(t, pending.GuestReserved, "submission is visible as a reservation")
	assert.Equal(t, 1, pending.Round)
}

// Both parties submit at the same instant; exactly one call settles the
// round and the ledger shows a single payout and fee.
func TestRoom_ConcurrentChoicesSettleOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		room, host, guest := playingRoom(t, f, 100)

		var (
			wg      sync.WaitGroup
			results [2]*ChoiceResult
			errs    [2]error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			results[0], errs[0] = f.rooms.SubmitChoice(ctx, room.ID, host.ID, domain.ChoiceRock, 1)
		}()
		go func() {
			defer wg.Done()
			results[1], errs[1] = f.rooms.SubmitChoice(ctx, room.ID, guest.ID, domain.ChoiceScissors, 1)
		}()
		wg.Wait()
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		settled := 0
		for _, r := range results {
			if r.Settled != nil {
				settled++
			}
		}
		assert.Equal(t, 1, settled)

		entries := f.related(t, domain.RelatedRoom, room.ID)
		assert.Equal(t, 1, countReason(entries, domain.ReasonRoomPayout))
		assert.Equal(t, 1, countReason(entries, domain.ReasonHouseFee))
		assert.Equal(t, int64(1090), f.points(t, host.ID))
		assert.Equal(t, int64(900), f.points(t, guest.ID))
	}
	assert.Equal(t, int64(200), f.house(t, domain.CurrencyPoints))
}

func TestRoom_ConcurrentJoinsSeatOneGuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.player(t, 1000, 0)
	room, err := f.rooms.CreateRoom(ctx, host.ID, 100, domain.CurrencyPoints)
	require.NoError(t, err)

	const n = 8
	guests := make([]*domain.Account, n)
	for i := range guests {
		guests[i] = f.player(t, 1000, 0)
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range guests {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.rooms.JoinRoom(ctx, room.ID, guests[i].ID)
		}(i)
	}
	wg.Wait()

	joined := 0
	var debited int64
	for i, err := range errs {
		if err == nil {
			joined++
		} else {
			assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
		}
		debited += 1000 - f.points(t, guests[i].ID)
	}
	assert.Equal(t, 1, joined)
	assert.Equal(t, int64(100), debited)
}
