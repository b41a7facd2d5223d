package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/infra"
)

type roomRepo struct{ db DBTX }

const roomColumns = `id, host_id, guest_id, stake, currency, state, host_choice, guest_choice,
	host_reserved, guest_reserved, round, last_round_winner, last_round_result,
	version, created_at, updated_at, completed_at`

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var r domain.Room
	var stake pgtype.Numeric
	var guest, lastWinner pgtype.UUID
	var hostChoice, guestChoice pgtype.Text
	var completed pgtype.Timestamptz
	err := row.Scan(&r.ID, &r.HostID, &guest, &stake, &r.Currency, &r.State,
		&hostChoice, &guestChoice, &r.HostReserved, &r.GuestReserved, &r.Round,
		&lastWinner, &r.LastRoundResult, &r.Version, &r.CreatedAt, &r.UpdatedAt, &completed)
	if err != nil {
		return nil, err
	}
	if r.Stake, err = infra.NumericToInt64(stake); err != nil {
		return nil, fmt.Errorf("convert stake: %w", err)
	}
	r.GuestID = uuidPtr(guest)
	r.LastRoundWinner = uuidPtr(lastWinner)
	r.HostChoice = textPtr[domain.Choice](hostChoice)
	r.GuestChoice = textPtr[domain.Choice](guestChoice)
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func (r roomRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	room, err := scanRoom(r.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan room: %w", err)
	}
	return room, nil
}

func (r roomRepo) Create(ctx context.Context, room *domain.Room) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14, $15, $16)`,
		room.ID, room.HostID, room.GuestID, infra.Int64ToNumeric(room.Stake),
		string(room.Currency), string(room.State),
		textArg(room.HostChoice), textArg(room.GuestChoice),
		room.HostReserved, room.GuestReserved, room.Round,
		room.LastRoundWinner, string(room.LastRoundResult),
		room.CreatedAt, room.UpdatedAt, room.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert room: %w", classify(err))
	}
	room.Version = 1
	return nil
}

func (r roomRepo) Update(ctx context.Context, room *domain.Room) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE rooms SET
		  guest_id = $2, state = $3, host_choice = $4, guest_choice = $5,
		  host_reserved = $6, guest_reserved = $7, round = $8,
		  last_round_winner = $9, last_round_result = $10,
		  updated_at = $11, completed_at = $12, version = version + 1
		WHERE id = $1 AND version = $13`,
		room.ID, room.GuestID, string(room.State),
		textArg(room.HostChoice), textArg(room.GuestChoice),
		room.HostReserved, room.GuestReserved, room.Round,
		room.LastRoundWinner, string(room.LastRoundResult),
		room.UpdatedAt, room.CompletedAt, room.Version,
	)
	if err := casResult(tag, err, "update room"); err != nil {
		return err
	}
	room.Version++
	return nil
}

func (r roomRepo) ListByState(ctx context.Context, state domain.RoomState, limit int) ([]domain.Room, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+roomColumns+`
		FROM rooms WHERE state = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, string(state), limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room row: %w", err)
		}
		out = append(out, *room)
	}
	return out, rows.Err()
}
