package handler

import (
	"net/http"

	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/service"
)

// RoomHandler serves the head-to-head room endpoints. Every route acts as
// the authenticated player.
type RoomHandler struct {
	rooms *service.RoomService
}

// NewRoomHandler creates a room handler.
func NewRoomHandler(rooms *service.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

type createRoomRequest struct {
	Stake    int64           `json:"stake" validate:"required,gt=0"`
	Currency domain.Currency `json:"currency" validate:"required,oneof=points cash"`
}

// Create handles POST /rooms.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	host, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req createRoomRequest
	if err := Bind(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	room, err := h.rooms.CreateRoom(r.Context(), host, req.Stake, req.Currency)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, room)
}

// List handles GET /rooms?state=waiting.
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	viewer, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	state := domain.RoomState(r.URL.Query().Get("state"))
	if state == "" {
		state = domain.RoomWaiting
	}
	rooms, err := h.rooms.ListRooms(r.Context(), state, viewer, queryLimit(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

// Get handles GET /rooms/{id}.
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	viewer, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	room, err := h.rooms.GetRoom(r.Context(), id, viewer)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, room)
}

// Join handles POST /rooms/{id}/join.
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	guest, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	room, err := h.rooms.JoinRoom(r.Context(), id, guest)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, room)
}

type choiceRequest struct {
	Choice domain.Choice `json:"choice" validate:"required,oneof=rock paper scissors"`
	Round  int           `json:"round" validate:"gte=0"`
}

// Choice handles POST /rooms/{id}/choice.
func (h *RoomHandler) Choice(w http.ResponseWriter, r *http.Request) {
	player, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req choiceRequest
	if err := Bind(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	res, err := h.rooms.SubmitChoice(r.Context(), id, player, req.Choice, req.Round)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// End handles POST /rooms/{id}/end.
func (h *RoomHandler) End(w http.ResponseWriter, r *http.Request) {
	player, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	room, err := h.rooms.EndRoom(r.Context(), id, player)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, room)
}
