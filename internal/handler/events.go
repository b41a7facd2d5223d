package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/service"
)

// EventHandler serves prediction pool endpoints for both realms.
type EventHandler struct {
	events *service.EventService
}

// NewEventHandler creates an event handler.
func NewEventHandler(events *service.EventService) *EventHandler {
	return &EventHandler{events: events}
}

// List handles GET /events?status=open.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.EventStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.EventOpen
	}
	events, err := h.events.ListEvents(r.Context(), status, queryLimit(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"events": events})
}

// Get handles GET /events/{id}.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	event, err := h.events.GetEvent(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, event)
}

type placeBetRequest struct {
	Outcome domain.Outcome `json:"outcome" validate:"required,oneof=A B"`
	Stake   int64          `json:"stake" validate:"required,gt=0"`
}

// PlaceBet handles POST /events/{id}/bets.
func (h *EventHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	account, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req placeBetRequest
	if err := Bind(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	res, err := h.events.PlaceBet(r.Context(), account, id, service.PlaceBetInput{Outcome: req.Outcome, Stake: req.Stake})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// MyBets handles GET /accounts/me/bets.
func (h *EventHandler) MyBets(w http.ResponseWriter, r *http.Request) {
	account, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	bets, err := h.events.ListAccountBets(r.Context(), account, queryLimit(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"bets": bets})
}

type createEventRequest struct {
	Title          string          `json:"title" validate:"required,max=200"`
	OutcomeA       string          `json:"outcome_a" validate:"required,max=100"`
	OutcomeB       string          `json:"outcome_b" validate:"required,max=100"`
	OddsA          decimal.Decimal `json:"odds_a"`
	OddsB          decimal.Decimal `json:"odds_b"`
	Currency       domain.Currency `json:"currency" validate:"required,oneof=points cash"`
	EndTime        time.Time       `json:"end_time" validate:"required"`
	InitialFunding int64           `json:"initial_funding" validate:"gte=0"`
}

// Create handles POST /admin/events.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := Bind(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	event, err := h.events.CreateEvent(r.Context(), service.CreateEventInput{
		Title:          req.Title,
		OutcomeA:       req.OutcomeA,
		OutcomeB:       req.OutcomeB,
		OddsA:          req.OddsA,
		OddsB:          req.OddsB,
		Currency:       req.Currency,
		EndTime:        req.EndTime,
		InitialFunding: req.InitialFunding,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, event)
}

type fundRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// Fund handles POST /admin/events/{id}/fund.
func (h *EventHandler) Fund(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req fundRequest
	if err := Bind(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	event, err := h.events.FundEvent(r.Context(), id, req.Amount)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, event)
}

// Lock handles POST /admin/events/{id}/lock.
func (h *EventHandler) Lock(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	event, err := h.events.LockEvent(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, event)
}

type resolveRequest struct {
	WinningOutcome domain.Outcome `json:"winning_outcome" validate:"required,oneof=A B"`
}

// Resolve handles POST /admin/events/{id}/resolve.
func (h *EventHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req resolveRequest
	if err := Bind(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	res, err := h.events.ResolveEvent(r.Context(), id, req.WinningOutcome)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// Cancel handles POST /admin/events/{id}/cancel.
func (h *EventHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	res, err := h.events.CancelEvent(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// Bets handles GET /admin/events/{id}/bets.
func (h *EventHandler) Bets(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	bets, err := h.events.ListBets(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"bets": bets})
}
