package handler

import (
	"net/http"

	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/guard"
	"github.com/stakehouse/platform/internal/service"
)

// RequestHandler serves withdrawal and loan requests.
type RequestHandler struct {
	requests *service.RequestService
	dedup    *guard.IdempotencyGuard
}

// NewRequestHandler creates a request handler. Filings carrying an
// Idempotency-Key header are accepted once per key.
func NewRequestHandler(requests *service.RequestService, dedup *guard.IdempotencyGuard) *RequestHandler {
	return &RequestHandler{requests: requests, dedup: dedup}
}

type fileRequestRequest struct {
	Type   domain.RequestType `json:"type" validate:"required,oneof=withdrawal loan"`
	Amount int64              `json:"amount" validate:"required,gt=0"`
}

// File handles POST /requests.
func (h *RequestHandler) File(w http.ResponseWriter, r *http.Request) {
	account, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req fileRequestRequest
	if err := Bind(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		key = account.String() + ":" + key
		if res := h.dedup.Check(r.Context(), key); !res.Allowed {
			RespondError(w, domain.ErrConflict(res.Reason))
			return
		}
	}

	filed, err := h.requests.FileRequest(r.Context(), account, req.Type, req.Amount)
	if err != nil {
		if key != "" {
			h.dedup.Remove(key)
		}
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, filed)
}

// Mine handles GET /requests/me.
func (h *RequestHandler) Mine(w http.ResponseWriter, r *http.Request) {
	account, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	reqs, err := h.requests.ListAccountRequests(r.Context(), account, queryLimit(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

// List handles GET /admin/requests?status=pending.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.RequestStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.RequestPending
	}
	reqs, err := h.requests.ListRequests(r.Context(), status, queryLimit(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

// Get handles GET /admin/requests/{id}.
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	req, err := h.requests.GetRequest(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, req)
}

type decisionRequest struct {
	Approve *bool `json:"approve" validate:"required"`
}

// Decide handles POST /admin/requests/{id}/decision.
func (h *RequestHandler) Decide(w http.ResponseWriter, r *http.Request) {
	operator, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req decisionRequest
	if err := Bind(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	done, err := h.requests.ProcessRequest(r.Context(), id, operator, *req.Approve)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, done)
}
