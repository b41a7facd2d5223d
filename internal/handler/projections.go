package handler

import (
	"errors"
	"net/http"

	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/projection"
)

// ProjectionHandler serves cached read models. They lag the ledger by the
// relay interval; authoritative balances come from /accounts/me.
type ProjectionHandler struct {
	store projection.Store
}

// NewProjectionHandler creates a projection handler over store.
func NewProjectionHandler(store projection.Store) *ProjectionHandler {
	return &ProjectionHandler{store: store}
}

// Balance handles GET /projections/balance.
func (h *ProjectionHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	p, err := projection.GetBalance(r.Context(), h.store, id)
	if err != nil {
		RespondError(w, cacheError("balance", err))
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

// Room handles GET /projections/rooms/{id}.
func (h *ProjectionHandler) Room(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	p, err := projection.GetRoom(r.Context(), h.store, id)
	if err != nil {
		RespondError(w, cacheError("room", err))
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

func cacheError(what string, err error) error {
	if errors.Is(err, projection.ErrNotFound) {
		return domain.ErrNotFound(what, "projection")
	}
	return domain.ErrInternal("read projection", err)
}
