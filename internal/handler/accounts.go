package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/auth"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/service"
)

// AccountHandler serves account, ledger and adjustment endpoints.
type AccountHandler struct {
	accounts *service.AccountService
	jwt      *auth.JWTManager
}

// NewAccountHandler creates an account handler.
func NewAccountHandler(accounts *service.AccountService, jwt *auth.JWTManager) *AccountHandler {
	return &AccountHandler{accounts: accounts, jwt: jwt}
}

// Me handles GET /accounts/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	acct, err := h.accounts.GetAccount(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, acct)
}

// MyLedger handles GET /accounts/me/ledger.
func (h *AccountHandler) MyLedger(w http.ResponseWriter, r *http.Request) {
	id, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.ledger(w, r, id)
}

func (h *AccountHandler) ledger(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	cursor, err := queryCursor(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	page, err := h.accounts.ListLedger(r.Context(), id, cursor, queryLimit(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, page)
}

type createAccountRequest struct {
	ID          *uuid.UUID `json:"id"`
	DisplayName string     `json:"display_name" validate:"required,max=64"`
	ReferrerID  *uuid.UUID `json:"referrer_id"`
}

// Create handles POST /admin/accounts.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := Bind(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	in := service.CreateAccountInput{DisplayName: req.DisplayName, ReferrerID: req.ReferrerID}
	if req.ID != nil {
		in.ID = *req.ID
	}
	acct, err := h.accounts.CreateAccount(r.Context(), in)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, acct)
}

// Get handles GET /admin/accounts/{id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	acct, err := h.accounts.GetAccount(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, acct)
}

// Approve handles POST /admin/accounts/{id}/approve.
func (h *AccountHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	res, err := h.accounts.ApproveAccount(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// Disable handles POST /admin/accounts/{id}/disable.
func (h *AccountHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.accounts.DisableAccount)
}

// Enable handles POST /admin/accounts/{id}/enable.
func (h *AccountHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.accounts.EnableAccount)
}

func (h *AccountHandler) toggle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) (*domain.Account, error)) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	acct, err := op(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, acct)
}

// Delete handles DELETE /admin/accounts/{id}.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := h.accounts.DeleteAccount(r.Context(), id); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

type adjustRequest struct {
	Currency domain.Currency `json:"currency" validate:"required,oneof=points cash"`
	Amount   int64           `json:"amount" validate:"required"`
	Note     string          `json:"note" validate:"required,max=500"`
}

// Adjust handles POST /admin/accounts/{id}/adjustments.
func (h *AccountHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	operator, err := subject(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req adjustRequest
	if err := Bind(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	res, err := h.accounts.AdjustBalance(r.Context(), service.AdjustInput{
		AccountID:  id,
		Currency:   req.Currency,
		Amount:     req.Amount,
		Note:       req.Note,
		OperatorID: operator,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// Adjustments handles GET /admin/accounts/{id}/adjustments.
func (h *AccountHandler) Adjustments(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	adjs, err := h.accounts.ListAdjustments(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"adjustments": adjs})
}

// Ledger handles GET /admin/accounts/{id}/ledger.
func (h *AccountHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	h.ledger(w, r, id)
}

// Verify handles GET /admin/accounts/{id}/verify.
func (h *AccountHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	res, err := h.accounts.VerifyLedger(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// HouseRevenue handles GET /admin/house/revenue.
func (h *AccountHandler) HouseRevenue(w http.ResponseWriter, r *http.Request) {
	rev, err := h.accounts.HouseRevenue(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"revenue": rev})
}

// IssueToken handles POST /admin/accounts/{id}/token. The chat front end
// calls it to obtain a player token after it has identified the user.
func (h *AccountHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	if _, err := h.accounts.GetAccount(r.Context(), id); err != nil {
		RespondError(w, err)
		return
	}
	token, err := h.jwt.GenerateToken(auth.RealmPlayer, id, "")
	if err != nil {
		RespondError(w, domain.ErrInternal("issue token", err))
		return
	}
	RespondJSON(w, http.StatusCreated, map[string]string{"token": token})
}
