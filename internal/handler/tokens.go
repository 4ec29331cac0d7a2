package handler

import (
	"net/http"

	balancemodels "tracechain/internal/balance/models"
	catalogmodels "tracechain/internal/catalog/models"
	"tracechain/pkg/domain"
	"tracechain/pkg/requestcontext"
)

// createTokenRequest leaves the name unchecked here; the catalog validates it
// after the caller's permissions so callers see errors in a stable order.
type createTokenRequest struct {
	Name        string `json:"name"`
	TotalSupply *int64 `json:"total_supply" validate:"required"`
	Metadata    string `json:"metadata" validate:"max=4096"`
	ParentID    uint64 `json:"parent_id"`
}

type tokenList struct {
	Tokens []*catalogmodels.Token `json:"tokens"`
}

type balanceList struct {
	Balances []balancemodels.Balance `json:"balances"`
}

func (h *Handler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createTokenRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "create token", err)
		return
	}
	token, err := h.catalog.CreateToken(ctx, requestcontext.Caller(ctx), catalogmodels.CreateTokenRequest{
		Name:        req.Name,
		TotalSupply: *req.TotalSupply,
		Metadata:    req.Metadata,
		ParentID:    domain.TokenID(req.ParentID),
	})
	if err != nil {
		h.fail(w, r, "create token", err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

func (h *Handler) handleGetToken(w http.ResponseWriter, r *http.Request) {
	id, err := tokenParam(r)
	if err != nil {
		h.fail(w, r, "get token", err)
		return
	}
	token, err := h.catalog.GetToken(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get token", err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// handleLineage returns the token and its ancestors, newest first.
func (h *Handler) handleLineage(w http.ResponseWriter, r *http.Request) {
	id, err := tokenParam(r)
	if err != nil {
		h.fail(w, r, "lineage", err)
		return
	}
	chain, err := h.catalog.Lineage(r.Context(), id)
	if err != nil {
		h.fail(w, r, "lineage", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenList{Tokens: chain})
}

func (h *Handler) handleListByCreator(w http.ResponseWriter, r *http.Request) {
	creator, err := addressParam(r)
	if err != nil {
		h.fail(w, r, "list tokens", err)
		return
	}
	tokens, err := h.catalog.ListByCreator(r.Context(), creator)
	if err != nil {
		h.fail(w, r, "list tokens", err)
		return
	}
	if tokens == nil {
		tokens = []*catalogmodels.Token{}
	}
	writeJSON(w, http.StatusOK, tokenList{Tokens: tokens})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := tokenParam(r)
	if err != nil {
		h.fail(w, r, "snapshot", err)
		return
	}
	if _, err := h.catalog.GetToken(ctx, id); err != nil {
		h.fail(w, r, "snapshot", err)
		return
	}
	out, err := h.balances.Snapshot(ctx, id)
	if err != nil {
		h.fail(w, r, "snapshot", err)
		return
	}
	if out == nil {
		out = []balancemodels.Balance{}
	}
	writeJSON(w, http.StatusOK, balanceList{Balances: out})
}

// handleGetBalance reports a zero record for holders that never held the token.
func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := tokenParam(r)
	if err != nil {
		h.fail(w, r, "get balance", err)
		return
	}
	holder, err := addressParam(r)
	if err != nil {
		h.fail(w, r, "get balance", err)
		return
	}
	b, err := h.balances.Get(r.Context(), id, holder)
	if err != nil {
		h.fail(w, r, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) handleHoldings(w http.ResponseWriter, r *http.Request) {
	holder, err := addressParam(r)
	if err != nil {
		h.fail(w, r, "holdings", err)
		return
	}
	out, err := h.balances.Holdings(r.Context(), holder)
	if err != nil {
		h.fail(w, r, "holdings", err)
		return
	}
	if out == nil {
		out = []balancemodels.Balance{}
	}
	writeJSON(w, http.StatusOK, balanceList{Balances: out})
}
