package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	transfermodels "tracechain/internal/transfer/models"
	"tracechain/pkg/domain"
	dErrors "tracechain/pkg/domain-errors"
	audit "tracechain/pkg/platform/audit"
	"tracechain/pkg/requestcontext"
)

type proposeRequest struct {
	To      string  `json:"to" validate:"required"`
	TokenID *uint64 `json:"token_id" validate:"required"`
	Amount  *int64  `json:"amount" validate:"required"`
}

type transferList struct {
	Transfers []*transfermodels.Transfer `json:"transfers"`
}

type eventResponse struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Action       audit.Action   `json:"action"`
	Actor        domain.Address `json:"actor"`
	Counterparty domain.Address `json:"counterparty,omitempty"`
	TokenID      domain.TokenID `json:"token_id,omitempty"`
	TransferID   uint64         `json:"transfer_id,omitempty"`
	Amount       int64          `json:"amount,omitempty"`
	Detail       string         `json:"detail,omitempty"`
}

type eventList struct {
	Events []eventResponse `json:"events"`
}

func (h *Handler) handlePropose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req proposeRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "propose transfer", err)
		return
	}
	to, err := domain.ParseAddress(req.To)
	if err != nil {
		h.fail(w, r, "propose transfer", err)
		return
	}
	t, err := h.transfers.Propose(ctx, requestcontext.Caller(ctx), to, domain.TokenID(*req.TokenID), *req.Amount)
	if err != nil {
		h.fail(w, r, "propose transfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, "accept transfer", h.transfers.Accept)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, "reject transfer", h.transfers.Reject)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, caller domain.Address, id domain.TransferID) (*transfermodels.Transfer, error)) {
	ctx := r.Context()
	id, err := transferParam(r)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	t, err := fn(ctx, requestcontext.Caller(ctx), id)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := transferParam(r)
	if err != nil {
		h.fail(w, r, "get transfer", err)
		return
	}
	t, err := h.transfers.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleMyTransfers lists every transfer the caller sent or received.
func (h *Handler) handleMyTransfers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := []*transfermodels.Transfer{}
	for t, err := range h.transfers.ListFor(ctx, requestcontext.Caller(ctx)) {
		if err != nil {
			h.fail(w, r, "list transfers", err)
			return
		}
		out = append(out, t)
	}
	writeJSON(w, http.StatusOK, transferList{Transfers: out})
}

func (h *Handler) handleMyEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := h.events.List(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.fail(w, r, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventList(events))
}

const defaultRecentEvents = 50

// handleRecentEvents is the admin's activity feed, newest first. ?limit=
// defaults to 50.
func (h *Handler) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.identity.IsAdmin(ctx, requestcontext.Caller(ctx)) {
		h.fail(w, r, "recent events", dErrors.New(dErrors.CodeNotAdmin, "caller is not the admin"))
		return
	}
	limit := defaultRecentEvents
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.fail(w, r, "recent events", dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	events, err := h.events.Recent(ctx, limit)
	if err != nil {
		h.fail(w, r, "recent events", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventList(events))
}

func toEventList(events []audit.Event) eventList {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:           e.ID.String(),
			Timestamp:    e.Timestamp,
			Action:       e.Action,
			Actor:        e.Actor,
			Counterparty: e.Counterparty,
			TokenID:      e.TokenID,
			TransferID:   uint64(e.TransferID),
			Amount:       e.Amount,
			Detail:       e.Detail,
		})
	}
	return eventList{Events: out}
}
