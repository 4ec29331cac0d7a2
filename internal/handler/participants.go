package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	idmodels "tracechain/internal/identity/models"
	"tracechain/internal/topology"
	"tracechain/pkg/domain"
	dErrors "tracechain/pkg/domain-errors"
	"tracechain/pkg/requestcontext"
)

type requestRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type participantList struct {
	Participants []*idmodels.Participant `json:"participants"`
}

func (h *Handler) handleRequestRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req requestRoleRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "request role", err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		h.fail(w, r, "request role", err)
		return
	}
	p, err := h.identity.RequestRole(ctx, requestcontext.Caller(ctx), role)
	if err != nil {
		h.fail(w, r, "request role", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target, err := addressParam(r)
	if err != nil {
		h.fail(w, r, "set status", err)
		return
	}
	var req setStatusRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "set status", err)
		return
	}
	status, err := idmodels.ParseStatus(req.Status)
	if err != nil {
		h.fail(w, r, "set status", err)
		return
	}
	p, err := h.identity.SetStatus(ctx, requestcontext.Caller(ctx), target, status)
	if err != nil {
		h.fail(w, r, "set status", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.identity.Cancel(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.fail(w, r, "cancel registration", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		h.fail(w, r, "get participant", err)
		return
	}
	p, found, err := h.identity.Get(r.Context(), addr)
	if err != nil {
		h.fail(w, r, "get participant", err)
		return
	}
	if !found {
		h.fail(w, r, "get participant", dErrors.New(dErrors.CodeNotRegistered, addr.String()+" is not registered"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleListParticipants lists registrations, optionally filtered by ?status=.
func (h *Handler) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	var filter *idmodels.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := idmodels.ParseStatus(raw)
		if err != nil {
			h.fail(w, r, "list participants", err)
			return
		}
		filter = &status
	}
	out, err := h.identity.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list participants", err)
		return
	}
	if out == nil {
		out = []*idmodels.Participant{}
	}
	writeJSON(w, http.StatusOK, participantList{Participants: out})
}

type recipientRoleResponse struct {
	Sender    domain.Role `json:"sender"`
	Recipient domain.Role `json:"recipient,omitempty"`
	CanSend   bool        `json:"can_send"`
}

func (h *Handler) handleRecipientRole(w http.ResponseWriter, r *http.Request) {
	sender, err := domain.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		h.fail(w, r, "recipient role", err)
		return
	}
	recipient, ok := topology.RecipientRole(sender)
	writeJSON(w, http.StatusOK, recipientRoleResponse{Sender: sender, Recipient: recipient, CanSend: ok})
}
