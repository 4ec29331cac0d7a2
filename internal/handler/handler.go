// Package handler is the JSON/HTTP adapter over the ledger services. It holds
// no business rules: every request is decoded, handed to a service with the
// authenticated caller, and the result or coded error is written back.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	balancemodels "tracechain/internal/balance/models"
	catalogmodels "tracechain/internal/catalog/models"
	idmodels "tracechain/internal/identity/models"
	transfermodels "tracechain/internal/transfer/models"
	"tracechain/pkg/domain"
	dErrors "tracechain/pkg/domain-errors"
	audit "tracechain/pkg/platform/audit"
	"tracechain/pkg/requestcontext"
)

type IdentityService interface {
	RequestRole(ctx context.Context, addr domain.Address, role domain.Role) (*idmodels.Participant, error)
	SetStatus(ctx context.Context, admin, target domain.Address, status idmodels.Status) (*idmodels.Participant, error)
	Cancel(ctx context.Context, addr domain.Address) (*idmodels.Participant, error)
	Get(ctx context.Context, addr domain.Address) (*idmodels.Participant, bool, error)
	List(ctx context.Context, status *idmodels.Status) ([]*idmodels.Participant, error)
	IsAdmin(ctx context.Context, addr domain.Address) bool
}

type CatalogService interface {
	CreateToken(ctx context.Context, creator domain.Address, req catalogmodels.CreateTokenRequest) (*catalogmodels.Token, error)
	GetToken(ctx context.Context, id domain.TokenID) (*catalogmodels.Token, error)
	Lineage(ctx context.Context, id domain.TokenID) ([]*catalogmodels.Token, error)
	ListByCreator(ctx context.Context, creator domain.Address) ([]*catalogmodels.Token, error)
}

type BalanceService interface {
	Get(ctx context.Context, token domain.TokenID, holder domain.Address) (balancemodels.Balance, error)
	Holdings(ctx context.Context, holder domain.Address) ([]balancemodels.Balance, error)
	Snapshot(ctx context.Context, token domain.TokenID) ([]balancemodels.Balance, error)
}

type TransferService interface {
	Propose(ctx context.Context, from, to domain.Address, token domain.TokenID, amount int64) (*transfermodels.Transfer, error)
	Accept(ctx context.Context, caller domain.Address, id domain.TransferID) (*transfermodels.Transfer, error)
	Reject(ctx context.Context, caller domain.Address, id domain.TransferID) (*transfermodels.Transfer, error)
	Get(ctx context.Context, id domain.TransferID) (*transfermodels.Transfer, error)
	ListFor(ctx context.Context, addr domain.Address) iter.Seq2[*transfermodels.Transfer, error]
}

// AuditLister answers "what happened to me" queries and the admin's
// recent-activity feed.
type AuditLister interface {
	List(ctx context.Context, addr domain.Address) ([]audit.Event, error)
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

type Handler struct {
	identity  IdentityService
	catalog   CatalogService
	balances  BalanceService
	transfers TransferService
	events    AuditLister
	logger    *slog.Logger
	validate  *validator.Validate
}

func New(identity IdentityService, catalog CatalogService, balances BalanceService, transfers TransferService, events AuditLister, logger *slog.Logger) *Handler {
	return &Handler{
		identity:  identity,
		catalog:   catalog,
		balances:  balances,
		transfers: transfers,
		events:    events,
		logger:    logger,
		validate:  newValidator(),
	}
}

// Register mounts the ledger routes. The router must already resolve the
// caller (middleware.RequireCaller).
func (h *Handler) Register(r chi.Router) {
	r.Post("/participants", h.handleRequestRole)
	r.Get("/participants", h.handleListParticipants)
	r.Get("/participants/{address}", h.handleGetParticipant)
	r.Put("/participants/{address}/status", h.handleSetStatus)
	r.Get("/participants/{address}/tokens", h.handleListByCreator)
	r.Get("/participants/{address}/holdings", h.handleHoldings)

	r.Post("/tokens", h.handleCreateToken)
	r.Get("/tokens/{id}", h.handleGetToken)
	r.Get("/tokens/{id}/lineage", h.handleLineage)
	r.Get("/tokens/{id}/holders", h.handleSnapshot)
	r.Get("/tokens/{id}/balances/{address}", h.handleGetBalance)

	r.Post("/transfers", h.handlePropose)
	r.Get("/transfers/{id}", h.handleGetTransfer)
	r.Post("/transfers/{id}/accept", h.handleAccept)
	r.Post("/transfers/{id}/reject", h.handleReject)

	r.Delete("/me/registration", h.handleCancel)
	r.Get("/me/transfers", h.handleMyTransfers)
	r.Get("/me/events", h.handleMyEvents)
	r.Get("/events", h.handleRecentEvents)

	r.Get("/roles/{role}/recipient", h.handleRecipientRole)
}

// decode reads a JSON body into dst and runs struct validation.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return dErrors.New(dErrors.CodeBadRequest, verrs[0].Field()+" failed "+verrs[0].Tag()+" validation")
		}
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fail logs and writes err. Domain rejections are expected traffic and log at
// info; anything uncoded or internal logs at error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeInvariantViolation {
		h.logger.ErrorContext(ctx, op+" failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		h.logger.InfoContext(ctx, op+" rejected",
			"code", string(code),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	writeError(w, err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// writeError maps a coded error to its HTTP status. Internal causes are never
// echoed to the client.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)
	resp := errorResponse{Error: string(code)}
	var de *dErrors.Error
	if status < http.StatusInternalServerError && errors.As(err, &de) {
		resp.ErrorDescription = de.Message
	}
	writeJSON(w, status, resp)
}

// StatusFor is the HTTP status a domain error code is reported with.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeInvalidRole,
		dErrors.CodeInvalidSupply, dErrors.CodeInvalidAmount, dErrors.CodeSelfTransfer:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeNotAdmin, dErrors.CodeNotApproved,
		dErrors.CodeNotRecipient, dErrors.CodeRoleNotAuthorized:
		return http.StatusForbidden
	case dErrors.CodeNotRegistered, dErrors.CodeTokenNotFound,
		dErrors.CodeParentNotFound, dErrors.CodeTransferNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeAlreadyRegistered, dErrors.CodeInvalidTransition,
		dErrors.CodeNotPending, dErrors.CodeInsufficientBalance:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func addressParam(r *http.Request) (domain.Address, error) {
	return domain.ParseAddress(chi.URLParam(r, "address"))
}

func tokenParam(r *http.Request) (domain.TokenID, error) {
	return domain.ParseTokenID(chi.URLParam(r, "id"))
}

func transferParam(r *http.Request) (domain.TransferID, error) {
	return domain.ParseTransferID(chi.URLParam(r, "id"))
}
