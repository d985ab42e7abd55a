/*
handlers.go - HTTP API handlers for the finance ledger

PURPOSE:
  Exposes the finance engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the finance package.

ENDPOINTS:
  Transactions:
    GET    /api/transactions                 Transactions created by the caller
    POST   /api/transactions                 Create (applies PAID immediately)
    GET    /api/transactions/{id}            Read
    PUT    /api/transactions/{id}            Partial edit
    DELETE /api/transactions/{id}            Delete, reversing a PAID effect
    POST   /api/transactions/{id}/pay        Mark paid (funds check)
    DELETE /api/transactions/{id}/pay        Mark pending again
    PUT    /api/transactions/{id}/status     Set any status
    PUT    /api/transactions/{id}/category   Set or clear the category

  Balances:
    GET    /api/balance                      Consolidated balance
    GET    /api/groups/me                    Personal group, cash vs bank

  Groups, invitations, categories and bank accounts live in groups.go.
  Signup and login live in auth_handlers.go.

ARCHITECTURE:
  Handler holds the finance services, all built on one TxStore:
  - Engine:    transaction lifecycle and balance compensation
  - Directory: users, groups, invitations, categories, accounts
  - Balances:  read-only aggregates
  - Auth:      password sessions

REQUEST FLOW:
  1. Principal from the auth middleware
  2. Body validated against its JSON schema (validate.go)
  3. Call into finance
  4. Serialize response envelope
  5. Errors go through writeError (errors.go)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/finance-engine/auth"
	"github.com/warp/finance-engine/finance"
	"github.com/warp/finance-engine/logger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the API needs: the ledger plus housekeeping.
type Store interface {
	finance.TxStore
	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     Store
	Engine    *finance.Engine
	Directory *finance.Directory
	Balances  *finance.BalanceReader
	Auth      *auth.Service
	Issuer    *auth.Issuer

	schemas schemaSet
	log     zerolog.Logger
	now     func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the finance services onto store.
func NewHandler(store Store, issuer *auth.Issuer, log zerolog.Logger) (*Handler, error) {
	schemas, err := loadSchemas()
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}

	dir := finance.NewDirectory(store, log)
	return &Handler{
		Store:     store,
		Engine:    finance.NewEngine(store, log),
		Directory: dir,
		Balances:  finance.NewBalanceReader(store),
		Auth:      auth.NewService(store, dir, issuer, log),
		Issuer:    issuer,
		schemas:   schemas,
		log:       log,
		now:       time.Now,
	}, nil
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// TRANSACTION ENDPOINTS
// =============================================================================

// ListTransactions returns the caller's transactions, newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Engine.ListMine(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, toTransactionDTOs(txs))
}

// CreateTransaction records a transaction. A PAID one moves its bank
// account balance in the same unit of work.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := h.schemas.decode(r, "transaction_create", &req); err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.Engine.Create(r.Context(), auth.PrincipalFrom(r.Context()), req.toInput())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, DataResponse{Data: toTransactionDTO(*t), Message: "transaction created"})
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.Engine.Get(r.Context(), auth.PrincipalFrom(r.Context()), finance.TransactionID(id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: toTransactionDTO(*t)})
}

// UpdateTransaction applies a partial edit. Changing amount, type or bank
// account of a PAID transaction moves the old effect to the new one.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req UpdateTransactionRequest
	if err := h.schemas.decode(r, "transaction_update", &req); err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.Engine.Update(r.Context(), auth.PrincipalFrom(r.Context()), finance.TransactionID(id), req.toInput())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: toTransactionDTO(*t), Message: "transaction updated"})
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Engine.Delete(r.Context(), auth.PrincipalFrom(r.Context()), finance.TransactionID(id)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: nil, Message: "transaction deleted"})
}

// PayTransaction marks a transaction PAID. Insufficient funds answer 400
// with the account's balance and the required amount.
func (h *Handler) PayTransaction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.MarkPaid, "transaction marked as paid")
}

// UnpayTransaction moves a PAID transaction back to PENDING.
func (h *Handler) UnpayTransaction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.UnmarkPaid, "transaction marked as pending")
}

func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(context.Context, finance.Principal, finance.TransactionID) (*finance.Transaction, error),
	message string,
) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := fn(r.Context(), auth.PrincipalFrom(r.Context()), finance.TransactionID(id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: toTransactionDTO(*t), Message: message})
}

func (h *Handler) UpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req UpdateStatusRequest
	if err := h.schemas.decode(r, "transaction_status", &req); err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.Engine.UpdateStatus(r.Context(), auth.PrincipalFrom(r.Context()), finance.TransactionID(id), finance.Status(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: toTransactionDTO(*t), Message: "status updated"})
}

// UpdateTransactionCategory sets the category; {"category": null} clears it.
func (h *Handler) UpdateTransactionCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req UpdateCategoryRequest
	if err := h.schemas.decode(r, "transaction_category", &req); err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.Engine.UpdateCategory(r.Context(), auth.PrincipalFrom(r.Context()), finance.TransactionID(id), req.Category.toRef())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: toTransactionDTO(*t), Message: "category updated"})
}

// =============================================================================
// BALANCE ENDPOINTS
// =============================================================================

// GetBalance returns the consolidated balance across groups and accounts.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	c, err := h.Balances.Consolidated(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: toConsolidatedDTO(c, h.now())})
}

// GetPersonalGroup returns the personal group with its cash/bank split.
func (h *Handler) GetPersonalGroup(w http.ResponseWriter, r *http.Request) {
	pb, err := h.Balances.Personal(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: toPersonalBalanceDTO(pb)})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	writeJSON(w, http.StatusOK, DataResponse{Data: items, Count: &n})
}

// parseID reads a positive integer URL parameter.
func parseID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, (&finance.ValidationError{}).Add(name, "must be a positive integer")
	}
	return id, nil
}
