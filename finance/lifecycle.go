/*
lifecycle.go - Transaction Lifecycle Engine

PURPOSE:
  Mediates every state-affecting mutation of a Transaction and keeps the
  linked BankAccount's stored balance consistent with the transaction's
  status.

THE PAID BOUNDARY:
  Status may move from any state to any other. Only crossing the PAID
  boundary touches a balance:

    non-PAID -> PAID   apply  SignedDelta(t)
    PAID -> non-PAID   apply -SignedDelta(t)
    PAID -> PAID       nothing
    non-PAID -> other  nothing

  For any sequence of transitions the net stored-balance effect is
  SignedDelta(t) if the final status is PAID and zero otherwise.

COMPENSATION:
  Every write goes through compensate(before, after), which reverses the
  effect of the old row and applies the effect of the new row, netted per
  account. Create passes before = nil and Delete passes after = nil. A full
  edit that changes amount, type or account while PAID is therefore handled
  by the same code as a plain status flip.

ATOMICITY AND CONCURRENCY:
  Each operation is one TxStore.WithTx unit:

    1. LockTransaction(id)            row held until commit
    2. Guard.AuthorizeTransaction     fresh group + member set
    3. UpdateTransaction(after, before.Status)   compare-and-swap
    4. AdjustBankBalance per account  only when the net is non-zero

  If any step fails the whole unit rolls back; status and balance are never
  observed half-applied. A compare-and-swap miss returns
  ErrConcurrentModification. Nothing here retries.

USAGE:
  engine := finance.NewEngine(store, log)
  tx, err := engine.MarkPaid(ctx, principal, id)

SEE ALSO:
  - balance.go: SignedDelta and the read-side aggregates
  - authz.go: read vs. mutate policy
*/
package finance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store TxStore
	guard Guard
	log   zerolog.Logger
	now   func() time.Time
}

func NewEngine(store TxStore, log zerolog.Logger) *Engine {
	return &Engine{
		store: store,
		log:   log.With().Str("component", "lifecycle").Logger(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// INPUTS
// =============================================================================

// CreateTransactionInput is validated before any store access.
type CreateTransactionInput struct {
	Amount        decimal.Decimal
	Type          TransactionType
	Description   string
	PaymentMethod string // DefaultPaymentMethod when empty
	GroupID       GroupID
	Category      CategoryRef
	BankAccountID *AccountID
	Status        Status // StatusPending when empty
}

func (in CreateTransactionInput) Validate() error {
	v := &ValidationError{}
	validateAmount(v, in.Amount)
	if !in.Type.Valid() {
		v.Add("type", "must be INCOME or EXPENSE")
	}
	if strings.TrimSpace(in.Description) == "" {
		v.Add("description", "is required")
	}
	if in.GroupID <= 0 {
		v.Add("groupId", "is required")
	}
	if in.Status != "" && !in.Status.Valid() {
		v.Add("status", "must be PENDING, PAID, OVERDUE or CANCELLED")
	}
	validateCategoryRef(v, in.Category)
	return v.OrNil()
}

// UpdateTransactionInput carries a partial edit. Nil fields are left alone.
// Category set to NoCategory() clears it; SetBankAccount with a nil
// BankAccountID unlinks the account.
type UpdateTransactionInput struct {
	Status        *Status
	Category      *CategoryRef
	Description   *string
	PaymentMethod *string
	Amount        *decimal.Decimal
	Type          *TransactionType

	SetBankAccount bool
	BankAccountID  *AccountID
}

func (in UpdateTransactionInput) Validate() error {
	v := &ValidationError{}
	if in.Amount != nil {
		validateAmount(v, *in.Amount)
	}
	if in.Type != nil && !in.Type.Valid() {
		v.Add("type", "must be INCOME or EXPENSE")
	}
	if in.Status != nil && !in.Status.Valid() {
		v.Add("status", "must be PENDING, PAID, OVERDUE or CANCELLED")
	}
	if in.Description != nil && strings.TrimSpace(*in.Description) == "" {
		v.Add("description", "must not be empty")
	}
	if in.Category != nil {
		validateCategoryRef(v, *in.Category)
	}
	return v.OrNil()
}

// validateAmount requires a positive amount with at most two decimal places.
func validateAmount(v *ValidationError, amount decimal.Decimal) {
	switch {
	case !amount.IsPositive():
		v.Add("amount", "must be greater than zero")
	case !amount.Equal(amount.Round(2)):
		v.Add("amount", "must have at most two decimal places")
	}
}

func validateCategoryRef(v *ValidationError, c CategoryRef) {
	switch c.Kind {
	case CategoryNone:
	case CategoryUser, CategoryGroup:
		if c.ID <= 0 {
			v.Add("categoryId", "must be a positive id")
		}
	default:
		v.Add("categoryKind", "must be user or group")
	}
}

// =============================================================================
// READS
// =============================================================================

// Get returns a transaction the principal may read.
func (e *Engine) Get(ctx context.Context, p Principal, id TransactionID) (*Transaction, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}

	t, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if t == nil {
		return nil, notFound("transaction", int64(id))
	}

	g, err := e.store.GetGroup(ctx, t.GroupID)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if g == nil {
		return nil, notFound("transaction", int64(id))
	}

	if err := e.guard.AuthorizeTransaction(p, *t, *g, ActionRead); err != nil {
		return nil, err
	}
	return t, nil
}

// ListMine returns the principal's own transactions, newest first.
func (e *Engine) ListMine(ctx context.Context, p Principal) ([]Transaction, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}
	txs, err := e.store.ListTransactionsByCreator(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// =============================================================================
// CREATE
// =============================================================================

// Create persists a transaction in a group the principal belongs to. A
// transaction created directly as PAID with a bank account moves the
// account balance in the same unit.
func (e *Engine) Create(ctx context.Context, p Principal, in CreateTransactionInput) (*Transaction, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = StatusPending
	}
	method := strings.TrimSpace(in.PaymentMethod)
	if method == "" {
		method = DefaultPaymentMethod
	}

	var created Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		member, err := s.IsMember(ctx, in.GroupID, p.UserID)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if !member {
			return notFound("group", int64(in.GroupID))
		}

		if err := resolveCategory(ctx, s, p, in.GroupID, in.Category); err != nil {
			return err
		}
		if err := resolveBankAccount(ctx, s, p, in.BankAccountID); err != nil {
			return err
		}

		now := e.now()
		created = Transaction{
			Amount:        in.Amount,
			Type:          in.Type,
			Status:        status,
			Description:   strings.TrimSpace(in.Description),
			PaymentMethod: method,
			CreatedBy:     p.UserID,
			GroupID:       in.GroupID,
			Category:      in.Category,
			BankAccountID: in.BankAccountID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.InsertTransaction(ctx, &created); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return e.compensate(ctx, s, nil, &created)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Int64("transaction_id", int64(created.ID)).
		Int64("user_id", int64(p.UserID)).
		Int64("group_id", int64(created.GroupID)).
		Str("status", string(created.Status)).
		Msg("transaction created")
	return &created, nil
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

// MarkPaid moves a non-PAID transaction to PAID. An EXPENSE linked to a bank
// account needs the account balance to cover the amount.
func (e *Engine) MarkPaid(ctx context.Context, p Principal, id TransactionID) (*Transaction, error) {
	var after Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		before, err := e.loadForMutation(ctx, s, p, id)
		if err != nil {
			return err
		}
		if before.IsPaid() {
			return &ConflictError{Reason: "transaction is already paid"}
		}
		if err := checkFunds(ctx, s, *before); err != nil {
			return err
		}

		after = *before
		after.Status = StatusPaid
		after.UpdatedAt = e.now()
		return e.write(ctx, s, *before, after)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Int64("transaction_id", int64(id)).
		Int64("user_id", int64(p.UserID)).
		Msg("transaction marked as paid")
	return &after, nil
}

// MarkPending moves a transaction back to PENDING, reversing the balance
// effect if it was PAID. Already PENDING is a no-op.
func (e *Engine) MarkPending(ctx context.Context, p Principal, id TransactionID) (*Transaction, error) {
	return e.setStatus(ctx, p, id, StatusPending, "transaction marked as pending")
}

// UnmarkPaid is MarkPending under the name the pay endpoint uses.
func (e *Engine) UnmarkPaid(ctx context.Context, p Principal, id TransactionID) (*Transaction, error) {
	return e.MarkPending(ctx, p, id)
}

// UpdateStatus moves a transaction to any status. Only crossing the PAID
// boundary changes a balance.
func (e *Engine) UpdateStatus(ctx context.Context, p Principal, id TransactionID, status Status) (*Transaction, error) {
	if !status.Valid() {
		return nil, (&ValidationError{}).Add("status", "must be PENDING, PAID, OVERDUE or CANCELLED")
	}
	return e.setStatus(ctx, p, id, status, "transaction status updated")
}

func (e *Engine) setStatus(ctx context.Context, p Principal, id TransactionID, status Status, msg string) (*Transaction, error) {
	var after Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		before, err := e.loadForMutation(ctx, s, p, id)
		if err != nil {
			return err
		}
		after = *before
		if before.Status == status {
			return nil
		}

		after.Status = status
		after.UpdatedAt = e.now()
		return e.write(ctx, s, *before, after)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Int64("transaction_id", int64(id)).
		Int64("user_id", int64(p.UserID)).
		Str("status", string(after.Status)).
		Msg(msg)
	return &after, nil
}

// =============================================================================
// EDITS
// =============================================================================

// UpdateCategory reassigns or clears the category. No balance effect.
func (e *Engine) UpdateCategory(ctx context.Context, p Principal, id TransactionID, ref CategoryRef) (*Transaction, error) {
	return e.Update(ctx, p, id, UpdateTransactionInput{Category: &ref})
}

// Update applies a partial edit. The balance moves from the effect of the
// old row to the effect of the new one, so changing amount, type or account
// of a PAID transaction is compensated exactly once.
func (e *Engine) Update(ctx context.Context, p Principal, id TransactionID, in UpdateTransactionInput) (*Transaction, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var after Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		before, err := e.loadForMutation(ctx, s, p, id)
		if err != nil {
			return err
		}

		after = *before
		if in.Status != nil {
			after.Status = *in.Status
		}
		if in.Amount != nil {
			after.Amount = *in.Amount
		}
		if in.Type != nil {
			after.Type = *in.Type
		}
		if in.Description != nil {
			after.Description = strings.TrimSpace(*in.Description)
		}
		if in.PaymentMethod != nil {
			after.PaymentMethod = strings.TrimSpace(*in.PaymentMethod)
			if after.PaymentMethod == "" {
				after.PaymentMethod = DefaultPaymentMethod
			}
		}
		if in.Category != nil {
			if err := resolveCategory(ctx, s, p, before.GroupID, *in.Category); err != nil {
				return err
			}
			after.Category = *in.Category
		}
		if in.SetBankAccount {
			if !sameAccount(before.BankAccountID, in.BankAccountID) {
				if err := resolveBankAccount(ctx, s, p, in.BankAccountID); err != nil {
					return err
				}
			}
			after.BankAccountID = in.BankAccountID
		}

		after.UpdatedAt = e.now()
		return e.write(ctx, s, *before, after)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Int64("transaction_id", int64(id)).
		Int64("user_id", int64(p.UserID)).
		Msg("transaction updated")
	return &after, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a transaction. A PAID transaction's balance effect is
// reversed in the same unit.
func (e *Engine) Delete(ctx context.Context, p Principal, id TransactionID) error {
	err := e.store.WithTx(ctx, func(s Store) error {
		before, err := e.loadForMutation(ctx, s, p, id)
		if err != nil {
			return err
		}
		if err := s.DeleteTransaction(ctx, id, before.Status); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return e.compensate(ctx, s, before, nil)
	})
	if err != nil {
		return err
	}

	e.log.Info().
		Int64("transaction_id", int64(id)).
		Int64("user_id", int64(p.UserID)).
		Msg("transaction deleted")
	return nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// loadForMutation locks the row, loads its group fresh and checks that the
// principal may mutate it.
func (e *Engine) loadForMutation(ctx context.Context, s Store, p Principal, id TransactionID) (*Transaction, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}

	t, err := s.LockTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock transaction: %w", err)
	}
	if t == nil {
		return nil, notFound("transaction", int64(id))
	}

	g, err := s.GetGroup(ctx, t.GroupID)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if g == nil {
		return nil, notFound("transaction", int64(id))
	}

	if err := e.guard.AuthorizeTransaction(p, *t, *g, ActionMutate); err != nil {
		return nil, err
	}
	return t, nil
}

// write is the compare-and-swap update followed by compensation.
func (e *Engine) write(ctx context.Context, s Store, before, after Transaction) error {
	if err := s.UpdateTransaction(ctx, after, before.Status); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return e.compensate(ctx, s, &before, &after)
}

// compensate moves account balances from the effect of before to the effect
// of after. Either side may be nil.
func (e *Engine) compensate(ctx context.Context, s Store, before, after *Transaction) error {
	type entry struct {
		id    AccountID
		delta decimal.Decimal
	}
	var net []entry
	add := func(id AccountID, d decimal.Decimal) {
		for i := range net {
			if net[i].id == id {
				net[i].delta = net[i].delta.Add(d)
				return
			}
		}
		net = append(net, entry{id: id, delta: d})
	}

	if id, d, ok := paidEffect(before); ok {
		add(id, d.Neg())
	}
	if id, d, ok := paidEffect(after); ok {
		add(id, d)
	}

	for _, n := range net {
		if n.delta.IsZero() {
			continue
		}
		if err := s.AdjustBankBalance(ctx, n.id, n.delta); err != nil {
			return fmt.Errorf("adjust balance of account %d: %w", n.id, err)
		}
		e.log.Debug().
			Int64("account_id", int64(n.id)).
			Str("delta", n.delta.StringFixed(2)).
			Msg("bank balance adjusted")
	}
	return nil
}

// paidEffect returns the account and signed amount a transaction holds on
// that account's balance, if any.
func paidEffect(t *Transaction) (AccountID, decimal.Decimal, bool) {
	if t == nil || !t.IsPaid() || !t.HasBankAccount() {
		return 0, decimal.Zero, false
	}
	return *t.BankAccountID, SignedDelta(*t), true
}

// checkFunds rejects paying an EXPENSE larger than the linked balance.
func checkFunds(ctx context.Context, s Store, t Transaction) error {
	if t.Type != Expense || !t.HasBankAccount() {
		return nil
	}

	acct, err := s.LockBankAccount(ctx, *t.BankAccountID)
	if err != nil {
		return fmt.Errorf("lock bank account: %w", err)
	}
	if acct == nil {
		return notFound("bank account", int64(*t.BankAccountID))
	}

	if acct.Balance.LessThan(t.Amount) {
		return &InsufficientFundsError{
			AccountID:      acct.ID,
			AccountName:    acct.Name,
			CurrentBalance: acct.Balance,
			RequiredAmount: t.Amount,
		}
	}
	return nil
}

// resolveCategory checks that ref points at a category the principal may
// use in groupID.
func resolveCategory(ctx context.Context, s Store, p Principal, groupID GroupID, ref CategoryRef) error {
	switch ref.Kind {
	case CategoryNone:
		return nil

	case CategoryUser:
		c, err := s.GetUserCategory(ctx, ref.ID)
		if err != nil {
			return fmt.Errorf("get user category: %w", err)
		}
		if c == nil || c.UserID != p.UserID {
			return notFound("category", int64(ref.ID))
		}
		return nil

	case CategoryGroup:
		c, err := s.GetGroupCategory(ctx, ref.ID)
		if err != nil {
			return fmt.Errorf("get group category: %w", err)
		}
		if c == nil || c.GroupID != groupID {
			return notFound("category", int64(ref.ID))
		}
		return nil
	}

	return (&ValidationError{}).Add("categoryKind", "must be user or group")
}

// resolveBankAccount checks that id, when set, is an active account owned by
// the principal.
func resolveBankAccount(ctx context.Context, s Store, p Principal, id *AccountID) error {
	if id == nil {
		return nil
	}
	a, err := s.GetBankAccount(ctx, *id)
	if err != nil {
		return fmt.Errorf("get bank account: %w", err)
	}
	if a == nil || !a.Active || a.UserID != p.UserID {
		return notFound("bank account", int64(*id))
	}
	return nil
}

func sameAccount(a, b *AccountID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
