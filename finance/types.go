/*
Package finance provides the transaction-balance consistency core.

PURPOSE:
  Users record INCOME and EXPENSE transactions inside financial groups,
  optionally linked to a category and to one of their bank accounts.
  This package owns the rules that keep a bank account's stored balance
  consistent with the status of the transactions linked to it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: the central entity, with Type and Status
  - BankAccount: carries a running Balance kept in sync by the Engine
  - Group / Member / Invitation: who may act on which transactions
  - CategoryRef: tagged reference to a user- or group-scoped category
  - Principal: the authenticated actor, passed explicitly everywhere

DESIGN PRINCIPLES:
  1. Precision: every amount is a decimal.Decimal, never a float
  2. Explicit actors: no ambient session, every call takes a Principal
  3. One sign convention: SignedDelta (balance.go) is the only place that
     decides whether an amount adds to or subtracts from a balance

SEE ALSO:
  - lifecycle.go: status transitions and balance compensation
  - balance.go: read-side aggregates
  - authz.go: who may do what
  - store.go: persistence interfaces
*/
package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID int64
type GroupID int64
type TransactionID int64
type AccountID int64
type CategoryID int64
type InvitationID int64

// =============================================================================
// ENUMS
// =============================================================================

type TransactionType string

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

type GroupType string

const (
	GroupPersonal GroupType = "PERSONAL"
	GroupShared   GroupType = "SHARED"
)

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationRejected InvitationStatus = "REJECTED"
)

func (s InvitationStatus) Valid() bool {
	return s == InvitationPending || s == InvitationAccepted || s == InvitationRejected
}

// DefaultPaymentMethod is used when a transaction is created without one.
const DefaultPaymentMethod = "PIX"

// =============================================================================
// CATEGORY REFERENCE - tagged variant
// =============================================================================

type CategoryKind string

const (
	CategoryNone  CategoryKind = ""
	CategoryUser  CategoryKind = "user"
	CategoryGroup CategoryKind = "group"
)

// CategoryRef points at exactly one of a UserCategory or a GroupCategory,
// or at nothing. The Kind decides which table resolves the ID.
type CategoryRef struct {
	Kind CategoryKind
	ID   CategoryID
}

func NoCategory() CategoryRef                    { return CategoryRef{} }
func UserCategoryRef(id CategoryID) CategoryRef  { return CategoryRef{Kind: CategoryUser, ID: id} }
func GroupCategoryRef(id CategoryID) CategoryRef { return CategoryRef{Kind: CategoryGroup, ID: id} }

func (c CategoryRef) IsNone() bool { return c.Kind == CategoryNone }

type UserCategory struct {
	ID     CategoryID
	UserID UserID
	Name   string
}

type GroupCategory struct {
	ID      CategoryID
	GroupID GroupID
	Name    string
}

// =============================================================================
// TRANSACTION
// =============================================================================

type Transaction struct {
	ID            TransactionID
	Amount        decimal.Decimal
	Type          TransactionType
	Status        Status
	Description   string
	PaymentMethod string
	CreatedBy     UserID
	GroupID       GroupID
	Category      CategoryRef
	BankAccountID *AccountID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsPaid reports whether the transaction currently sits on the PAID side of
// the PAID boundary.
func (t Transaction) IsPaid() bool { return t.Status == StatusPaid }

// HasBankAccount reports whether a bank account is linked.
func (t Transaction) HasBankAccount() bool { return t.BankAccountID != nil }

// =============================================================================
// BANK ACCOUNT
// =============================================================================

// BankAccount.Balance is authoritative: it already includes the effect of
// every linked PAID transaction. It is never re-derived from history.
type BankAccount struct {
	ID        AccountID
	UserID    UserID
	Name      string
	Bank      string
	Balance   decimal.Decimal
	Active    bool
	CreatedAt time.Time
}

// =============================================================================
// USERS, GROUPS, MEMBERS, INVITATIONS
// =============================================================================

type User struct {
	ID           UserID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Member struct {
	UserID   UserID
	GroupID  GroupID
	JoinedAt time.Time

	// Populated on reads that join users.
	Name  string
	Email string
}

type Group struct {
	ID          GroupID
	Name        string
	Description string
	Type        GroupType
	OwnerID     UserID
	Members     []Member
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasMember reports whether userID is in the loaded member set.
func (g Group) HasMember(userID UserID) bool {
	for _, m := range g.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

type Invitation struct {
	ID         InvitationID
	SenderID   UserID
	ReceiverID UserID
	GroupID    GroupID
	Status     InvitationStatus
	CreatedAt  time.Time

	// Populated on listing reads.
	SenderName  string
	SenderEmail string
	GroupName   string
}

// =============================================================================
// PRINCIPAL - the authenticated actor
// =============================================================================

// Principal is supplied by the identity collaborator. The zero value means
// "no session".
type Principal struct {
	UserID UserID
}

func (p Principal) Authenticated() bool { return p.UserID > 0 }
