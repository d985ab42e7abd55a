/*
store.go - Persistence interface for the ledger

PURPOSE:
  Defines the interface between the finance core and the relational store.
  Implementations own SQL and connection handling; the core owns rules.

KEY INTERFACES:
  Reader:  lookups and listings (lock-free, read-committed)
  Writer:  inserts, compare-and-swap updates, balance adjustments
  Store:   Reader + Writer
  TxStore: Store + WithTx for atomic multi-write units

NOT-FOUND CONVENTION:
  Single-entity getters return (nil, nil) when the row does not exist.
  The core turns that into a scoped NotFoundError. Writers that target a
  missing row return an error wrapping ErrNotFound.

COMPARE-AND-SWAP:
  UpdateTransaction and DeleteTransaction take the status the caller read.
  If the row's status changed in between, they return
  ErrConcurrentModification and write nothing. Together with LockTransaction
  this prevents two concurrent MarkPaid calls from applying a delta twice.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:     SQLite (default, tests)
  - store/postgres/postgres.go: PostgreSQL via pgx, row-level locks

SEE ALSO:
  - lifecycle.go: the only caller of the Writer half for transactions
*/
package finance

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// READER
// =============================================================================

type Reader interface {
	GetUser(ctx context.Context, id UserID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetGroup loads the group with its member set.
	GetGroup(ctx context.Context, id GroupID) (*Group, error)
	GetPersonalGroup(ctx context.Context, userID UserID) (*Group, error)
	// ListGroupsForUser returns groups the user belongs to or owns, each once.
	ListGroupsForUser(ctx context.Context, userID UserID) ([]Group, error)
	IsMember(ctx context.Context, groupID GroupID, userID UserID) (bool, error)
	ListMembers(ctx context.Context, groupID GroupID) ([]Member, error)

	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	// Listings are ordered newest first.
	ListTransactionsByGroup(ctx context.Context, groupID GroupID) ([]Transaction, error)
	ListTransactionsByCreator(ctx context.Context, userID UserID) ([]Transaction, error)

	GetBankAccount(ctx context.Context, id AccountID) (*BankAccount, error)
	ListBankAccounts(ctx context.Context, userID UserID, activeOnly bool) ([]BankAccount, error)

	GetUserCategory(ctx context.Context, id CategoryID) (*UserCategory, error)
	GetGroupCategory(ctx context.Context, id CategoryID) (*GroupCategory, error)
	// Category listings are ordered by name.
	ListUserCategories(ctx context.Context, userID UserID) ([]UserCategory, error)
	ListGroupCategories(ctx context.Context, groupID GroupID) ([]GroupCategory, error)

	GetInvitation(ctx context.Context, id InvitationID) (*Invitation, error)
	FindPendingInvitation(ctx context.Context, receiverID UserID, groupID GroupID) (*Invitation, error)
	ListPendingInvitations(ctx context.Context, receiverID UserID) ([]Invitation, error)
}

// =============================================================================
// WRITER
// =============================================================================

type Writer interface {
	// CreateUser sets ID and CreatedAt. Duplicate email => ErrAlreadyExists.
	CreateUser(ctx context.Context, u *User) error
	// CreateGroup inserts the group and the owner's membership.
	CreateGroup(ctx context.Context, g *Group) error
	// AddMember => ErrAlreadyExists if the pair exists.
	AddMember(ctx context.Context, groupID GroupID, userID UserID) error
	RemoveMember(ctx context.Context, groupID GroupID, userID UserID) error

	CreateUserCategories(ctx context.Context, userID UserID, names []string) error
	CreateGroupCategories(ctx context.Context, groupID GroupID, names []string) error
	// CreateGroupCategory => ErrAlreadyExists on a duplicate name in the group.
	CreateGroupCategory(ctx context.Context, c *GroupCategory) error

	CreateBankAccount(ctx context.Context, a *BankAccount) error
	// LockBankAccount reads the account and, inside WithTx, holds it until
	// commit so a funds check and the following adjustment see the same balance.
	LockBankAccount(ctx context.Context, id AccountID) (*BankAccount, error)
	// AdjustBankBalance adds delta (which may be negative) to the stored balance.
	AdjustBankBalance(ctx context.Context, id AccountID, delta decimal.Decimal) error

	CreateInvitation(ctx context.Context, inv *Invitation) error
	UpdateInvitationStatus(ctx context.Context, id InvitationID, status InvitationStatus) error

	InsertTransaction(ctx context.Context, t *Transaction) error
	// LockTransaction reads the row and, inside WithTx, holds it until commit.
	LockTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	UpdateTransaction(ctx context.Context, t Transaction, expected Status) error
	DeleteTransaction(ctx context.Context, id TransactionID, expected Status) error
}

// =============================================================================
// STORE / TXSTORE
// =============================================================================

type Store interface {
	Reader
	Writer
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
