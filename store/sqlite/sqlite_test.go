package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-engine/finance"
	"github.com/warp/finance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedUser(t *testing.T, store *sqlite.Store, email string) finance.User {
	u := finance.User{Name: email, Email: email, PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateUser(context.Background(), &u))
	return u
}

func seedGroup(t *testing.T, store *sqlite.Store, owner finance.UserID, typ finance.GroupType) finance.Group {
	now := time.Now().UTC()
	g := finance.Group{Name: "g", Type: typ, OwnerID: owner, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateGroup(context.Background(), &g))
	return g
}

func seedAccount(t *testing.T, store *sqlite.Store, owner finance.UserID, balance string) finance.BankAccount {
	a := finance.BankAccount{
		UserID:    owner,
		Name:      "Conta",
		Bank:      "Banco",
		Balance:   decimal.RequireFromString(balance),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateBankAccount(context.Background(), &a))
	return a
}

func seedTransaction(t *testing.T, store *sqlite.Store, u finance.UserID, g finance.GroupID, status finance.Status) finance.Transaction {
	now := time.Now().UTC()
	tx := finance.Transaction{
		Amount:        decimal.RequireFromString("12.34"),
		Type:          finance.Expense,
		Status:        status,
		Description:   "lunch",
		PaymentMethod: finance.DefaultPaymentMethod,
		CreatedBy:     u,
		GroupID:       g,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, store.InsertTransaction(context.Background(), &tx))
	return tx
}

// =============================================================================
// USERS AND GROUPS
// =============================================================================

func TestStore_CreateUser_DuplicateEmail(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, "ana@example.com")

	dup := finance.User{Name: "Ana 2", Email: "ana@example.com", PasswordHash: "x", CreatedAt: time.Now()}
	err := store.CreateUser(context.Background(), &dup)

	assert.ErrorIs(t, err, finance.ErrAlreadyExists)
}

func TestStore_GetUser_Missing(t *testing.T) {
	store := newTestStore(t)

	u, err := store.GetUser(context.Background(), 42)

	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestStore_CreateGroup_AddsOwnerAsMember(t *testing.T) {
	// GIVEN: A new shared group
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner@example.com")

	g := seedGroup(t, store, owner.ID, finance.GroupShared)

	// THEN: The owner is a member and the member row carries the user's name
	loaded, err := store.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Members, 1)
	assert.Equal(t, owner.ID, loaded.Members[0].UserID)
	assert.Equal(t, owner.Email, loaded.Members[0].Email)

	member, err := store.IsMember(ctx, g.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, member)
}

func TestStore_OnePersonalGroupPerOwner(t *testing.T) {
	store := newTestStore(t)
	owner := seedUser(t, store, "p@example.com")
	seedGroup(t, store, owner.ID, finance.GroupPersonal)

	now := time.Now().UTC()
	second := finance.Group{Name: "again", Type: finance.GroupPersonal, OwnerID: owner.ID, CreatedAt: now, UpdatedAt: now}
	err := store.CreateGroup(context.Background(), &second)

	assert.ErrorIs(t, err, finance.ErrAlreadyExists)
}

func TestStore_ListGroupsForUser_Deduplicated(t *testing.T) {
	// GIVEN: A user who owns one group and is a member of another
	store := newTestStore(t)
	ctx := context.Background()
	a := seedUser(t, store, "a@example.com")
	b := seedUser(t, store, "b@example.com")

	own := seedGroup(t, store, a.ID, finance.GroupShared)
	other := seedGroup(t, store, b.ID, finance.GroupShared)
	require.NoError(t, store.AddMember(ctx, other.ID, a.ID))

	// WHEN: Listing a's groups
	groups, err := store.ListGroupsForUser(ctx, a.ID)

	// THEN: Each group appears once even though a owns and belongs to `own`
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, own.ID, groups[0].ID)
	assert.Equal(t, other.ID, groups[1].ID)
	assert.Len(t, groups[1].Members, 2)
}

func TestStore_AddMember_Duplicate(t *testing.T) {
	store := newTestStore(t)
	owner := seedUser(t, store, "o@example.com")
	g := seedGroup(t, store, owner.ID, finance.GroupShared)

	err := store.AddMember(context.Background(), g.ID, owner.ID)

	assert.ErrorIs(t, err, finance.ErrAlreadyExists)
}

func TestStore_RemoveMember(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "o@example.com")
	guest := seedUser(t, store, "g@example.com")
	g := seedGroup(t, store, owner.ID, finance.GroupShared)
	require.NoError(t, store.AddMember(ctx, g.ID, guest.ID))

	require.NoError(t, store.RemoveMember(ctx, g.ID, guest.ID))

	member, err := store.IsMember(ctx, g.ID, guest.ID)
	require.NoError(t, err)
	assert.False(t, member)
	assert.ErrorIs(t, store.RemoveMember(ctx, g.ID, guest.ID), finance.ErrNotFound)
}

// =============================================================================
// CATEGORIES
// =============================================================================

func TestStore_GroupCategory_UniqueNamePerGroup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "o@example.com")
	g := seedGroup(t, store, owner.ID, finance.GroupShared)

	require.NoError(t, store.CreateGroupCategories(ctx, g.ID, []string{"Pets", "Moradia"}))

	dup := finance.GroupCategory{GroupID: g.ID, Name: "Pets"}
	assert.ErrorIs(t, store.CreateGroupCategory(ctx, &dup), finance.ErrAlreadyExists)

	cats, err := store.ListGroupCategories(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Moradia", cats[0].Name, "ordered by name")
}

// =============================================================================
// BANK ACCOUNTS
// =============================================================================

func TestStore_AdjustBankBalance_ExactDecimal(t *testing.T) {
	// GIVEN: An account at 0.10
	store := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, store, "u@example.com")
	a := seedAccount(t, store, u.ID, "0.10")

	// WHEN: Adding 0.20 three times and subtracting 0.30
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AdjustBankBalance(ctx, a.ID, decimal.RequireFromString("0.20")))
	}
	require.NoError(t, store.AdjustBankBalance(ctx, a.ID, decimal.RequireFromString("-0.30")))

	// THEN: No floating-point drift
	loaded, err := store.GetBankAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.40").Equal(loaded.Balance), "got %s", loaded.Balance)
}

func TestStore_AdjustBankBalance_MissingAccount(t *testing.T) {
	store := newTestStore(t)

	err := store.AdjustBankBalance(context.Background(), 99, decimal.NewFromInt(1))

	assert.ErrorIs(t, err, finance.ErrNotFound)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_Transaction_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, store, "u@example.com")
	g := seedGroup(t, store, u.ID, finance.GroupShared)
	a := seedAccount(t, store, u.ID, "100")
	require.NoError(t, store.CreateGroupCategories(ctx, g.ID, []string{"Pets"}))
	cats, err := store.ListGroupCategories(ctx, g.ID)
	require.NoError(t, err)

	tx := seedTransaction(t, store, u.ID, g.ID, finance.StatusPending)
	tx.Category = finance.GroupCategoryRef(cats[0].ID)
	tx.BankAccountID = &a.ID
	require.NoError(t, store.UpdateTransaction(ctx, tx, finance.StatusPending))

	loaded, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, tx.Amount.Equal(loaded.Amount))
	assert.Equal(t, finance.GroupCategoryRef(cats[0].ID), loaded.Category)
	require.NotNil(t, loaded.BankAccountID)
	assert.Equal(t, a.ID, *loaded.BankAccountID)
}

func TestStore_CorruptTimestamp_IsAnError(t *testing.T) {
	// GIVEN: A file database whose rows carry an unparseable timestamp
	path := filepath.Join(t.TempDir(), "finance.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	u := seedUser(t, store, "u@example.com")
	g := seedGroup(t, store, u.ID, finance.GroupShared)
	tx := seedTransaction(t, store, u.ID, g.ID, finance.StatusPending)

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.ExecContext(ctx, `UPDATE users SET created_at = 'yesterday' WHERE id = ?`, u.ID)
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, `UPDATE transactions SET updated_at = 'yesterday' WHERE id = ?`, tx.ID)
	require.NoError(t, err)

	// WHEN / THEN: Reads fail instead of returning a zero time
	_, err = store.GetUser(ctx, u.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt timestamp")

	_, err = store.GetTransaction(ctx, tx.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt timestamp")
}

func TestStore_UpdateTransaction_CompareAndSwap(t *testing.T) {
	// GIVEN: A PENDING transaction
	store := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, store, "u@example.com")
	g := seedGroup(t, store, u.ID, finance.GroupShared)
	tx := seedTransaction(t, store, u.ID, g.ID, finance.StatusPending)

	// WHEN: One writer moves it to PAID
	paid := tx
	paid.Status = finance.StatusPaid
	require.NoError(t, store.UpdateTransaction(ctx, paid, finance.StatusPending))

	// THEN: A second writer that also read PENDING loses
	again := tx
	again.Status = finance.StatusPaid
	err := store.UpdateTransaction(ctx, again, finance.StatusPending)
	assert.ErrorIs(t, err, finance.ErrConcurrentModification)

	// AND: A delete expecting the stale status loses too
	err = store.DeleteTransaction(ctx, tx.ID, finance.StatusPending)
	assert.ErrorIs(t, err, finance.ErrConcurrentModification)
	require.NoError(t, store.DeleteTransaction(ctx, tx.ID, finance.StatusPaid))
}

func TestStore_ListTransactions_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, store, "u@example.com")
	g := seedGroup(t, store, u.ID, finance.GroupShared)

	first := seedTransaction(t, store, u.ID, g.ID, finance.StatusPending)
	second := seedTransaction(t, store, u.ID, g.ID, finance.StatusPaid)

	byGroup, err := store.ListTransactionsByGroup(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, byGroup, 2)
	assert.Equal(t, second.ID, byGroup[0].ID)
	assert.Equal(t, first.ID, byGroup[1].ID)

	byCreator, err := store.ListTransactionsByCreator(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, byCreator, 2)
}

// =============================================================================
// WITHTX
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A unit that adjusts a balance and then fails
	store := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, store, "u@example.com")
	a := seedAccount(t, store, u.ID, "100")
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(s finance.Store) error {
		if err := s.AdjustBankBalance(ctx, a.ID, decimal.NewFromInt(-50)); err != nil {
			return err
		}
		return boom
	})

	// THEN: The error surfaces and the balance is untouched
	assert.ErrorIs(t, err, boom)
	loaded, err := store.GetBankAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(loaded.Balance))
}

// =============================================================================
// INVITATIONS
// =============================================================================

func TestStore_Invitations_PendingLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "o@example.com")
	guest := seedUser(t, store, "g@example.com")
	g := seedGroup(t, store, owner.ID, finance.GroupShared)

	inv := finance.Invitation{
		SenderID:   owner.ID,
		ReceiverID: guest.ID,
		GroupID:    g.ID,
		Status:     finance.InvitationPending,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.CreateInvitation(ctx, &inv))

	found, err := store.FindPendingInvitation(ctx, guest.ID, g.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, owner.Email, found.SenderEmail)
	assert.Equal(t, "g", found.GroupName)

	require.NoError(t, store.UpdateInvitationStatus(ctx, inv.ID, finance.InvitationAccepted))

	found, err = store.FindPendingInvitation(ctx, guest.ID, g.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	pending, err := store.ListPendingInvitations(ctx, guest.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
