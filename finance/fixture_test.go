package finance_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-engine/finance"
	"github.com/warp/finance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// fixture is a household: owner and member share "Casa", outsider is a
// stranger. The owner has one active account opened at 100.00.
type fixture struct {
	ctx    context.Context
	store  *sqlite.Store
	engine *finance.Engine
	dir    *finance.Directory

	owner    finance.Principal
	member   finance.Principal
	outsider finance.Principal

	group   finance.Group
	account finance.BankAccount
}

func newFixture(t *testing.T) *fixture {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		ctx:    context.Background(),
		store:  store,
		engine: finance.NewEngine(store, zerolog.Nop()),
		dir:    finance.NewDirectory(store, zerolog.Nop()),
	}

	f.owner = f.register(t, "Ana", "ana@example.com")
	f.member = f.register(t, "Bia", "bia@example.com")
	f.outsider = f.register(t, "Caio", "caio@example.com")

	g, err := f.dir.CreateGroup(f.ctx, f.owner, "Casa", "despesas da casa")
	require.NoError(t, err)
	require.NoError(t, f.dir.AddMember(f.ctx, f.owner, g.ID, f.member.UserID))
	f.group = *g

	f.account = f.openAccount(t, f.owner, "Nubank", "100")
	return f
}

func (f *fixture) register(t *testing.T, name, email string) finance.Principal {
	u, err := f.dir.Register(f.ctx, finance.RegisterInput{Name: name, Email: email, PasswordHash: "hash"})
	require.NoError(t, err)
	return finance.Principal{UserID: u.ID}
}

func (f *fixture) openAccount(t *testing.T, p finance.Principal, name, balance string) finance.BankAccount {
	a, err := f.dir.CreateBankAccount(f.ctx, p, finance.CreateBankAccountInput{
		Name:           name,
		Bank:           name,
		OpeningBalance: decimal.RequireFromString(balance),
	})
	require.NoError(t, err)
	return *a
}

// create records a transaction in the shared group, linked to the owner's
// account when linked is true.
func (f *fixture) create(t *testing.T, p finance.Principal, typ finance.TransactionType, amount string, status finance.Status, linked bool) *finance.Transaction {
	in := finance.CreateTransactionInput{
		Amount:      decimal.RequireFromString(amount),
		Type:        typ,
		Description: "test",
		GroupID:     f.group.ID,
		Status:      status,
	}
	if linked {
		id := f.account.ID
		in.BankAccountID = &id
	}
	tx, err := f.engine.Create(f.ctx, p, in)
	require.NoError(t, err)
	return tx
}

func (f *fixture) balance(t *testing.T, id finance.AccountID) decimal.Decimal {
	a, err := f.store.GetBankAccount(f.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a.Balance
}

func (f *fixture) status(t *testing.T, id finance.TransactionID) finance.Status {
	tx, err := f.store.GetTransaction(f.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, tx)
	return tx.Status
}

func requireBalance(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want balance %s, got %s", want, got.StringFixed(2))
}

// =============================================================================
// FAULT INJECTION
// =============================================================================

var errInjected = errors.New("injected store failure")

// failingAdjustStore fails every balance adjustment made inside a unit.
type failingAdjustStore struct {
	finance.Store
}

func (failingAdjustStore) AdjustBankBalance(context.Context, finance.AccountID, decimal.Decimal) error {
	return errInjected
}

// faultyTxStore runs units against the real store but hands them a Store
// whose balance writes fail after the transaction row has been written.
type faultyTxStore struct {
	*sqlite.Store
}

func (f faultyTxStore) WithTx(ctx context.Context, fn func(finance.Store) error) error {
	return f.Store.WithTx(ctx, func(s finance.Store) error {
		return fn(failingAdjustStore{Store: s})
	})
}
