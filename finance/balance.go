/*
balance.go - Read-side balance aggregates

PURPOSE:
  Computes the balances shown to clients. Every function here is pure:
  same input, same output, no writes. BalanceReader only loads data and
  hands it to the pure functions.

CONVENTION (stored balance is authoritative):
  BankAccount.Balance already contains the effect of every linked PAID
  transaction, because the Engine adjusts it on each PAID-boundary
  crossing. The effective balance of an account is therefore the stored
  field itself. Nothing here re-sums PAID transactions on top of an
  account balance; doing so would count them twice.

AGGREGATES:
  GroupBalance:         sum of SignedDelta over PAID transactions
  ConsolidatedBalance:  sum of GroupBalance over the user's groups
                        (deduplicated) + sum of active account balances
  PersonalGroupBalance: cash (PAID, no bank account) + bank (active accounts)

EXAMPLE:
  [INCOME 100 PAID, EXPENSE 40 PENDING, INCOME 20 PAID] => 120

SEE ALSO:
  - lifecycle.go: keeps BankAccount.Balance in sync
*/
package finance

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SIGN CONVENTION
// =============================================================================

// SignedDelta is the amount a transaction contributes while PAID:
// +amount for INCOME, -amount for EXPENSE.
func SignedDelta(t Transaction) decimal.Decimal {
	if t.Type == Income {
		return t.Amount
	}
	return t.Amount.Neg()
}

// =============================================================================
// PURE AGGREGATES
// =============================================================================

// GroupBalance sums PAID transactions. PENDING, OVERDUE and CANCELLED
// contribute nothing.
func GroupBalance(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txs {
		if t.IsPaid() {
			total = total.Add(SignedDelta(t))
		}
	}
	return total
}

// AccountEffectiveBalance is the stored balance.
func AccountEffectiveBalance(a BankAccount) decimal.Decimal {
	return a.Balance
}

// GroupLedger pairs a group with its transactions.
type GroupLedger struct {
	Group        Group
	Transactions []Transaction
}

type GroupBalanceLine struct {
	GroupID          GroupID
	GroupName        string
	Balance          decimal.Decimal
	TransactionCount int
}

type AccountBalanceLine struct {
	AccountID AccountID
	Name      string
	Bank      string
	Balance   decimal.Decimal
}

// Consolidated is the answer to "how much do I have, everywhere".
type Consolidated struct {
	GroupsTotal decimal.Decimal
	BankTotal   decimal.Decimal
	Total       decimal.Decimal
	Groups      []GroupBalanceLine
	Accounts    []AccountBalanceLine
}

// ConsolidatedBalance sums each distinct group once and adds the active
// accounts' effective balances.
func ConsolidatedBalance(groups []GroupLedger, accounts []BankAccount) Consolidated {
	out := Consolidated{
		GroupsTotal: decimal.Zero,
		BankTotal:   decimal.Zero,
		Groups:      []GroupBalanceLine{},
		Accounts:    []AccountBalanceLine{},
	}

	seen := make(map[GroupID]bool, len(groups))
	for _, gl := range groups {
		if seen[gl.Group.ID] {
			continue
		}
		seen[gl.Group.ID] = true

		b := GroupBalance(gl.Transactions)
		out.GroupsTotal = out.GroupsTotal.Add(b)
		out.Groups = append(out.Groups, GroupBalanceLine{
			GroupID:          gl.Group.ID,
			GroupName:        gl.Group.Name,
			Balance:          b,
			TransactionCount: len(gl.Transactions),
		})
	}

	for _, a := range accounts {
		if !a.Active {
			continue
		}
		b := AccountEffectiveBalance(a)
		out.BankTotal = out.BankTotal.Add(b)
		out.Accounts = append(out.Accounts, AccountBalanceLine{
			AccountID: a.ID,
			Name:      a.Name,
			Bank:      a.Bank,
			Balance:   b,
		})
	}

	out.Total = out.GroupsTotal.Add(out.BankTotal)
	return out
}

// PersonalBalance splits the personal group's money into cash and bank.
type PersonalBalance struct {
	GroupID     GroupID
	Name        string
	Description string
	Cash        decimal.Decimal
	Bank        decimal.Decimal
	Total       decimal.Decimal
}

// PersonalGroupBalance counts PAID transactions without a bank account as
// cash. Bank-linked ones are already inside the account balances.
func PersonalGroupBalance(g Group, txs []Transaction, accounts []BankAccount) PersonalBalance {
	cash := decimal.Zero
	for _, t := range txs {
		if t.GroupID != g.ID || !t.IsPaid() || t.HasBankAccount() {
			continue
		}
		cash = cash.Add(SignedDelta(t))
	}

	bank := decimal.Zero
	for _, a := range accounts {
		if a.Active {
			bank = bank.Add(AccountEffectiveBalance(a))
		}
	}

	return PersonalBalance{
		GroupID:     g.ID,
		Name:        g.Name,
		Description: g.Description,
		Cash:        cash,
		Bank:        bank,
		Total:       cash.Add(bank),
	}
}

// =============================================================================
// BALANCE READER - loads snapshots, never writes
// =============================================================================

type BalanceReader struct {
	Store Reader
}

func NewBalanceReader(store Reader) *BalanceReader {
	return &BalanceReader{Store: store}
}

// Consolidated computes ConsolidatedBalance for the principal.
func (br *BalanceReader) Consolidated(ctx context.Context, p Principal) (Consolidated, error) {
	if !p.Authenticated() {
		return Consolidated{}, ErrUnauthorized
	}

	groups, err := br.Store.ListGroupsForUser(ctx, p.UserID)
	if err != nil {
		return Consolidated{}, fmt.Errorf("list groups: %w", err)
	}

	ledgers := make([]GroupLedger, 0, len(groups))
	for _, g := range groups {
		txs, err := br.Store.ListTransactionsByGroup(ctx, g.ID)
		if err != nil {
			return Consolidated{}, fmt.Errorf("list transactions of group %d: %w", g.ID, err)
		}
		ledgers = append(ledgers, GroupLedger{Group: g, Transactions: txs})
	}

	accounts, err := br.Store.ListBankAccounts(ctx, p.UserID, true)
	if err != nil {
		return Consolidated{}, fmt.Errorf("list bank accounts: %w", err)
	}

	return ConsolidatedBalance(ledgers, accounts), nil
}

// Personal computes PersonalGroupBalance for the principal.
func (br *BalanceReader) Personal(ctx context.Context, p Principal) (PersonalBalance, error) {
	if !p.Authenticated() {
		return PersonalBalance{}, ErrUnauthorized
	}

	g, err := br.Store.GetPersonalGroup(ctx, p.UserID)
	if err != nil {
		return PersonalBalance{}, fmt.Errorf("get personal group: %w", err)
	}
	if g == nil {
		return PersonalBalance{}, notFound("personal group of user", int64(p.UserID))
	}

	txs, err := br.Store.ListTransactionsByGroup(ctx, g.ID)
	if err != nil {
		return PersonalBalance{}, fmt.Errorf("list transactions: %w", err)
	}

	accounts, err := br.Store.ListBankAccounts(ctx, p.UserID, true)
	if err != nil {
		return PersonalBalance{}, fmt.Errorf("list bank accounts: %w", err)
	}

	return PersonalGroupBalance(*g, txs, accounts), nil
}
