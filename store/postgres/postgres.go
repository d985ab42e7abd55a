/*
Package postgres provides a PostgreSQL implementation of finance.TxStore.

PURPOSE:
  Production store. Same interface and semantics as store/sqlite, with
  database-level concurrency control instead of a process mutex.

CONCURRENCY:
  LockTransaction and LockBankAccount use SELECT ... FOR UPDATE, so two
  units touching the same transaction or account serialize on the row while
  units on different rows proceed in parallel. UpdateTransaction and
  DeleteTransaction are also compare-and-swap on status.

AMOUNTS:
  NUMERIC(18,2). Values cross the wire as decimal strings (::numeric on the
  way in, ::text on the way out), so no float is ever involved. Balance
  changes are a single "balance = balance + $2" statement.

MIGRATIONS:
  Versioned SQL files in migrations/, embedded and applied with
  golang-migrate through the pgx/v5 driver on New().

USAGE:
  store, err := postgres.New(ctx, os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/finance-engine/finance"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements finance.TxStore using a pgx connection pool.
type Store struct {
	conn
	pool *pgxpool.Pool
}

var _ finance.TxStore = (*Store)(nil)

// New connects, pings and migrates.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	if err := Migrate(databaseURL); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{conn: conn{q: pool}, pool: pool}, nil
}

// Migrate applies every pending up migration.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres:// URL to the pgx/v5 driver's scheme.
func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE group_invitations, transactions, bank_accounts, group_categories,
		user_categories, group_members, financial_groups, users RESTART IDENTITY`)
	return err
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store finance.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&conn{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Multi-statement writers outside WithTx get their own unit.

func (s *Store) CreateGroup(ctx context.Context, g *finance.Group) error {
	return s.WithTx(ctx, func(st finance.Store) error { return st.CreateGroup(ctx, g) })
}

func (s *Store) CreateUserCategories(ctx context.Context, userID finance.UserID, names []string) error {
	return s.WithTx(ctx, func(st finance.Store) error { return st.CreateUserCategories(ctx, userID, names) })
}

func (s *Store) CreateGroupCategories(ctx context.Context, groupID finance.GroupID, names []string) error {
	return s.WithTx(ctx, func(st finance.Store) error { return st.CreateGroupCategories(ctx, groupID, names) })
}

// =============================================================================
// CONN - every Reader/Writer method, over the pool or a pgx.Tx
// =============================================================================

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type conn struct {
	q querier
}

var _ finance.Store = (*conn)(nil)

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

func (c *conn) CreateUser(ctx context.Context, u *finance.User) error {
	err := c.q.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		u.Name, u.Email, u.PasswordHash, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return finance.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (c *conn) GetUser(ctx context.Context, id finance.UserID) (*finance.User, error) {
	return c.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (c *conn) GetUserByEmail(ctx context.Context, email string) (*finance.User, error) {
	return c.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE email = $1`, email)
}

func (c *conn) getUser(ctx context.Context, query string, arg any) (*finance.User, error) {
	var u finance.User
	err := c.q.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// -----------------------------------------------------------------------------
// Groups and members
// -----------------------------------------------------------------------------

const groupColumns = `g.id, g.name, g.description, g.type, g.owner_id, g.created_at, g.updated_at`

func (c *conn) CreateGroup(ctx context.Context, g *finance.Group) error {
	err := c.q.QueryRow(ctx, `
		INSERT INTO financial_groups (name, description, type, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id
	`, g.Name, g.Description, g.Type, g.OwnerID, g.CreatedAt, g.UpdatedAt).Scan(&g.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return finance.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return c.AddMember(ctx, g.ID, g.OwnerID)
}

func (c *conn) GetGroup(ctx context.Context, id finance.GroupID) (*finance.Group, error) {
	groups, err := c.queryGroups(ctx, `SELECT `+groupColumns+` FROM financial_groups g WHERE g.id = $1`, id)
	if err != nil || len(groups) == 0 {
		return nil, err
	}
	return &groups[0], nil
}

func (c *conn) GetPersonalGroup(ctx context.Context, userID finance.UserID) (*finance.Group, error) {
	groups, err := c.queryGroups(ctx,
		`SELECT `+groupColumns+` FROM financial_groups g WHERE g.owner_id = $1 AND g.type = 'PERSONAL'`, userID)
	if err != nil || len(groups) == 0 {
		return nil, err
	}
	return &groups[0], nil
}

func (c *conn) ListGroupsForUser(ctx context.Context, userID finance.UserID) ([]finance.Group, error) {
	return c.queryGroups(ctx, `
		SELECT `+groupColumns+`
		FROM financial_groups g
		WHERE g.owner_id = $1
		   OR EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = $1)
		ORDER BY g.created_at ASC, g.id ASC
	`, userID)
}

func (c *conn) queryGroups(ctx context.Context, query string, args ...any) ([]finance.Group, error) {
	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	groups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (finance.Group, error) {
		var g finance.Group
		err := row.Scan(&g.ID, &g.Name, &g.Description, &g.Type, &g.OwnerID, &g.CreatedAt, &g.UpdatedAt)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan groups: %w", err)
	}

	for i := range groups {
		members, err := c.ListMembers(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Members = members
	}
	return groups, nil
}

func (c *conn) IsMember(ctx context.Context, groupID finance.GroupID, userID finance.UserID) (bool, error) {
	var exists bool
	err := c.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`, groupID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

func (c *conn) ListMembers(ctx context.Context, groupID finance.GroupID) ([]finance.Member, error) {
	rows, err := c.q.Query(ctx, `
		SELECT m.user_id, m.group_id, m.joined_at, u.name, u.email
		FROM group_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.group_id = $1
		ORDER BY m.joined_at ASC, m.user_id ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (finance.Member, error) {
		var m finance.Member
		err := row.Scan(&m.UserID, &m.GroupID, &m.JoinedAt, &m.Name, &m.Email)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan members: %w", err)
	}
	return members, nil
}

func (c *conn) AddMember(ctx context.Context, groupID finance.GroupID, userID finance.UserID) error {
	_, err := c.q.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, groupID, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return finance.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

func (c *conn) RemoveMember(ctx context.Context, groupID finance.GroupID, userID finance.UserID) error {
	tag, err := c.q.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return expectOneRow(tag, finance.ErrNotFound)
}

// -----------------------------------------------------------------------------
// Categories
// -----------------------------------------------------------------------------

func (c *conn) CreateUserCategories(ctx context.Context, userID finance.UserID, names []string) error {
	_, err := c.q.Exec(ctx,
		`INSERT INTO user_categories (user_id, name) SELECT $1, unnest($2::text[])`, userID, names)
	if err != nil {
		return fmt.Errorf("failed to insert user categories: %w", err)
	}
	return nil
}

func (c *conn) CreateGroupCategories(ctx context.Context, groupID finance.GroupID, names []string) error {
	_, err := c.q.Exec(ctx,
		`INSERT INTO group_categories (group_id, name) SELECT $1, unnest($2::text[])`, groupID, names)
	if err != nil {
		if isUniqueViolation(err) {
			return finance.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert group categories: %w", err)
	}
	return nil
}

func (c *conn) CreateGroupCategory(ctx context.Context, cat *finance.GroupCategory) error {
	err := c.q.QueryRow(ctx,
		`INSERT INTO group_categories (group_id, name) VALUES ($1, $2) RETURNING id`, cat.GroupID, cat.Name,
	).Scan(&cat.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return finance.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert group category: %w", err)
	}
	return nil
}

func (c *conn) GetUserCategory(ctx context.Context, id finance.CategoryID) (*finance.UserCategory, error) {
	var cat finance.UserCategory
	err := c.q.QueryRow(ctx, `SELECT id, user_id, name FROM user_categories WHERE id = $1`, id).
		Scan(&cat.ID, &cat.UserID, &cat.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user category: %w", err)
	}
	return &cat, nil
}

func (c *conn) GetGroupCategory(ctx context.Context, id finance.CategoryID) (*finance.GroupCategory, error) {
	var cat finance.GroupCategory
	err := c.q.QueryRow(ctx, `SELECT id, group_id, name FROM group_categories WHERE id = $1`, id).
		Scan(&cat.ID, &cat.GroupID, &cat.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group category: %w", err)
	}
	return &cat, nil
}

func (c *conn) ListUserCategories(ctx context.Context, userID finance.UserID) ([]finance.UserCategory, error) {
	rows, err := c.q.Query(ctx,
		`SELECT id, user_id, name FROM user_categories WHERE user_id = $1 ORDER BY name ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (finance.UserCategory, error) {
		var cat finance.UserCategory
		err := row.Scan(&cat.ID, &cat.UserID, &cat.Name)
		return cat, err
	})
}

func (c *conn) ListGroupCategories(ctx context.Context, groupID finance.GroupID) ([]finance.GroupCategory, error) {
	rows, err := c.q.Query(ctx,
		`SELECT id, group_id, name FROM group_categories WHERE group_id = $1 ORDER BY name ASC, id ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (finance.GroupCategory, error) {
		var cat finance.GroupCategory
		err := row.Scan(&cat.ID, &cat.GroupID, &cat.Name)
		return cat, err
	})
}

// -----------------------------------------------------------------------------
// Bank accounts
// -----------------------------------------------------------------------------

const accountColumns = `id, user_id, name, bank, balance::text, active, created_at`

func (c *conn) CreateBankAccount(ctx context.Context, a *finance.BankAccount) error {
	err := c.q.QueryRow(ctx, `
		INSERT INTO bank_accounts (user_id, name, bank, balance, active, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6) RETURNING id
	`, a.UserID, a.Name, a.Bank, a.Balance.String(), a.Active, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to insert bank account: %w", err)
	}
	return nil
}

func (c *conn) GetBankAccount(ctx context.Context, id finance.AccountID) (*finance.BankAccount, error) {
	return c.oneAccount(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE id = $1`, id)
}

func (c *conn) LockBankAccount(ctx context.Context, id finance.AccountID) (*finance.BankAccount, error) {
	return c.oneAccount(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE id = $1 FOR UPDATE`, id)
}

func (c *conn) oneAccount(ctx context.Context, query string, id finance.AccountID) (*finance.BankAccount, error) {
	accounts, err := c.queryAccounts(ctx, query, id)
	if err != nil || len(accounts) == 0 {
		return nil, err
	}
	return &accounts[0], nil
}

func (c *conn) ListBankAccounts(ctx context.Context, userID finance.UserID, activeOnly bool) ([]finance.BankAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM bank_accounts WHERE user_id = $1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY id ASC`
	return c.queryAccounts(ctx, query, userID)
}

func (c *conn) AdjustBankBalance(ctx context.Context, id finance.AccountID, delta decimal.Decimal) error {
	tag, err := c.q.Exec(ctx,
		`UPDATE bank_accounts SET balance = balance + $2::numeric WHERE id = $1`, id, delta.String())
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bank account %d: %w", id, finance.ErrNotFound)
	}
	return nil
}

func (c *conn) queryAccounts(ctx context.Context, query string, args ...any) ([]finance.BankAccount, error) {
	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank accounts: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (finance.BankAccount, error) {
		var (
			a       finance.BankAccount
			balance string
		)
		if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Bank, &balance, &a.Active, &a.CreatedAt); err != nil {
			return a, err
		}
		var err error
		a.Balance, err = decimal.NewFromString(balance)
		return a, err
	})
}

// -----------------------------------------------------------------------------
// Invitations
// -----------------------------------------------------------------------------

const invitationSelect = `
	SELECT i.id, i.sender_id, i.receiver_id, i.group_id, i.status, i.created_at, s.name, s.email, g.name
	FROM group_invitations i
	JOIN users s ON s.id = i.sender_id
	JOIN financial_groups g ON g.id = i.group_id`

func (c *conn) CreateInvitation(ctx context.Context, inv *finance.Invitation) error {
	err := c.q.QueryRow(ctx, `
		INSERT INTO group_invitations (sender_id, receiver_id, group_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id
	`, inv.SenderID, inv.ReceiverID, inv.GroupID, inv.Status, inv.CreatedAt).Scan(&inv.ID)
	if err != nil {
		return fmt.Errorf("failed to insert invitation: %w", err)
	}
	return nil
}

func (c *conn) GetInvitation(ctx context.Context, id finance.InvitationID) (*finance.Invitation, error) {
	invs, err := c.queryInvitations(ctx, invitationSelect+` WHERE i.id = $1`, id)
	if err != nil || len(invs) == 0 {
		return nil, err
	}
	return &invs[0], nil
}

func (c *conn) FindPendingInvitation(ctx context.Context, receiverID finance.UserID, groupID finance.GroupID) (*finance.Invitation, error) {
	invs, err := c.queryInvitations(ctx, invitationSelect+`
		WHERE i.receiver_id = $1 AND i.group_id = $2 AND i.status = 'PENDING'
		LIMIT 1`, receiverID, groupID)
	if err != nil || len(invs) == 0 {
		return nil, err
	}
	return &invs[0], nil
}

func (c *conn) ListPendingInvitations(ctx context.Context, receiverID finance.UserID) ([]finance.Invitation, error) {
	return c.queryInvitations(ctx, invitationSelect+`
		WHERE i.receiver_id = $1 AND i.status = 'PENDING'
		ORDER BY i.created_at DESC, i.id DESC`, receiverID)
}

func (c *conn) UpdateInvitationStatus(ctx context.Context, id finance.InvitationID, status finance.InvitationStatus) error {
	tag, err := c.q.Exec(ctx, `UPDATE group_invitations SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	return expectOneRow(tag, finance.ErrNotFound)
}

func (c *conn) queryInvitations(ctx context.Context, query string, args ...any) ([]finance.Invitation, error) {
	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invitations: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (finance.Invitation, error) {
		var inv finance.Invitation
		err := row.Scan(&inv.ID, &inv.SenderID, &inv.ReceiverID, &inv.GroupID, &inv.Status, &inv.CreatedAt,
			&inv.SenderName, &inv.SenderEmail, &inv.GroupName)
		return inv, err
	})
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

const transactionColumns = `id, amount::text, type, status, description, payment_method, created_by, group_id,
	user_category_id, group_category_id, bank_account_id, created_at, updated_at`

func (c *conn) InsertTransaction(ctx context.Context, t *finance.Transaction) error {
	userCat, groupCat := categoryColumns(t.Category)
	err := c.q.QueryRow(ctx, `
		INSERT INTO transactions
		(amount, type, status, description, payment_method, created_by, group_id,
		 user_category_id, group_category_id, bank_account_id, created_at, updated_at)
		VALUES ($1::numeric, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`,
		t.Amount.String(), t.Type, t.Status, t.Description, t.PaymentMethod, t.CreatedBy, t.GroupID,
		userCat, groupCat, accountColumn(t.BankAccountID), t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (c *conn) GetTransaction(ctx context.Context, id finance.TransactionID) (*finance.Transaction, error) {
	return c.oneTransaction(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
}

func (c *conn) LockTransaction(ctx context.Context, id finance.TransactionID) (*finance.Transaction, error) {
	return c.oneTransaction(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
}

func (c *conn) oneTransaction(ctx context.Context, query string, id finance.TransactionID) (*finance.Transaction, error) {
	txs, err := c.queryTransactions(ctx, query, id)
	if err != nil || len(txs) == 0 {
		return nil, err
	}
	return &txs[0], nil
}

func (c *conn) ListTransactionsByGroup(ctx context.Context, groupID finance.GroupID) ([]finance.Transaction, error) {
	return c.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE group_id = $1 ORDER BY created_at DESC, id DESC`, groupID)
}

func (c *conn) ListTransactionsByCreator(ctx context.Context, userID finance.UserID) ([]finance.Transaction, error) {
	return c.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE created_by = $1 ORDER BY created_at DESC, id DESC`, userID)
}

func (c *conn) UpdateTransaction(ctx context.Context, t finance.Transaction, expected finance.Status) error {
	userCat, groupCat := categoryColumns(t.Category)
	tag, err := c.q.Exec(ctx, `
		UPDATE transactions
		SET amount = $1::numeric, type = $2, status = $3, description = $4, payment_method = $5,
		    user_category_id = $6, group_category_id = $7, bank_account_id = $8, updated_at = $9
		WHERE id = $10 AND status = $11
	`,
		t.Amount.String(), t.Type, t.Status, t.Description, t.PaymentMethod,
		userCat, groupCat, accountColumn(t.BankAccountID), t.UpdatedAt,
		t.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return expectOneRow(tag, finance.ErrConcurrentModification)
}

func (c *conn) DeleteTransaction(ctx context.Context, id finance.TransactionID, expected finance.Status) error {
	tag, err := c.q.Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND status = $2`, id, expected)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return expectOneRow(tag, finance.ErrConcurrentModification)
}

func (c *conn) queryTransactions(ctx context.Context, query string, args ...any) ([]finance.Transaction, error) {
	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return pgx.CollectRows(rows, scanTransaction)
}

func scanTransaction(row pgx.CollectableRow) (finance.Transaction, error) {
	var (
		t         finance.Transaction
		amount    string
		userCat   *int64
		groupCat  *int64
		accountID *int64
	)

	err := row.Scan(
		&t.ID, &amount, &t.Type, &t.Status, &t.Description, &t.PaymentMethod, &t.CreatedBy, &t.GroupID,
		&userCat, &groupCat, &accountID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return t, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return t, fmt.Errorf("corrupt amount %q on transaction %d: %w", amount, t.ID, err)
	}
	switch {
	case userCat != nil:
		t.Category = finance.UserCategoryRef(finance.CategoryID(*userCat))
	case groupCat != nil:
		t.Category = finance.GroupCategoryRef(finance.CategoryID(*groupCat))
	}
	if accountID != nil {
		id := finance.AccountID(*accountID)
		t.BankAccountID = &id
	}
	return t, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func categoryColumns(ref finance.CategoryRef) (userCat, groupCat *int64) {
	id := int64(ref.ID)
	switch ref.Kind {
	case finance.CategoryUser:
		return &id, nil
	case finance.CategoryGroup:
		return nil, &id
	}
	return nil, nil
}

func accountColumn(id *finance.AccountID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

func expectOneRow(tag pgconn.CommandTag, missing error) error {
	if tag.RowsAffected() == 0 {
		return missing
	}
	return nil
}

// isUniqueViolation reports SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
