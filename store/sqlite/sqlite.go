/*
Package sqlite provides a SQLite-backed implementation of finance.TxStore.

PURPOSE:
  Default store for local runs, demos and tests. The PostgreSQL store in
  store/postgres implements the same interface for production.

KEY TABLES:
  users              registered people, unique email
  financial_groups   PERSONAL and SHARED groups
  group_members      (group_id, user_id) pairs, unique
  user_categories    per-user categories
  group_categories   per-group categories, unique name per group
  bank_accounts      accounts with a running balance
  transactions       INCOME / EXPENSE rows with status
  group_invitations  PENDING / ACCEPTED / REJECTED

AMOUNTS:
  Stored as canonical decimal TEXT ("1234.5") and parsed back with
  shopspring/decimal. SQLite's REAL would drift; TEXT round-trips exactly.
  Balance arithmetic therefore happens in Go, inside the write transaction.

CONCURRENCY:
  The pool is pinned to one connection and every WithTx unit begins with
  BEGIN IMMEDIATE (_txlock=immediate), so a unit holds the write lock from
  its first statement. Two units can never interleave between a
  LockTransaction read and the compare-and-swap write. A mutex around
  WithTx keeps goroutines from queuing inside database/sql.

  Single statements outside WithTx run in autocommit mode. Writers that need
  more than one statement (CreateGroup, AdjustBankBalance, the category
  batches) wrap themselves in WithTx.

USAGE:
  store, err := sqlite.New("./data/finance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := finance.NewEngine(store, log)

MIGRATION:
  Schema is auto-migrated on New(). The PostgreSQL store uses versioned
  migrations through golang-migrate.

SEE ALSO:
  - finance/store.go: Interface definitions
  - store/postgres: production implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/finance-engine/finance"
)

// Fixed-width UTC layout so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements finance.TxStore using SQLite.
type Store struct {
	conn
	db *sql.DB
	mu sync.Mutex
}

var _ finance.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database lives and dies with it, and
	// SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{conn: conn{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS financial_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL CHECK (type IN ('PERSONAL', 'SHARED')),
		owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- At most one PERSONAL group per owner
	CREATE UNIQUE INDEX IF NOT EXISTS idx_groups_personal_owner
		ON financial_groups(owner_id) WHERE type = 'PERSONAL';

	CREATE TABLE IF NOT EXISTS group_members (
		group_id INTEGER NOT NULL REFERENCES financial_groups(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		joined_at TEXT NOT NULL,
		PRIMARY KEY (group_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_group_members_user
		ON group_members(user_id);

	CREATE TABLE IF NOT EXISTS user_categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS group_categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL REFERENCES financial_groups(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		UNIQUE (group_id, name)
	);

	CREATE TABLE IF NOT EXISTS bank_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		bank TEXT NOT NULL,
		balance TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		amount TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('INCOME', 'EXPENSE')),
		status TEXT NOT NULL CHECK (status IN ('PENDING', 'PAID', 'OVERDUE', 'CANCELLED')),
		description TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		created_by INTEGER NOT NULL REFERENCES users(id),
		group_id INTEGER NOT NULL REFERENCES financial_groups(id) ON DELETE CASCADE,
		user_category_id INTEGER REFERENCES user_categories(id) ON DELETE SET NULL,
		group_category_id INTEGER REFERENCES group_categories(id) ON DELETE SET NULL,
		bank_account_id INTEGER REFERENCES bank_accounts(id),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (user_category_id IS NULL OR group_category_id IS NULL)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_group_created
		ON transactions(group_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_creator_created
		ON transactions(created_by, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_bank_account
		ON transactions(bank_account_id) WHERE bank_account_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS group_invitations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		receiver_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		group_id INTEGER NOT NULL REFERENCES financial_groups(id) ON DELETE CASCADE,
		status TEXT NOT NULL CHECK (status IN ('PENDING', 'ACCEPTED', 'REJECTED')),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invitations_receiver_status
		ON group_invitations(receiver_id, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (finance.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store finance.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
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

func (s *Store) AdjustBankBalance(ctx context.Context, id finance.AccountID, delta decimal.Decimal) error {
	return s.WithTx(ctx, func(st finance.Store) error { return st.AdjustBankBalance(ctx, id, delta) })
}

// =============================================================================
// CONN - every Reader/Writer method, over *sql.DB or *sql.Tx
// =============================================================================

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	q queryer
}

var _ finance.Store = (*conn)(nil)

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

func (c *conn) CreateUser(ctx context.Context, u *finance.User) error {
	res, err := c.q.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.Name, u.Email, u.PasswordHash, formatTime(u.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return finance.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = finance.UserID(id)
	return nil
}

func (c *conn) GetUser(ctx context.Context, id finance.UserID) (*finance.User, error) {
	return c.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (c *conn) GetUserByEmail(ctx context.Context, email string) (*finance.User, error) {
	return c.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (c *conn) getUser(ctx context.Context, query string, arg any) (*finance.User, error) {
	var (
		u         finance.User
		createdAt string
	)
	err := c.q.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("user %d: %w", u.ID, err)
	}
	return &u, nil
}

// -----------------------------------------------------------------------------
// Groups and members
// -----------------------------------------------------------------------------

const groupColumns = `g.id, g.name, g.description, g.type, g.owner_id, g.created_at, g.updated_at`

func (c *conn) CreateGroup(ctx context.Context, g *finance.Group) error {
	res, err := c.q.ExecContext(ctx,
		`INSERT INTO financial_groups (name, description, type, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		g.Name, g.Description, g.Type, g.OwnerID, formatTime(g.CreatedAt), formatTime(g.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return finance.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert group: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	g.ID = finance.GroupID(id)

	return c.AddMember(ctx, g.ID, g.OwnerID)
}

func (c *conn) GetGroup(ctx context.Context, id finance.GroupID) (*finance.Group, error) {
	groups, err := c.queryGroups(ctx, `SELECT `+groupColumns+` FROM financial_groups g WHERE g.id = ?`, id)
	if err != nil || len(groups) == 0 {
		return nil, err
	}
	return &groups[0], nil
}

func (c *conn) GetPersonalGroup(ctx context.Context, userID finance.UserID) (*finance.Group, error) {
	groups, err := c.queryGroups(ctx,
		`SELECT `+groupColumns+` FROM financial_groups g WHERE g.owner_id = ? AND g.type = 'PERSONAL'`, userID)
	if err != nil || len(groups) == 0 {
		return nil, err
	}
	return &groups[0], nil
}

func (c *conn) ListGroupsForUser(ctx context.Context, userID finance.UserID) ([]finance.Group, error) {
	return c.queryGroups(ctx, `
		SELECT `+groupColumns+`
		FROM financial_groups g
		WHERE g.owner_id = ?
		   OR EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = ?)
		ORDER BY g.created_at ASC, g.id ASC
	`, userID, userID)
}

func (c *conn) queryGroups(ctx context.Context, query string, args ...any) ([]finance.Group, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}

	var groups []finance.Group
	for rows.Next() {
		var (
			g                    finance.Group
			createdAt, updatedAt string
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.Type, &g.OwnerID, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		if g.CreatedAt, err = parseTime(createdAt); err == nil {
			g.UpdatedAt, err = parseTime(updatedAt)
		}
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("group %d: %w", g.ID, err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Close before issuing member queries on the same connection.
	rows.Close()

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
	var count int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}

func (c *conn) ListMembers(ctx context.Context, groupID finance.GroupID) ([]finance.Member, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT m.user_id, m.group_id, m.joined_at, u.name, u.email
		FROM group_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.group_id = ?
		ORDER BY m.joined_at ASC, m.user_id ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []finance.Member
	for rows.Next() {
		var (
			m        finance.Member
			joinedAt string
		)
		if err := rows.Scan(&m.UserID, &m.GroupID, &joinedAt, &m.Name, &m.Email); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if m.JoinedAt, err = parseTime(joinedAt); err != nil {
			return nil, fmt.Errorf("member %d of group %d: %w", m.UserID, m.GroupID, err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (c *conn) AddMember(ctx context.Context, groupID finance.GroupID, userID finance.UserID) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
		groupID, userID, formatTime(time.Now().UTC()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return finance.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

func (c *conn) RemoveMember(ctx context.Context, groupID finance.GroupID, userID finance.UserID) error {
	res, err := c.q.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return expectOneRow(res, finance.ErrNotFound)
}

// -----------------------------------------------------------------------------
// Categories
// -----------------------------------------------------------------------------

func (c *conn) CreateUserCategories(ctx context.Context, userID finance.UserID, names []string) error {
	for _, name := range names {
		if _, err := c.q.ExecContext(ctx,
			`INSERT INTO user_categories (user_id, name) VALUES (?, ?)`, userID, name); err != nil {
			return fmt.Errorf("failed to insert user category: %w", err)
		}
	}
	return nil
}

func (c *conn) CreateGroupCategories(ctx context.Context, groupID finance.GroupID, names []string) error {
	for _, name := range names {
		if _, err := c.q.ExecContext(ctx,
			`INSERT INTO group_categories (group_id, name) VALUES (?, ?)`, groupID, name); err != nil {
			if isUniqueConstraintError(err) {
				return finance.ErrAlreadyExists
			}
			return fmt.Errorf("failed to insert group category: %w", err)
		}
	}
	return nil
}

func (c *conn) CreateGroupCategory(ctx context.Context, cat *finance.GroupCategory) error {
	res, err := c.q.ExecContext(ctx,
		`INSERT INTO group_categories (group_id, name) VALUES (?, ?)`, cat.GroupID, cat.Name)
	if err != nil {
		if isUniqueConstraintError(err) {
			return finance.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert group category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	cat.ID = finance.CategoryID(id)
	return nil
}

func (c *conn) GetUserCategory(ctx context.Context, id finance.CategoryID) (*finance.UserCategory, error) {
	var cat finance.UserCategory
	err := c.q.QueryRowContext(ctx,
		`SELECT id, user_id, name FROM user_categories WHERE id = ?`, id,
	).Scan(&cat.ID, &cat.UserID, &cat.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user category: %w", err)
	}
	return &cat, nil
}

func (c *conn) GetGroupCategory(ctx context.Context, id finance.CategoryID) (*finance.GroupCategory, error) {
	var cat finance.GroupCategory
	err := c.q.QueryRowContext(ctx,
		`SELECT id, group_id, name FROM group_categories WHERE id = ?`, id,
	).Scan(&cat.ID, &cat.GroupID, &cat.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group category: %w", err)
	}
	return &cat, nil
}

func (c *conn) ListUserCategories(ctx context.Context, userID finance.UserID) ([]finance.UserCategory, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT id, user_id, name FROM user_categories WHERE user_id = ? ORDER BY name ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user categories: %w", err)
	}
	defer rows.Close()

	var cats []finance.UserCategory
	for rows.Next() {
		var cat finance.UserCategory
		if err := rows.Scan(&cat.ID, &cat.UserID, &cat.Name); err != nil {
			return nil, fmt.Errorf("failed to scan user category: %w", err)
		}
		cats = append(cats, cat)
	}
	return cats, rows.Err()
}

func (c *conn) ListGroupCategories(ctx context.Context, groupID finance.GroupID) ([]finance.GroupCategory, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT id, group_id, name FROM group_categories WHERE group_id = ? ORDER BY name ASC, id ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group categories: %w", err)
	}
	defer rows.Close()

	var cats []finance.GroupCategory
	for rows.Next() {
		var cat finance.GroupCategory
		if err := rows.Scan(&cat.ID, &cat.GroupID, &cat.Name); err != nil {
			return nil, fmt.Errorf("failed to scan group category: %w", err)
		}
		cats = append(cats, cat)
	}
	return cats, rows.Err()
}

// -----------------------------------------------------------------------------
// Bank accounts
// -----------------------------------------------------------------------------

const accountColumns = `id, user_id, name, bank, balance, active, created_at`

func (c *conn) CreateBankAccount(ctx context.Context, a *finance.BankAccount) error {
	res, err := c.q.ExecContext(ctx,
		`INSERT INTO bank_accounts (user_id, name, bank, balance, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.UserID, a.Name, a.Bank, a.Balance.String(), a.Active, formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert bank account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = finance.AccountID(id)
	return nil
}

func (c *conn) GetBankAccount(ctx context.Context, id finance.AccountID) (*finance.BankAccount, error) {
	accounts, err := c.queryAccounts(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE id = ?`, id)
	if err != nil || len(accounts) == 0 {
		return nil, err
	}
	return &accounts[0], nil
}

// LockBankAccount is a plain read; BEGIN IMMEDIATE already holds the
// database write lock for the whole unit.
func (c *conn) LockBankAccount(ctx context.Context, id finance.AccountID) (*finance.BankAccount, error) {
	return c.GetBankAccount(ctx, id)
}

func (c *conn) ListBankAccounts(ctx context.Context, userID finance.UserID, activeOnly bool) ([]finance.BankAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM bank_accounts WHERE user_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY id ASC`
	return c.queryAccounts(ctx, query, userID)
}

// AdjustBankBalance reads, adds and writes back. Call it inside WithTx.
func (c *conn) AdjustBankBalance(ctx context.Context, id finance.AccountID, delta decimal.Decimal) error {
	var raw string
	err := c.q.QueryRowContext(ctx, `SELECT balance FROM bank_accounts WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("bank account %d: %w", id, finance.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}

	current, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("corrupt balance %q on account %d: %w", raw, id, err)
	}

	_, err = c.q.ExecContext(ctx,
		`UPDATE bank_accounts SET balance = ? WHERE id = ?`, current.Add(delta).String(), id)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func (c *conn) queryAccounts(ctx context.Context, query string, args ...any) ([]finance.BankAccount, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank accounts: %w", err)
	}
	defer rows.Close()

	var accounts []finance.BankAccount
	for rows.Next() {
		var (
			a         finance.BankAccount
			balance   string
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Bank, &balance, &a.Active, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan bank account: %w", err)
		}
		if a.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("corrupt balance %q on account %d: %w", balance, a.ID, err)
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("account %d: %w", a.ID, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// -----------------------------------------------------------------------------
// Invitations
// -----------------------------------------------------------------------------

const invitationColumns = `i.id, i.sender_id, i.receiver_id, i.group_id, i.status, i.created_at,
	s.name, s.email, g.name`

const invitationJoins = `FROM group_invitations i
	JOIN users s ON s.id = i.sender_id
	JOIN financial_groups g ON g.id = i.group_id`

func (c *conn) CreateInvitation(ctx context.Context, inv *finance.Invitation) error {
	res, err := c.q.ExecContext(ctx,
		`INSERT INTO group_invitations (sender_id, receiver_id, group_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		inv.SenderID, inv.ReceiverID, inv.GroupID, inv.Status, formatTime(inv.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert invitation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	inv.ID = finance.InvitationID(id)
	return nil
}

func (c *conn) GetInvitation(ctx context.Context, id finance.InvitationID) (*finance.Invitation, error) {
	invs, err := c.queryInvitations(ctx, `SELECT `+invitationColumns+` `+invitationJoins+` WHERE i.id = ?`, id)
	if err != nil || len(invs) == 0 {
		return nil, err
	}
	return &invs[0], nil
}

func (c *conn) FindPendingInvitation(ctx context.Context, receiverID finance.UserID, groupID finance.GroupID) (*finance.Invitation, error) {
	invs, err := c.queryInvitations(ctx, `SELECT `+invitationColumns+` `+invitationJoins+`
		WHERE i.receiver_id = ? AND i.group_id = ? AND i.status = 'PENDING'
		LIMIT 1`, receiverID, groupID)
	if err != nil || len(invs) == 0 {
		return nil, err
	}
	return &invs[0], nil
}

func (c *conn) ListPendingInvitations(ctx context.Context, receiverID finance.UserID) ([]finance.Invitation, error) {
	return c.queryInvitations(ctx, `SELECT `+invitationColumns+` `+invitationJoins+`
		WHERE i.receiver_id = ? AND i.status = 'PENDING'
		ORDER BY i.created_at DESC, i.id DESC`, receiverID)
}

func (c *conn) UpdateInvitationStatus(ctx context.Context, id finance.InvitationID, status finance.InvitationStatus) error {
	res, err := c.q.ExecContext(ctx, `UPDATE group_invitations SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	return expectOneRow(res, finance.ErrNotFound)
}

func (c *conn) queryInvitations(ctx context.Context, query string, args ...any) ([]finance.Invitation, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invitations: %w", err)
	}
	defer rows.Close()

	var invs []finance.Invitation
	for rows.Next() {
		var (
			inv       finance.Invitation
			createdAt string
		)
		if err := rows.Scan(&inv.ID, &inv.SenderID, &inv.ReceiverID, &inv.GroupID, &inv.Status, &createdAt,
			&inv.SenderName, &inv.SenderEmail, &inv.GroupName); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		if inv.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("invitation %d: %w", inv.ID, err)
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

const transactionColumns = `id, amount, type, status, description, payment_method, created_by, group_id,
	user_category_id, group_category_id, bank_account_id, created_at, updated_at`

func (c *conn) InsertTransaction(ctx context.Context, t *finance.Transaction) error {
	userCat, groupCat := categoryColumns(t.Category)
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO transactions
		(amount, type, status, description, payment_method, created_by, group_id,
		 user_category_id, group_category_id, bank_account_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.Amount.String(), t.Type, t.Status, t.Description, t.PaymentMethod, t.CreatedBy, t.GroupID,
		userCat, groupCat, accountColumn(t.BankAccountID), formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = finance.TransactionID(id)
	return nil
}

func (c *conn) GetTransaction(ctx context.Context, id finance.TransactionID) (*finance.Transaction, error) {
	txs, err := c.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	if err != nil || len(txs) == 0 {
		return nil, err
	}
	return &txs[0], nil
}

// LockTransaction is a plain read; see LockBankAccount.
func (c *conn) LockTransaction(ctx context.Context, id finance.TransactionID) (*finance.Transaction, error) {
	return c.GetTransaction(ctx, id)
}

func (c *conn) ListTransactionsByGroup(ctx context.Context, groupID finance.GroupID) ([]finance.Transaction, error) {
	return c.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE group_id = ? ORDER BY created_at DESC, id DESC`, groupID)
}

func (c *conn) ListTransactionsByCreator(ctx context.Context, userID finance.UserID) ([]finance.Transaction, error) {
	return c.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE created_by = ? ORDER BY created_at DESC, id DESC`, userID)
}

// UpdateTransaction writes t only if the stored status is still expected.
func (c *conn) UpdateTransaction(ctx context.Context, t finance.Transaction, expected finance.Status) error {
	userCat, groupCat := categoryColumns(t.Category)
	res, err := c.q.ExecContext(ctx, `
		UPDATE transactions
		SET amount = ?, type = ?, status = ?, description = ?, payment_method = ?,
		    user_category_id = ?, group_category_id = ?, bank_account_id = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		t.Amount.String(), t.Type, t.Status, t.Description, t.PaymentMethod,
		userCat, groupCat, accountColumn(t.BankAccountID), formatTime(t.UpdatedAt),
		t.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return expectOneRow(res, finance.ErrConcurrentModification)
}

// DeleteTransaction removes the row only if the stored status is still expected.
func (c *conn) DeleteTransaction(ctx context.Context, id finance.TransactionID, expected finance.Status) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND status = ?`, id, expected)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return expectOneRow(res, finance.ErrConcurrentModification)
}

func (c *conn) queryTransactions(ctx context.Context, query string, args ...any) ([]finance.Transaction, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []finance.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (finance.Transaction, error) {
	var (
		t         finance.Transaction
		amount    string
		userCat   sql.NullInt64
		groupCat  sql.NullInt64
		accountID sql.NullInt64
		createdAt string
		updatedAt string
	)

	err := rows.Scan(
		&t.ID, &amount, &t.Type, &t.Status, &t.Description, &t.PaymentMethod, &t.CreatedBy, &t.GroupID,
		&userCat, &groupCat, &accountID, &createdAt, &updatedAt,
	)
	if err != nil {
		return t, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return t, fmt.Errorf("corrupt amount %q on transaction %d: %w", amount, t.ID, err)
	}
	switch {
	case userCat.Valid:
		t.Category = finance.UserCategoryRef(finance.CategoryID(userCat.Int64))
	case groupCat.Valid:
		t.Category = finance.GroupCategoryRef(finance.CategoryID(groupCat.Int64))
	}
	if accountID.Valid {
		id := finance.AccountID(accountID.Int64)
		t.BankAccountID = &id
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, fmt.Errorf("transaction %d: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return t, fmt.Errorf("transaction %d: %w", t.ID, err)
	}

	return t, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"transactions", "group_invitations", "group_categories", "user_categories",
		"bank_accounts", "group_members", "financial_groups", "users",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", s, err)
	}
	return t, nil
}

func categoryColumns(ref finance.CategoryRef) (userCat, groupCat sql.NullInt64) {
	switch ref.Kind {
	case finance.CategoryUser:
		userCat = sql.NullInt64{Int64: int64(ref.ID), Valid: true}
	case finance.CategoryGroup:
		groupCat = sql.NullInt64{Int64: int64(ref.ID), Valid: true}
	}
	return userCat, groupCat
}

func accountColumn(id *finance.AccountID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

// expectOneRow maps "nothing matched" to missing.
func expectOneRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
