/*
directory.go - Users, groups, members, invitations, categories, accounts

PURPOSE:
  The plain create/read side of the model that the lifecycle engine relies
  on. Nothing here touches a transaction or a balance after creation,
  except that a bank account is opened with its starting balance.

REGISTRATION:
  Register creates, in one unit:
    - the user
    - the PERSONAL group "Pessoal", owned by the user, with the user as member
    - the default categories, once as group categories of that group and
      once as user categories
  PERSONAL groups are never created any other way.

INVITATIONS:
  Invite is silent: unknown email, existing member and an already PENDING
  invitation all return success without writing, so the caller cannot probe
  which emails are registered. Accepting creates the membership if absent.
*/
package finance

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	PersonalGroupName        = "Pessoal"
	PersonalGroupDescription = "Grupo financeiro pessoal"
)

// DefaultCategories seeds both the personal group and the user's own list.
var DefaultCategories = []string{
	"Salário",
	"Freelance",
	"Investimentos",
	"Vendas",
	"Rendimentos",
	"Bonificações",
	"Outros Ganhos",
	"Alimentação",
	"Transporte",
	"Moradia",
	"Saúde",
	"Educação",
	"Entretenimento",
	"Compras",
	"Serviços",
	"Impostos",
	"Seguros",
	"Viagens",
	"Pets",
	"Doações",
	"Outros Gastos",
}

type Directory struct {
	store TxStore
	guard Guard
	log   zerolog.Logger
	now   func() time.Time
}

func NewDirectory(store TxStore, log zerolog.Logger) *Directory {
	return &Directory{
		store: store,
		log:   log.With().Str("component", "directory").Logger(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// =============================================================================
// REGISTRATION
// =============================================================================

type RegisterInput struct {
	Name         string
	Email        string
	PasswordHash string
}

func (in RegisterInput) Validate() error {
	v := &ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		v.Add("name", "is required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		v.Add("email", "must be a valid email address")
	}
	if in.PasswordHash == "" {
		v.Add("password", "is required")
	}
	return v.OrNil()
}

func (d *Directory) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	emailTaken := &ConflictError{Reason: "email already in use", Field: "email"}
	u := User{
		Name:         strings.TrimSpace(in.Name),
		Email:        NormalizeEmail(in.Email),
		PasswordHash: in.PasswordHash,
		CreatedAt:    d.now(),
	}

	err := d.store.WithTx(ctx, func(s Store) error {
		existing, err := s.GetUserByEmail(ctx, u.Email)
		if err != nil {
			return fmt.Errorf("get user by email: %w", err)
		}
		if existing != nil {
			return emailTaken
		}

		if err := s.CreateUser(ctx, &u); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return emailTaken
			}
			return fmt.Errorf("create user: %w", err)
		}

		g := Group{
			Name:        PersonalGroupName,
			Description: PersonalGroupDescription,
			Type:        GroupPersonal,
			OwnerID:     u.ID,
			CreatedAt:   u.CreatedAt,
			UpdatedAt:   u.CreatedAt,
		}
		if err := s.CreateGroup(ctx, &g); err != nil {
			return fmt.Errorf("create personal group: %w", err)
		}
		if err := s.CreateGroupCategories(ctx, g.ID, DefaultCategories); err != nil {
			return fmt.Errorf("create group categories: %w", err)
		}
		if err := s.CreateUserCategories(ctx, u.ID, DefaultCategories); err != nil {
			return fmt.Errorf("create user categories: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.log.Info().Int64("user_id", int64(u.ID)).Str("email", u.Email).Msg("user registered")
	return &u, nil
}

// =============================================================================
// GROUPS
// =============================================================================

// CreateGroup creates a SHARED group owned by the principal.
func (d *Directory) CreateGroup(ctx context.Context, p Principal, name, description string) (*Group, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, (&ValidationError{}).Add("name", "is required")
	}

	now := d.now()
	g := Group{
		Name:        name,
		Description: strings.TrimSpace(description),
		Type:        GroupShared,
		OwnerID:     p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := d.store.WithTx(ctx, func(s Store) error {
		if err := s.CreateGroup(ctx, &g); err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.Members = []Member{{UserID: p.UserID, GroupID: g.ID, JoinedAt: now}}

	d.log.Info().Int64("group_id", int64(g.ID)).Int64("user_id", int64(p.UserID)).Msg("group created")
	return &g, nil
}

func (d *Directory) ListGroups(ctx context.Context, p Principal) ([]Group, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}
	groups, err := d.store.ListGroupsForUser(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// TransactionView is a transaction with its display names resolved.
type TransactionView struct {
	Transaction
	CreatorName     string
	CategoryName    string
	BankAccountName string
}

type GroupDetail struct {
	Group        Group
	Transactions []TransactionView
}

// GroupDetail returns the group, its members and its transactions, newest
// first. Members only.
func (d *Directory) GroupDetail(ctx context.Context, p Principal, id GroupID) (*GroupDetail, error) {
	g, err := d.readableGroup(ctx, p, id)
	if err != nil {
		return nil, err
	}

	txs, err := d.store.ListTransactionsByGroup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	names := newNameCache(d.store)
	views := make([]TransactionView, 0, len(txs))
	for _, t := range txs {
		v := TransactionView{Transaction: t}
		if v.CreatorName, err = names.user(ctx, t.CreatedBy); err != nil {
			return nil, err
		}
		if v.CategoryName, err = names.category(ctx, t.Category); err != nil {
			return nil, err
		}
		if t.BankAccountID != nil {
			if v.BankAccountName, err = names.account(ctx, *t.BankAccountID); err != nil {
				return nil, err
			}
		}
		views = append(views, v)
	}

	return &GroupDetail{Group: *g, Transactions: views}, nil
}

func (d *Directory) readableGroup(ctx context.Context, p Principal, id GroupID) (*Group, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}
	g, err := d.store.GetGroup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if g == nil {
		return nil, notFound("group", int64(id))
	}
	if err := d.guard.AuthorizeGroupRead(p, *g); err != nil {
		return nil, err
	}
	return g, nil
}

// =============================================================================
// MEMBERS
// =============================================================================

func (d *Directory) ListMembers(ctx context.Context, p Principal, groupID GroupID) ([]Member, error) {
	g, err := d.readableGroup(ctx, p, groupID)
	if err != nil {
		return nil, err
	}
	return g.Members, nil
}

// AddMember lets the owner add a registered user directly.
func (d *Directory) AddMember(ctx context.Context, p Principal, groupID GroupID, userID UserID) error {
	err := d.store.WithTx(ctx, func(s Store) error {
		g, err := loadGroup(ctx, s, groupID)
		if err != nil {
			return err
		}
		if err := d.guard.AuthorizeMemberChange(p, *g, userID, false); err != nil {
			return err
		}

		u, err := s.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if u == nil {
			return notFound("user", int64(userID))
		}

		if err := s.AddMember(ctx, groupID, userID); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return &ConflictError{Reason: "user is already a member", Field: "userId"}
			}
			return fmt.Errorf("add member: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.log.Info().Int64("group_id", int64(groupID)).Int64("member_id", int64(userID)).Msg("member added")
	return nil
}

// RemoveMember lets the owner remove anyone but themselves and any member
// leave.
func (d *Directory) RemoveMember(ctx context.Context, p Principal, groupID GroupID, userID UserID) error {
	err := d.store.WithTx(ctx, func(s Store) error {
		g, err := loadGroup(ctx, s, groupID)
		if err != nil {
			return err
		}
		if err := d.guard.AuthorizeMemberChange(p, *g, userID, true); err != nil {
			return err
		}
		if !g.HasMember(userID) {
			return notFound("member", int64(userID))
		}
		if err := s.RemoveMember(ctx, groupID, userID); err != nil {
			return fmt.Errorf("remove member: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.log.Info().Int64("group_id", int64(groupID)).Int64("member_id", int64(userID)).Msg("member removed")
	return nil
}

func loadGroup(ctx context.Context, s Reader, id GroupID) (*Group, error) {
	g, err := s.GetGroup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if g == nil {
		return nil, notFound("group", int64(id))
	}
	return g, nil
}

// =============================================================================
// INVITATIONS
// =============================================================================

// Invite asks the user registered under email to join the group. The
// sender must be a member.
func (d *Directory) Invite(ctx context.Context, p Principal, groupID GroupID, email string) error {
	if !p.Authenticated() {
		return ErrUnauthorized
	}
	email = NormalizeEmail(email)
	if email == "" {
		return (&ValidationError{}).Add("email", "is required")
	}

	return d.store.WithTx(ctx, func(s Store) error {
		g, err := loadGroup(ctx, s, groupID)
		if err != nil {
			return err
		}
		if err := d.guard.AuthorizeGroupRead(p, *g); err != nil {
			return err
		}

		target, err := s.GetUserByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("get user by email: %w", err)
		}
		if target == nil || g.HasMember(target.ID) {
			return nil
		}

		pending, err := s.FindPendingInvitation(ctx, target.ID, groupID)
		if err != nil {
			return fmt.Errorf("find pending invitation: %w", err)
		}
		if pending != nil {
			return nil
		}

		inv := Invitation{
			SenderID:   p.UserID,
			ReceiverID: target.ID,
			GroupID:    groupID,
			Status:     InvitationPending,
			CreatedAt:  d.now(),
		}
		if err := s.CreateInvitation(ctx, &inv); err != nil {
			return fmt.Errorf("create invitation: %w", err)
		}
		d.log.Info().Int64("invitation_id", int64(inv.ID)).Int64("group_id", int64(groupID)).Msg("invitation sent")
		return nil
	})
}

// RespondInvitation accepts or rejects. Receiver only.
func (d *Directory) RespondInvitation(ctx context.Context, p Principal, id InvitationID, status InvitationStatus) (*Invitation, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}
	if status != InvitationAccepted && status != InvitationRejected {
		return nil, (&ValidationError{}).Add("status", "must be ACCEPTED or REJECTED")
	}

	var out Invitation
	err := d.store.WithTx(ctx, func(s Store) error {
		inv, err := s.GetInvitation(ctx, id)
		if err != nil {
			return fmt.Errorf("get invitation: %w", err)
		}
		if inv == nil {
			return notFound("invitation", int64(id))
		}
		if err := d.guard.AuthorizeInvitationResponse(p, *inv); err != nil {
			return err
		}

		if status == InvitationAccepted {
			member, err := s.IsMember(ctx, inv.GroupID, inv.ReceiverID)
			if err != nil {
				return fmt.Errorf("check membership: %w", err)
			}
			if !member {
				if err := s.AddMember(ctx, inv.GroupID, inv.ReceiverID); err != nil && !errors.Is(err, ErrAlreadyExists) {
					return fmt.Errorf("add member: %w", err)
				}
			}
		}

		if err := s.UpdateInvitationStatus(ctx, id, status); err != nil {
			return fmt.Errorf("update invitation: %w", err)
		}
		out = *inv
		out.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.log.Info().Int64("invitation_id", int64(id)).Str("status", string(status)).Msg("invitation answered")
	return &out, nil
}

func (d *Directory) PendingInvitations(ctx context.Context, p Principal) ([]Invitation, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}
	invs, err := d.store.ListPendingInvitations(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invs, nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (d *Directory) GroupCategories(ctx context.Context, p Principal, groupID GroupID) ([]GroupCategory, error) {
	if _, err := d.readableGroup(ctx, p, groupID); err != nil {
		return nil, err
	}
	cats, err := d.store.ListGroupCategories(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group categories: %w", err)
	}
	return cats, nil
}

func (d *Directory) CreateGroupCategory(ctx context.Context, p Principal, groupID GroupID, name string) (*GroupCategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, (&ValidationError{}).Add("name", "is required")
	}
	if _, err := d.readableGroup(ctx, p, groupID); err != nil {
		return nil, err
	}

	c := GroupCategory{GroupID: groupID, Name: name}
	err := d.store.WithTx(ctx, func(s Store) error {
		if err := s.CreateGroupCategory(ctx, &c); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return &ConflictError{Reason: "category already exists in this group", Field: "name"}
			}
			return fmt.Errorf("create group category: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (d *Directory) UserCategories(ctx context.Context, p Principal) ([]UserCategory, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}
	cats, err := d.store.ListUserCategories(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("list user categories: %w", err)
	}
	return cats, nil
}

// =============================================================================
// BANK ACCOUNTS
// =============================================================================

type CreateBankAccountInput struct {
	Name           string
	Bank           string
	OpeningBalance decimal.Decimal
}

func (in CreateBankAccountInput) Validate() error {
	v := &ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		v.Add("name", "is required")
	}
	if strings.TrimSpace(in.Bank) == "" {
		v.Add("bank", "is required")
	}
	switch {
	case in.OpeningBalance.IsNegative():
		v.Add("balance", "must not be negative")
	case !in.OpeningBalance.Equal(in.OpeningBalance.Round(2)):
		v.Add("balance", "must have at most two decimal places")
	}
	return v.OrNil()
}

func (d *Directory) CreateBankAccount(ctx context.Context, p Principal, in CreateBankAccountInput) (*BankAccount, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	a := BankAccount{
		UserID:    p.UserID,
		Name:      strings.TrimSpace(in.Name),
		Bank:      strings.TrimSpace(in.Bank),
		Balance:   in.OpeningBalance,
		Active:    true,
		CreatedAt: d.now(),
	}
	err := d.store.WithTx(ctx, func(s Store) error {
		if err := s.CreateBankAccount(ctx, &a); err != nil {
			return fmt.Errorf("create bank account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.log.Info().Int64("account_id", int64(a.ID)).Int64("user_id", int64(p.UserID)).Msg("bank account created")
	return &a, nil
}

// BankAccounts lists the principal's active accounts.
func (d *Directory) BankAccounts(ctx context.Context, p Principal) ([]BankAccount, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}
	accounts, err := d.store.ListBankAccounts(ctx, p.UserID, true)
	if err != nil {
		return nil, fmt.Errorf("list bank accounts: %w", err)
	}
	return accounts, nil
}

// =============================================================================
// NAME RESOLUTION
// =============================================================================

// nameCache resolves display names once per request.
type nameCache struct {
	store    Reader
	users    map[UserID]string
	accounts map[AccountID]string
	cats     map[CategoryRef]string
}

func newNameCache(store Reader) *nameCache {
	return &nameCache{
		store:    store,
		users:    make(map[UserID]string),
		accounts: make(map[AccountID]string),
		cats:     make(map[CategoryRef]string),
	}
}

func (c *nameCache) user(ctx context.Context, id UserID) (string, error) {
	if n, ok := c.users[id]; ok {
		return n, nil
	}
	u, err := c.store.GetUser(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	var n string
	if u != nil {
		n = u.Name
	}
	c.users[id] = n
	return n, nil
}

func (c *nameCache) account(ctx context.Context, id AccountID) (string, error) {
	if n, ok := c.accounts[id]; ok {
		return n, nil
	}
	a, err := c.store.GetBankAccount(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get bank account: %w", err)
	}
	var n string
	if a != nil {
		n = a.Name
	}
	c.accounts[id] = n
	return n, nil
}

func (c *nameCache) category(ctx context.Context, ref CategoryRef) (string, error) {
	if ref.IsNone() {
		return "", nil
	}
	if n, ok := c.cats[ref]; ok {
		return n, nil
	}

	var n string
	switch ref.Kind {
	case CategoryUser:
		uc, err := c.store.GetUserCategory(ctx, ref.ID)
		if err != nil {
			return "", fmt.Errorf("get user category: %w", err)
		}
		if uc != nil {
			n = uc.Name
		}
	case CategoryGroup:
		gc, err := c.store.GetGroupCategory(ctx, ref.ID)
		if err != nil {
			return "", fmt.Errorf("get group category: %w", err)
		}
		if gc != nil {
			n = gc.Name
		}
	}
	c.cats[ref] = n
	return n, nil
}
