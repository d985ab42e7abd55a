/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the finance model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Envelopes and wrappers

MONEY:
  Amounts are accepted as a JSON number or a decimal string and always
  returned as a string with two decimal places ("150.00"), so clients never
  round-trip a float.

ENVELOPE:
  Successful responses are {"data": ..., "message": ...}; listings add
  "count". Errors are ErrorResponse.

SEE ALSO:
  - handlers.go, groups.go: Use these types
  - errors.go: ErrorResponse details
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/finance-engine/finance"
)

// =============================================================================
// ENVELOPES
// =============================================================================

// DataResponse wraps every successful payload.
type DataResponse struct {
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
	Count   *int   `json:"count,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Nullable distinguishes an absent field from an explicit null.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// =============================================================================
// AUTH
// =============================================================================

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

type SessionDTO struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expiresAt"`
	User      UserDTO `json:"user"`
}

func toUserDTO(u finance.User) UserDTO {
	return UserDTO{ID: int64(u.ID), Name: u.Name, Email: u.Email, CreatedAt: formatTime(u.CreatedAt)}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// CategoryRefDTO is {"kind": "user"|"group", "id": n}.
type CategoryRefDTO struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

func (c *CategoryRefDTO) toRef() finance.CategoryRef {
	if c == nil {
		return finance.NoCategory()
	}
	return finance.CategoryRef{Kind: finance.CategoryKind(c.Kind), ID: finance.CategoryID(c.ID)}
}

func toCategoryRefDTO(ref finance.CategoryRef) *CategoryRefDTO {
	if ref.IsNone() {
		return nil
	}
	return &CategoryRefDTO{Kind: string(ref.Kind), ID: int64(ref.ID)}
}

type CreateTransactionRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	Description   string          `json:"description"`
	PaymentMethod string          `json:"paymentMethod"`
	GroupID       int64           `json:"groupId"`
	Status        string          `json:"status"`
	Category      *CategoryRefDTO `json:"category"`
	BankAccountID *int64          `json:"bankAccountId"`
}

func (req CreateTransactionRequest) toInput() finance.CreateTransactionInput {
	return finance.CreateTransactionInput{
		Amount:        req.Amount,
		Type:          finance.TransactionType(req.Type),
		Description:   req.Description,
		PaymentMethod: req.PaymentMethod,
		GroupID:       finance.GroupID(req.GroupID),
		Category:      req.Category.toRef(),
		BankAccountID: accountIDPtr(req.BankAccountID),
		Status:        finance.Status(req.Status),
	}
}

// UpdateTransactionRequest is a partial edit. "category": null clears the
// category and "bankAccountId": null unlinks the account.
type UpdateTransactionRequest struct {
	Amount        *decimal.Decimal         `json:"amount"`
	Type          *string                  `json:"type"`
	Description   *string                  `json:"description"`
	PaymentMethod *string                  `json:"paymentMethod"`
	Status        *string                  `json:"status"`
	Category      Nullable[CategoryRefDTO] `json:"category"`
	BankAccountID Nullable[int64]          `json:"bankAccountId"`
}

func (req UpdateTransactionRequest) toInput() finance.UpdateTransactionInput {
	in := finance.UpdateTransactionInput{
		Amount:        req.Amount,
		Description:   req.Description,
		PaymentMethod: req.PaymentMethod,
	}
	if req.Type != nil {
		t := finance.TransactionType(*req.Type)
		in.Type = &t
	}
	if req.Status != nil {
		s := finance.Status(*req.Status)
		in.Status = &s
	}
	if req.Category.Set {
		ref := req.Category.Value.toRef()
		in.Category = &ref
	}
	if req.BankAccountID.Set {
		in.SetBankAccount = true
		in.BankAccountID = accountIDPtr(req.BankAccountID.Value)
	}
	return in
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type UpdateCategoryRequest struct {
	Category *CategoryRefDTO `json:"category"`
}

type TransactionDTO struct {
	ID            int64           `json:"id"`
	Amount        string          `json:"amount"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Description   string          `json:"description"`
	PaymentMethod string          `json:"paymentMethod"`
	GroupID       int64           `json:"groupId"`
	CreatedByID   int64           `json:"createdById"`
	Category      *CategoryRefDTO `json:"category"`
	BankAccountID *int64          `json:"bankAccountId"`
	CreatedAt     string          `json:"createdAt"`
	UpdatedAt     string          `json:"updatedAt"`

	// Set on group detail only.
	CreatorName     string `json:"creatorName,omitempty"`
	CategoryName    string `json:"categoryName,omitempty"`
	BankAccountName string `json:"bankAccountName,omitempty"`
}

func toTransactionDTO(t finance.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:            int64(t.ID),
		Amount:        money(t.Amount),
		Type:          string(t.Type),
		Status:        string(t.Status),
		Description:   t.Description,
		PaymentMethod: t.PaymentMethod,
		GroupID:       int64(t.GroupID),
		CreatedByID:   int64(t.CreatedBy),
		Category:      toCategoryRefDTO(t.Category),
		CreatedAt:     formatTime(t.CreatedAt),
		UpdatedAt:     formatTime(t.UpdatedAt),
	}
	if t.BankAccountID != nil {
		id := int64(*t.BankAccountID)
		dto.BankAccountID = &id
	}
	return dto
}

func toTransactionDTOs(txs []finance.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTransactionDTO(t)
	}
	return dtos
}

func accountIDPtr(id *int64) *finance.AccountID {
	if id == nil {
		return nil
	}
	a := finance.AccountID(*id)
	return &a
}

// =============================================================================
// BALANCES
// =============================================================================

type GroupBalanceDTO struct {
	GroupID          int64  `json:"groupId"`
	GroupName        string `json:"groupName"`
	Balance          string `json:"balance"`
	TransactionCount int    `json:"transactionCount"`
}

type AccountBalanceDTO struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Bank    string `json:"bank"`
	Balance string `json:"balance"`
}

type BalanceSummaryDTO struct {
	TotalGroups       int    `json:"totalGroups"`
	TotalBankAccounts int    `json:"totalBankAccounts"`
	LastUpdated       string `json:"lastUpdated"`
}

// ConsolidatedDTO answers GET /api/balance.
type ConsolidatedDTO struct {
	TotalBalance        string              `json:"totalBalance"`
	TotalBankBalance    string              `json:"totalBankBalance"`
	ConsolidatedBalance string              `json:"consolidatedBalance"`
	BalanceByGroup      []GroupBalanceDTO   `json:"balanceByGroup"`
	BankAccounts        []AccountBalanceDTO `json:"bankAccounts"`
	Summary             BalanceSummaryDTO   `json:"summary"`
}

func toConsolidatedDTO(c finance.Consolidated, now time.Time) ConsolidatedDTO {
	dto := ConsolidatedDTO{
		TotalBalance:        money(c.GroupsTotal),
		TotalBankBalance:    money(c.BankTotal),
		ConsolidatedBalance: money(c.Total),
		BalanceByGroup:      make([]GroupBalanceDTO, len(c.Groups)),
		BankAccounts:        make([]AccountBalanceDTO, len(c.Accounts)),
		Summary: BalanceSummaryDTO{
			TotalGroups:       len(c.Groups),
			TotalBankAccounts: len(c.Accounts),
			LastUpdated:       formatTime(now),
		},
	}
	for i, g := range c.Groups {
		dto.BalanceByGroup[i] = GroupBalanceDTO{
			GroupID:          int64(g.GroupID),
			GroupName:        g.GroupName,
			Balance:          money(g.Balance),
			TransactionCount: g.TransactionCount,
		}
	}
	for i, a := range c.Accounts {
		dto.BankAccounts[i] = AccountBalanceDTO{ID: int64(a.AccountID), Name: a.Name, Bank: a.Bank, Balance: money(a.Balance)}
	}
	return dto
}

type BalanceBreakdownDTO struct {
	CashBalance string `json:"cashBalance"`
	BankBalance string `json:"bankBalance"`
}

// PersonalBalanceDTO answers GET /api/groups/me.
type PersonalBalanceDTO struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Balance     string              `json:"balance"`
	Breakdown   BalanceBreakdownDTO `json:"breakdown"`
}

func toPersonalBalanceDTO(pb finance.PersonalBalance) PersonalBalanceDTO {
	return PersonalBalanceDTO{
		ID:          int64(pb.GroupID),
		Name:        pb.Name,
		Description: pb.Description,
		Balance:     money(pb.Total),
		Breakdown:   BalanceBreakdownDTO{CashBalance: money(pb.Cash), BankBalance: money(pb.Bank)},
	}
}

// =============================================================================
// GROUPS AND MEMBERS
// =============================================================================

type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type AddMemberRequest struct {
	UserID int64 `json:"userId"`
}

type MemberDTO struct {
	UserID   int64  `json:"userId"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	JoinedAt string `json:"joinedAt"`
}

type GroupDTO struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        string      `json:"type"`
	OwnerID     int64       `json:"ownerId"`
	Members     []MemberDTO `json:"members"`
	CreatedAt   string      `json:"createdAt"`
}

// GroupDetailDTO adds the group's transactions and PAID balance.
type GroupDetailDTO struct {
	GroupDTO
	Balance      string           `json:"balance"`
	Transactions []TransactionDTO `json:"transactions"`
}

func toMemberDTOs(members []finance.Member) []MemberDTO {
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = MemberDTO{UserID: int64(m.UserID), Name: m.Name, Email: m.Email, JoinedAt: formatTime(m.JoinedAt)}
	}
	return dtos
}

func toGroupDTO(g finance.Group) GroupDTO {
	return GroupDTO{
		ID:          int64(g.ID),
		Name:        g.Name,
		Description: g.Description,
		Type:        string(g.Type),
		OwnerID:     int64(g.OwnerID),
		Members:     toMemberDTOs(g.Members),
		CreatedAt:   formatTime(g.CreatedAt),
	}
}

func toGroupDetailDTO(d finance.GroupDetail) GroupDetailDTO {
	txs := make([]finance.Transaction, len(d.Transactions))
	dtos := make([]TransactionDTO, len(d.Transactions))
	for i, v := range d.Transactions {
		txs[i] = v.Transaction
		dto := toTransactionDTO(v.Transaction)
		dto.CreatorName = v.CreatorName
		dto.CategoryName = v.CategoryName
		dto.BankAccountName = v.BankAccountName
		dtos[i] = dto
	}
	return GroupDetailDTO{
		GroupDTO:     toGroupDTO(d.Group),
		Balance:      money(finance.GroupBalance(txs)),
		Transactions: dtos,
	}
}

// =============================================================================
// INVITATIONS
// =============================================================================

type InviteRequest struct {
	GroupID int64  `json:"groupId"`
	Email   string `json:"email"`
}

type RespondInvitationRequest struct {
	InvitationID int64  `json:"invitationId"`
	Status       string `json:"status"`
}

type InvitationDTO struct {
	ID          int64  `json:"id"`
	GroupID     int64  `json:"groupId"`
	GroupName   string `json:"groupName,omitempty"`
	SenderID    int64  `json:"senderId"`
	SenderName  string `json:"senderName,omitempty"`
	SenderEmail string `json:"senderEmail,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

func toInvitationDTO(inv finance.Invitation) InvitationDTO {
	return InvitationDTO{
		ID:          int64(inv.ID),
		GroupID:     int64(inv.GroupID),
		GroupName:   inv.GroupName,
		SenderID:    int64(inv.SenderID),
		SenderName:  inv.SenderName,
		SenderEmail: inv.SenderEmail,
		Status:      string(inv.Status),
		CreatedAt:   formatTime(inv.CreatedAt),
	}
}

// =============================================================================
// CATEGORIES AND BANK ACCOUNTS
// =============================================================================

type CreateCategoryRequest struct {
	GroupID int64  `json:"groupId"`
	Name    string `json:"name"`
}

type CategoryDTO struct {
	ID   int64  `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
}

type CreateBankAccountRequest struct {
	Name    string          `json:"name"`
	Bank    string          `json:"bank"`
	Balance decimal.Decimal `json:"balance"`
}

type BankAccountDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Bank      string `json:"bank"`
	Balance   string `json:"balance"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"createdAt"`
}

func toBankAccountDTO(a finance.BankAccount) BankAccountDTO {
	return BankAccountDTO{
		ID:        int64(a.ID),
		Name:      a.Name,
		Bank:      a.Bank,
		Balance:   money(a.Balance),
		Active:    a.Active,
		CreatedAt: formatTime(a.CreatedAt),
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// DemoLoginDTO is a seeded user's credentials.
type DemoLoginDTO struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
