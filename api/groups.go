package api

import (
	"net/http"
	"strconv"

	"github.com/warp/finance-engine/auth"
	"github.com/warp/finance-engine/finance"
)

// =============================================================================
// GROUP ENDPOINTS
// =============================================================================

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Directory.ListGroups(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]GroupDTO, len(groups))
	for i, g := range groups {
		dtos[i] = toGroupDTO(g)
	}
	writeList(w, dtos)
}

// CreateGroup creates a shared group owned by the caller.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := h.schemas.decode(r, "group_create", &req); err != nil {
		writeError(w, r, err)
		return
	}

	g, err := h.Directory.CreateGroup(r.Context(), auth.PrincipalFrom(r.Context()), req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, DataResponse{Data: toGroupDTO(*g), Message: "group created"})
}

// GetGroup returns members and transactions with resolved names.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	d, err := h.Directory.GroupDetail(r.Context(), auth.PrincipalFrom(r.Context()), finance.GroupID(id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: toGroupDetailDTO(*d)})
}

// =============================================================================
// MEMBER ENDPOINTS
// =============================================================================

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	members, err := h.Directory.ListMembers(r.Context(), auth.PrincipalFrom(r.Context()), finance.GroupID(id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, toMemberDTOs(members))
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req AddMemberRequest
	if err := h.schemas.decode(r, "member_add", &req); err != nil {
		writeError(w, r, err)
		return
	}

	p := auth.PrincipalFrom(r.Context())
	if err := h.Directory.AddMember(r.Context(), p, finance.GroupID(id), finance.UserID(req.UserID)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, DataResponse{Data: nil, Message: "member added"})
}

// RemoveMember removes a member. Members may remove themselves.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := parseID(r, "userId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	p := auth.PrincipalFrom(r.Context())
	if err := h.Directory.RemoveMember(r.Context(), p, finance.GroupID(id), finance.UserID(userID)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: nil, Message: "member removed"})
}

// =============================================================================
// INVITATION ENDPOINTS
// =============================================================================

func (h *Handler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	invs, err := h.Directory.PendingInvitations(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]InvitationDTO, len(invs))
	for i, inv := range invs {
		dtos[i] = toInvitationDTO(inv)
	}
	writeList(w, dtos)
}

// Invite answers the same way whether or not the email is registered, so
// the endpoint cannot be used to probe for accounts.
func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	var req InviteRequest
	if err := h.schemas.decode(r, "invitation_create", &req); err != nil {
		writeError(w, r, err)
		return
	}

	p := auth.PrincipalFrom(r.Context())
	if err := h.Directory.Invite(r.Context(), p, finance.GroupID(req.GroupID), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: nil, Message: "if the email is registered, an invitation was sent"})
}

func (h *Handler) RespondInvitation(w http.ResponseWriter, r *http.Request) {
	var req RespondInvitationRequest
	if err := h.schemas.decode(r, "invitation_respond", &req); err != nil {
		writeError(w, r, err)
		return
	}

	p := auth.PrincipalFrom(r.Context())
	inv, err := h.Directory.RespondInvitation(r.Context(), p, finance.InvitationID(req.InvitationID), finance.InvitationStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: toInvitationDTO(*inv), Message: "invitation answered"})
}

// =============================================================================
// CATEGORY ENDPOINTS
// =============================================================================

// ListGroupCategories answers GET /api/categories?groupId=n.
func (h *Handler) ListGroupCategories(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(r.URL.Query().Get("groupId"), 10, 64)
	if err != nil || groupID <= 0 {
		writeError(w, r, (&finance.ValidationError{}).Add("groupId", "must be a positive integer"))
		return
	}

	cats, err := h.Directory.GroupCategories(r.Context(), auth.PrincipalFrom(r.Context()), finance.GroupID(groupID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]CategoryDTO, len(cats))
	for i, c := range cats {
		dtos[i] = CategoryDTO{ID: int64(c.ID), Kind: string(finance.CategoryGroup), Name: c.Name}
	}
	writeList(w, dtos)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if err := h.schemas.decode(r, "category_create", &req); err != nil {
		writeError(w, r, err)
		return
	}

	p := auth.PrincipalFrom(r.Context())
	c, err := h.Directory.CreateGroupCategory(r.Context(), p, finance.GroupID(req.GroupID), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dto := CategoryDTO{ID: int64(c.ID), Kind: string(finance.CategoryGroup), Name: c.Name}
	writeJSON(w, http.StatusCreated, DataResponse{Data: dto, Message: "category created"})
}

func (h *Handler) ListMyCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Directory.UserCategories(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]CategoryDTO, len(cats))
	for i, c := range cats {
		dtos[i] = CategoryDTO{ID: int64(c.ID), Kind: string(finance.CategoryUser), Name: c.Name}
	}
	writeList(w, dtos)
}

// =============================================================================
// BANK ACCOUNT ENDPOINTS
// =============================================================================

func (h *Handler) ListBankAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Directory.BankAccounts(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]BankAccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toBankAccountDTO(a)
	}
	writeList(w, dtos)
}

func (h *Handler) CreateBankAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateBankAccountRequest
	if err := h.schemas.decode(r, "bank_account_create", &req); err != nil {
		writeError(w, r, err)
		return
	}

	a, err := h.Directory.CreateBankAccount(r.Context(), auth.PrincipalFrom(r.Context()), finance.CreateBankAccountInput{
		Name:           req.Name,
		Bank:           req.Bank,
		OpeningBalance: req.Balance,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, DataResponse{Data: toBankAccountDTO(*a), Message: "bank account created"})
}
