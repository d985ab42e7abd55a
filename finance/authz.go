/*
authz.go - Authorization Guard

PURPOSE:
  One place that answers "may this principal act on this transaction,
  group or invitation". Decisions are made against freshly loaded
  relations on every call; nothing is cached between requests.

POLICY:
  Transaction read:    creator, group owner, or group member
  Transaction mutate:  creator or group owner
  Group read:          group member (the owner is a member from creation)
  Member management:   group owner; members may remove themselves
  Invitation send:     group member
  Invitation respond:  the receiver only

NOT-FOUND FOLDING:
  A principal who cannot even read a transaction gets ErrNotFound, not
  ErrForbidden, so the existence of other people's rows does not leak.
  Readers who cannot mutate get ErrForbidden.
*/
package finance

type Action int

const (
	ActionRead Action = iota
	ActionMutate
)

// Guard is stateless; the zero value is ready to use.
type Guard struct{}

func (Guard) requireSession(p Principal) error {
	if !p.Authenticated() {
		return ErrUnauthorized
	}
	return nil
}

// CanReadTransaction expects g to carry its member set.
func (Guard) CanReadTransaction(p Principal, t Transaction, g Group) bool {
	return t.CreatedBy == p.UserID || g.OwnerID == p.UserID || g.HasMember(p.UserID)
}

func (Guard) CanMutateTransaction(p Principal, t Transaction, g Group) bool {
	return t.CreatedBy == p.UserID || g.OwnerID == p.UserID
}

// AuthorizeTransaction returns nil, ErrUnauthorized, a NotFoundError or
// ErrForbidden.
func (gd Guard) AuthorizeTransaction(p Principal, t Transaction, g Group, action Action) error {
	if err := gd.requireSession(p); err != nil {
		return err
	}
	if !gd.CanReadTransaction(p, t, g) {
		return notFound("transaction", int64(t.ID))
	}
	if action == ActionMutate && !gd.CanMutateTransaction(p, t, g) {
		return ErrForbidden
	}
	return nil
}

func (Guard) CanReadGroup(p Principal, g Group) bool {
	return g.OwnerID == p.UserID || g.HasMember(p.UserID)
}

// AuthorizeGroupRead returns ErrForbidden for non-members.
func (gd Guard) AuthorizeGroupRead(p Principal, g Group) error {
	if err := gd.requireSession(p); err != nil {
		return err
	}
	if !gd.CanReadGroup(p, g) {
		return ErrForbidden
	}
	return nil
}

// AuthorizeMemberChange allows the owner to manage anyone but themselves,
// and any member to remove themselves.
func (gd Guard) AuthorizeMemberChange(p Principal, g Group, target UserID, removing bool) error {
	if err := gd.requireSession(p); err != nil {
		return err
	}
	if !gd.CanReadGroup(p, g) {
		return ErrForbidden
	}
	if removing && target == g.OwnerID {
		return &ConflictError{Reason: "the group owner cannot be removed"}
	}
	if g.OwnerID == p.UserID {
		return nil
	}
	if removing && target == p.UserID {
		return nil
	}
	return ErrForbidden
}

// AuthorizeInvitationResponse allows only the receiver.
func (gd Guard) AuthorizeInvitationResponse(p Principal, inv Invitation) error {
	if err := gd.requireSession(p); err != nil {
		return err
	}
	if inv.ReceiverID != p.UserID {
		return ErrForbidden
	}
	return nil
}
