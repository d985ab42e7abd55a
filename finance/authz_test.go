package finance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/finance-engine/finance"
)

func TestGuard_AuthorizeTransaction(t *testing.T) {
	const (
		owner   finance.UserID = 1
		creator finance.UserID = 2
		member  finance.UserID = 3
		other   finance.UserID = 4
	)
	g := finance.Group{
		ID:      10,
		OwnerID: owner,
		Members: []finance.Member{{UserID: owner}, {UserID: creator}, {UserID: member}},
	}
	tx := finance.Transaction{ID: 100, CreatedBy: creator, GroupID: g.ID}

	tests := []struct {
		name    string
		user    finance.UserID
		action  finance.Action
		wantErr error
	}{
		{"creator reads", creator, finance.ActionRead, nil},
		{"creator mutates", creator, finance.ActionMutate, nil},
		{"owner mutates", owner, finance.ActionMutate, nil},
		{"member reads", member, finance.ActionRead, nil},
		{"member cannot mutate", member, finance.ActionMutate, finance.ErrForbidden},
		{"stranger cannot read", other, finance.ActionRead, finance.ErrNotFound},
		{"stranger cannot mutate", other, finance.ActionMutate, finance.ErrNotFound},
		{"no session", 0, finance.ActionRead, finance.ErrUnauthorized},
	}

	var guard finance.Guard
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.AuthorizeTransaction(finance.Principal{UserID: tt.user}, tx, g, tt.action)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGuard_CreatorOutsideGroupKeepsAccess(t *testing.T) {
	g := finance.Group{ID: 1, OwnerID: 1, Members: []finance.Member{{UserID: 1}}}
	tx := finance.Transaction{ID: 5, CreatedBy: 9, GroupID: 1}

	var guard finance.Guard
	assert.NoError(t, guard.AuthorizeTransaction(finance.Principal{UserID: 9}, tx, g, finance.ActionMutate))
}

func TestGuard_AuthorizeMemberChange(t *testing.T) {
	g := finance.Group{ID: 1, OwnerID: 1, Members: []finance.Member{{UserID: 1}, {UserID: 2}, {UserID: 3}}}

	tests := []struct {
		name     string
		actor    finance.UserID
		target   finance.UserID
		removing bool
		wantErr  error
	}{
		{"owner adds", 1, 5, false, nil},
		{"owner removes member", 1, 2, true, nil},
		{"owner cannot remove self", 1, 1, true, finance.ErrConflict},
		{"member leaves", 2, 2, true, nil},
		{"member cannot remove another", 2, 3, true, finance.ErrForbidden},
		{"member cannot add", 2, 5, false, finance.ErrForbidden},
		{"stranger", 9, 9, true, finance.ErrForbidden},
	}

	var guard finance.Guard
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.AuthorizeMemberChange(finance.Principal{UserID: tt.actor}, g, tt.target, tt.removing)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGuard_GroupReadAndInvitation(t *testing.T) {
	var guard finance.Guard
	g := finance.Group{ID: 1, OwnerID: 1, Members: []finance.Member{{UserID: 1}, {UserID: 2}}}

	assert.NoError(t, guard.AuthorizeGroupRead(finance.Principal{UserID: 2}, g))
	assert.ErrorIs(t, guard.AuthorizeGroupRead(finance.Principal{UserID: 3}, g), finance.ErrForbidden)
	assert.ErrorIs(t, guard.AuthorizeGroupRead(finance.Principal{}, g), finance.ErrUnauthorized)

	inv := finance.Invitation{ID: 1, SenderID: 1, ReceiverID: 3, GroupID: 1}
	assert.NoError(t, guard.AuthorizeInvitationResponse(finance.Principal{UserID: 3}, inv))
	assert.ErrorIs(t, guard.AuthorizeInvitationResponse(finance.Principal{UserID: 1}, inv), finance.ErrForbidden)
}
