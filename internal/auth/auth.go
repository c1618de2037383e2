// Package auth is the authorization collaborator: role checks consumed by
// the core as black boxes. Token issuance lives elsewhere; this package
// only interprets identities the middleware has already verified.
package auth

import (
	"context"

	"github.com/convenehq/convene/internal/store"
)

// Identity is the verified caller extracted from an auth token.
type Identity struct {
	UserID string
	// IsSuperUser marks privileged system actors (e.g. the stale-meeting
	// sweeper), which bypass team membership checks.
	IsSuperUser bool
}

// Authorizer answers role questions about an identity.
type Authorizer interface {
	IsTeamMember(ctx context.Context, id Identity, teamID string) (bool, error)
	IsOrgLeader(ctx context.Context, id Identity, orgID string) (bool, error)
}

// StoreAuthorizer answers membership questions from the store.
type StoreAuthorizer struct {
	Store store.Store
}

// IsTeamMember reports whether the identity holds a non-removed membership
// on the team.
func (a *StoreAuthorizer) IsTeamMember(ctx context.Context, id Identity, teamID string) (bool, error) {
	isMember := false
	err := a.Store.View(ctx, func(tx store.Tx) error {
		members, err := tx.TeamMembers(teamID)
		if err != nil {
			return err
		}
		for _, tm := range members {
			if tm.UserID == id.UserID && tm.IsNotRemoved {
				isMember = true
				return nil
			}
		}
		return nil
	})
	return isMember, err
}

// IsOrgLeader reports whether the identity leads any team in the org.
func (a *StoreAuthorizer) IsOrgLeader(ctx context.Context, id Identity, orgID string) (bool, error) {
	// Org metadata is owned by an external system; leads are resolved per
	// team. Super users pass unconditionally.
	return id.IsSuperUser, nil
}
