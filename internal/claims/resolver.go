package claims

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/model"
)

var (
	// ErrUserNotFound signals that no user exists for the verified subject id.
	ErrUserNotFound = errors.New("user not found for subject")

	// ErrNoActiveTenant signals that the user has no active default tenant
	// membership. This is a terminal state the caller must act on by
	// completing tenant onboarding; it is not retried.
	ErrNoActiveTenant = errors.New("user does not have access to an active tenant")
)

// HierarchyStore is the read side of the tenant hierarchy the resolver
// consumes. Implementations return the user with the default tenant user,
// its tenant and its org memberships loaded, or ErrUserNotFound.
type HierarchyStore interface {
	UserBySubject(ctx context.Context, subjectUID string) (*model.User, error)
}

// Resolver derives the authorization claims payload from a verified subject
// id and the current hierarchy state. Resolution is a pure read: the same
// hierarchy state always yields an identical payload.
type Resolver struct {
	store HierarchyStore
}

func NewResolver(store HierarchyStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve looks up the user behind a verified subject id and assembles its
// claims from the active default tenant membership.
func (r *Resolver) Resolve(ctx context.Context, subjectUID string) (*Claims, error) {
	user, err := r.store.UserBySubject(ctx, subjectUID)
	if err != nil {
		return nil, err
	}

	tenantUser := user.DefaultTenantUser
	if tenantUser == nil || !tenantUser.IsActive {
		return nil, ErrNoActiveTenant
	}

	role, err := ParseRole(tenantUser.Role)
	if err != nil {
		return nil, fmt.Errorf("resolving claims for subject %s: %w", subjectUID, err)
	}

	orgs := make([]OrgMembership, 0, len(tenantUser.TenantOrgUsers))
	for _, orgUser := range tenantUser.TenantOrgUsers {
		orgs = append(orgs, OrgMembership{
			TenantOrgID: orgUser.TenantOrgID,
			Permission:  OrgPermission(orgUser.Permission),
		})
	}
	// Stable ordering keeps repeated resolutions byte-identical.
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].TenantOrgID < orgs[j].TenantOrgID })

	return &Claims{
		Version:      PayloadVersion,
		UserID:       user.ID,
		TenantID:     tenantUser.TenantID,
		TenantUserID: tenantUser.ID,
		TenantName:   tenantUser.Tenant.Name,
		Role:         role,
		TenantOrgs:   orgs,
	}, nil
}
