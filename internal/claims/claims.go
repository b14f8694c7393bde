package claims

import (
	"errors"
	"fmt"
)

// PayloadVersion is the claims payload schema version. Resolution is
// deterministic, so the version is part of the value rather than a counter.
const PayloadVersion = 1

// Role is the closed set of roles a tenant user can hold.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleManager       Role = "manager"
	RoleIndividual    Role = "individual"
)

// ErrUnknownRole is returned when a stored role string is outside the closed set.
var ErrUnknownRole = errors.New("unknown tenant user role")

// ParseRole maps a stored role string onto the closed enumeration.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdministrator, RoleManager, RoleIndividual:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Action names an operation gated by role. Every endpoint that needs a role
// check resolves it through Role.Allows rather than branching on the string.
type Action string

const (
	// ActionManageTenant covers tenant updates, org creation and membership edits.
	ActionManageTenant Action = "manage-tenant"
	// ActionManageDocuments covers document config, template and grant management.
	ActionManageDocuments Action = "manage-documents"
	// ActionCapture covers chip sessions, registrations and document links.
	ActionCapture Action = "capture"
)

// Allows is the single permission-resolution function for role checks.
func (r Role) Allows(a Action) bool {
	switch a {
	case ActionManageTenant:
		return r == RoleAdministrator
	case ActionManageDocuments:
		return r == RoleAdministrator || r == RoleManager
	case ActionCapture:
		return r == RoleAdministrator || r == RoleManager || r == RoleIndividual
	}
	return false
}

// OrgPermission is the permission level a tenant user holds within one org.
type OrgPermission string

const (
	PermissionRead      OrgPermission = "read"
	PermissionReadWrite OrgPermission = "read-write"
)

// OrgMembership is one tenant-org membership entry inside a claims payload.
type OrgMembership struct {
	TenantOrgID uint          `json:"tenant_org_id"`
	Permission  OrgPermission `json:"permission"`
}

// Claims is the derived authorization payload embedded in a verified identity
// token. It is assembled once by the resolver and never mutated afterwards
// within a request; re-issuance is a distinct operation.
type Claims struct {
	Version      int             `json:"version"`
	UserID       uint            `json:"user_id"`
	TenantID     uint            `json:"tenant_id"`
	TenantUserID uint            `json:"tenant_user_id"`
	TenantName   string          `json:"tenant_name,omitempty"`
	Role         Role            `json:"role"`
	TenantOrgs   []OrgMembership `json:"tenant_orgs"`
}

// OrgPermissionFor returns the caller's permission within a tenant org, or
// false when the claims carry no membership for it.
func (c *Claims) OrgPermissionFor(tenantOrgID uint) (OrgPermission, bool) {
	for _, m := range c.TenantOrgs {
		if m.TenantOrgID == tenantOrgID {
			return m.Permission, true
		}
	}
	return "", false
}
