package claims

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/model"
)

type fakeHierarchy struct {
	users map[string]*model.User
}

func (f *fakeHierarchy) UserBySubject(_ context.Context, subjectUID string) (*model.User, error) {
	user, ok := f.users[subjectUID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func acmeUser() *model.User {
	tenantUser := &model.TenantUser{
		ID:       11,
		TenantID: 5,
		UserID:   3,
		Role:     "manager",
		IsActive: true,
		Tenant:   model.Tenant{ID: 5, Name: "Acme"},
		TenantOrgUsers: []model.TenantOrgUser{
			{TenantOrgID: 9, TenantUserID: 11, Permission: "read"},
			{TenantOrgID: 2, TenantUserID: 11, Permission: "read-write"},
		},
	}
	return &model.User{ID: 3, UID: "subject-u1", Email: "u1@acme.test", DefaultTenantUser: tenantUser}
}

func TestResolveBuildsClaimsFromDefaultTenant(t *testing.T) {
	resolver := NewResolver(&fakeHierarchy{users: map[string]*model.User{"subject-u1": acmeUser()}})

	payload, err := resolver.Resolve(context.Background(), "subject-u1")
	require.NoError(t, err)

	assert.Equal(t, PayloadVersion, payload.Version)
	assert.Equal(t, uint(3), payload.UserID)
	assert.Equal(t, uint(5), payload.TenantID)
	assert.Equal(t, uint(11), payload.TenantUserID)
	assert.Equal(t, "Acme", payload.TenantName)
	assert.Equal(t, RoleManager, payload.Role)

	// Org memberships come back sorted by org id regardless of load order
	require.Len(t, payload.TenantOrgs, 2)
	assert.Equal(t, uint(2), payload.TenantOrgs[0].TenantOrgID)
	assert.Equal(t, PermissionReadWrite, payload.TenantOrgs[0].Permission)
	assert.Equal(t, uint(9), payload.TenantOrgs[1].TenantOrgID)
	assert.Equal(t, PermissionRead, payload.TenantOrgs[1].Permission)
}

func TestResolveIsDeterministic(t *testing.T) {
	resolver := NewResolver(&fakeHierarchy{users: map[string]*model.User{"subject-u1": acmeUser()}})

	first, err := resolver.Resolve(context.Background(), "subject-u1")
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), "subject-u1")
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)
}

func TestResolveUnknownSubject(t *testing.T) {
	resolver := NewResolver(&fakeHierarchy{users: map[string]*model.User{}})

	payload, err := resolver.Resolve(context.Background(), "subject-missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Nil(t, payload)
}

func TestResolveNeverReturnsPartialClaims(t *testing.T) {
	t.Run("no default tenant user", func(t *testing.T) {
		user := acmeUser()
		user.DefaultTenantUser = nil
		resolver := NewResolver(&fakeHierarchy{users: map[string]*model.User{"subject-u1": user}})

		payload, err := resolver.Resolve(context.Background(), "subject-u1")
		assert.ErrorIs(t, err, ErrNoActiveTenant)
		assert.Nil(t, payload)
	})

	t.Run("deactivated membership", func(t *testing.T) {
		user := acmeUser()
		user.DefaultTenantUser.IsActive = false
		resolver := NewResolver(&fakeHierarchy{users: map[string]*model.User{"subject-u1": user}})

		payload, err := resolver.Resolve(context.Background(), "subject-u1")
		assert.ErrorIs(t, err, ErrNoActiveTenant)
		assert.Nil(t, payload)
	})

	t.Run("role outside the closed set", func(t *testing.T) {
		user := acmeUser()
		user.DefaultTenantUser.Role = "superuser"
		resolver := NewResolver(&fakeHierarchy{users: map[string]*model.User{"subject-u1": user}})

		payload, err := resolver.Resolve(context.Background(), "subject-u1")
		assert.ErrorIs(t, err, ErrUnknownRole)
		assert.Nil(t, payload)
	})
}

func TestRoleAllows(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleAdministrator, ActionManageTenant, true},
		{RoleAdministrator, ActionManageDocuments, true},
		{RoleAdministrator, ActionCapture, true},
		{RoleManager, ActionManageTenant, false},
		{RoleManager, ActionManageDocuments, true},
		{RoleManager, ActionCapture, true},
		{RoleIndividual, ActionManageTenant, false},
		{RoleIndividual, ActionManageDocuments, false},
		{RoleIndividual, ActionCapture, true},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, tc.role.Allows(tc.action), "%s / %s", tc.role, tc.action)
	}
}

func TestParseRoleRejectsUnknown(t *testing.T) {
	for _, valid := range []string{"administrator", "manager", "individual"} {
		role, err := ParseRole(valid)
		require.NoError(t, err)
		assert.Equal(t, Role(valid), role)
	}

	_, err := ParseRole("owner")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestOrgPermissionFor(t *testing.T) {
	payload := &Claims{TenantOrgs: []OrgMembership{
		{TenantOrgID: 2, Permission: PermissionReadWrite},
		{TenantOrgID: 9, Permission: PermissionRead},
	}}

	perm, ok := payload.OrgPermissionFor(2)
	assert.True(t, ok)
	assert.Equal(t, PermissionReadWrite, perm)

	_, ok = payload.OrgPermissionFor(7)
	assert.False(t, ok)
}
