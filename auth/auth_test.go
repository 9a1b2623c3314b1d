package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/types"
)

func testCall() types.Call {
	return types.Call{Clock: types.BlockClock{BlockHeight: 1, BlockTime: 100}, Events: &types.EventLog{}}
}

func TestGrantRevoke(t *testing.T) {
	st := State{}
	reg := NewRegistry(&st)
	alice := types.ModuleAddress("test/alice")
	bob := types.ModuleAddress("test/bob")
	call := testCall()

	require.NoError(t, reg.Grant(call, RoleAuditor, alice))
	require.NoError(t, reg.Grant(call, RoleAuditor, bob))
	require.NoError(t, reg.Grant(call, RoleGuardian, bob))

	assert.True(t, reg.HasRole(RoleAuditor, alice))
	assert.False(t, reg.HasRole(RoleGuardian, alice))
	assert.Len(t, reg.Holders(RoleAuditor), 2)

	require.ErrorIs(t, reg.Grant(call, RoleAuditor, alice), dao.ErrAlreadyDone)
	require.ErrorIs(t, reg.Grant(call, "emperor", alice), dao.ErrInvalidInput)

	require.NoError(t, reg.Revoke(call, RoleAuditor, alice))
	assert.False(t, reg.HasRole(RoleAuditor, alice))
	require.ErrorIs(t, reg.Revoke(call, RoleAuditor, alice), dao.ErrInvalidState)

	assert.Len(t, call.Events.Events(), 4)
}

func TestRequire(t *testing.T) {
	st := State{}
	reg := NewRegistry(&st)
	alice := types.ModuleAddress("test/alice")

	require.ErrorIs(t, Require(reg, RoleGuardian, alice), dao.ErrUnauthorized)
	require.ErrorIs(t, Require(nil, RoleGuardian, alice), dao.ErrUnauthorized)
	require.NoError(t, reg.Grant(testCall(), RoleGuardian, alice))
	require.NoError(t, Require(reg, RoleGuardian, alice))
}
