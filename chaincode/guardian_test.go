package chaincode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assignSet(t *testing.T, world *fakeWorld, guardians []string, policy string, threshold int) *GuardianContract {
	t.Helper()
	g := &GuardianContract{}
	resp, err := g.AssignGuardians(world.as(testPatient), testPatient, guardians, policy, threshold)
	require.NoError(t, err)
	require.True(t, resp.Assigned, resp.Reason)
	return g
}

func TestEmergencyUnlockLifecycle(t *testing.T) {
	world := newWorld()
	guardians := []string{"0xg1", "0xg2", "0xg3"}
	g := assignSet(t, world, guardians, QuorumFixed, 2)
	consent := &ConsentContract{}

	initResp, err := g.InitiateEmergencyUnlock(world.as("0xg1"), testPatient, "0xg1")
	require.NoError(t, err)
	assert.True(t, initResp.Initiated)
	assert.False(t, initResp.Activated)
	assert.Equal(t, 1, initResp.Approvals)
	assert.Equal(t, 2, initResp.Quorum)

	granted, err := consent.HasAccess(world.as(testPatient), testPatient, "0xg1")
	require.NoError(t, err)
	assert.False(t, granted, "no grant before quorum")

	approveResp, err := g.ApproveEmergencyUnlock(world.as("0xg2"), testPatient, "0xg2")
	require.NoError(t, err)
	assert.True(t, approveResp.Activated)
	assert.Equal(t, 2, approveResp.Approvals)

	for _, guardianID := range guardians {
		granted, err := consent.HasAccess(world.as(testPatient), testPatient, guardianID)
		require.NoError(t, err)
		assert.True(t, granted, "every current guardian holds a temporary grant")
	}

	grants, err := consent.GetGrants(world.as(testPatient), testPatient)
	require.NoError(t, err)
	require.Len(t, grants, len(guardians))
	for _, grant := range grants {
		assert.True(t, grant.Emergency)
		assert.False(t, grant.Revoked)
	}

	termResp, err := g.TerminateEmergencyUnlock(world.as(testPatient), testPatient, testPatient)
	require.NoError(t, err)
	assert.True(t, termResp.Terminated)

	for _, guardianID := range guardians {
		granted, err := consent.HasAccess(world.as(testPatient), testPatient, guardianID)
		require.NoError(t, err)
		assert.False(t, granted, "termination revokes the unlock's grants")
	}

	grants, err = consent.GetGrants(world.as(testPatient), testPatient)
	require.NoError(t, err)
	require.Len(t, grants, len(guardians), "revoked grants stay on the ledger")
	for _, grant := range grants {
		assert.True(t, grant.Revoked)
	}

	assert.Len(t, world.eventsNamed(EventEmergencyUnlock), 2, "one activation, one termination")
	assert.Len(t, world.eventsNamed(EventAccessRevoked), len(guardians))
}

func TestApprovalsFromRemovedGuardiansDoNotCount(t *testing.T) {
	world := newWorld()
	g := assignSet(t, world, []string{"0xg1", "0xg2", "0xg3"}, QuorumMajority, 0)
	consent := &ConsentContract{}

	_, err := g.InitiateEmergencyUnlock(world.as("0xg1"), testPatient, "0xg1")
	require.NoError(t, err)

	// the patient rotates the initiator out of the set
	assignSet(t, world, []string{"0xg2", "0xg3", "0xg4"}, QuorumMajority, 0)

	approveResp, err := g.ApproveEmergencyUnlock(world.as("0xg2"), testPatient, "0xg2")
	require.NoError(t, err)
	assert.False(t, approveResp.Activated)
	assert.Equal(t, 1, approveResp.Approvals, "the removed initiator's approval is gone")
	assert.Equal(t, 2, approveResp.Quorum)

	approveResp, err = g.ApproveEmergencyUnlock(world.as("0xg3"), testPatient, "0xg3")
	require.NoError(t, err)
	assert.True(t, approveResp.Activated)

	granted, err := consent.HasAccess(world.as(testPatient), testPatient, "0xg4")
	require.NoError(t, err)
	assert.True(t, granted, "grants go to the current set")

	granted, err = consent.HasAccess(world.as(testPatient), testPatient, "0xg1")
	require.NoError(t, err)
	assert.False(t, granted, "no grant for the removed guardian")
}

func TestGuardianTerminationNeedsQuorum(t *testing.T) {
	world := newWorld()
	g := assignSet(t, world, []string{"0xg1", "0xg2", "0xg3"}, QuorumFixed, 2)
	consent := &ConsentContract{}

	_, err := g.InitiateEmergencyUnlock(world.as("0xg1"), testPatient, "0xg1")
	require.NoError(t, err)
	_, err = g.ApproveEmergencyUnlock(world.as("0xg2"), testPatient, "0xg2")
	require.NoError(t, err)

	termResp, err := g.TerminateEmergencyUnlock(world.as("0xg1"), testPatient, "0xg1")
	require.NoError(t, err)
	assert.False(t, termResp.Terminated)
	assert.Equal(t, 1, termResp.Approvals)
	assert.Equal(t, 2, termResp.Quorum)

	granted, err := consent.HasAccess(world.as(testPatient), testPatient, "0xg2")
	require.NoError(t, err)
	assert.True(t, granted, "one termination vote changes nothing")

	termResp, err = g.TerminateEmergencyUnlock(world.as("0xg2"), testPatient, "0xg2")
	require.NoError(t, err)
	assert.True(t, termResp.Terminated)

	granted, err = consent.HasAccess(world.as(testPatient), testPatient, "0xg2")
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestPatientDismissesPendingUnlock(t *testing.T) {
	world := newWorld()
	g := assignSet(t, world, []string{"0xg1", "0xg2", "0xg3"}, QuorumFixed, 2)

	_, err := g.InitiateEmergencyUnlock(world.as("0xg1"), testPatient, "0xg1")
	require.NoError(t, err)

	// a guardian cannot vote down a pending unlock, only withhold approval
	termResp, err := g.TerminateEmergencyUnlock(world.as("0xg2"), testPatient, "0xg2")
	require.NoError(t, err)
	assert.True(t, termResp.NoActiveUnlock)

	termResp, err = g.TerminateEmergencyUnlock(world.as(testPatient), testPatient, testPatient)
	require.NoError(t, err)
	assert.True(t, termResp.Terminated)

	// the slot is free for a later rescue attempt
	initResp, err := g.InitiateEmergencyUnlock(world.as("0xg2"), testPatient, "0xg2")
	require.NoError(t, err)
	assert.True(t, initResp.Initiated)
	assert.False(t, initResp.AlreadyPending)
}

func TestFixedQuorumOfOneActivatesOnInitiation(t *testing.T) {
	world := newWorld()
	g := assignSet(t, world, []string{"0xg1", "0xg2"}, QuorumFixed, 1)
	consent := &ConsentContract{}

	initResp, err := g.InitiateEmergencyUnlock(world.as("0xg1"), testPatient, "0xg1")
	require.NoError(t, err)
	assert.True(t, initResp.Activated)

	granted, err := consent.HasAccess(world.as(testPatient), testPatient, "0xg2")
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestInitiateByOutsiderRejected(t *testing.T) {
	world := newWorld()
	g := assignSet(t, world, []string{"0xg1", "0xg2"}, "", 0)

	initResp, err := g.InitiateEmergencyUnlock(world.as("0xintruder"), testPatient, "0xintruder")
	require.NoError(t, err)
	assert.True(t, initResp.NotAGuardian)
	assert.False(t, initResp.Initiated)
}

func TestAssignGuardiansRejectsUnknownPolicy(t *testing.T) {
	world := newWorld()
	g := &GuardianContract{}

	resp, err := g.AssignGuardians(world.as(testPatient), testPatient, []string{"0xg1", "0xg2"}, "plurality", 0)
	require.NoError(t, err)
	assert.True(t, resp.Invalid)
	assert.False(t, resp.Assigned)
}

func TestAssignGuardiansRequiresPatientSigner(t *testing.T) {
	world := newWorld()
	g := &GuardianContract{}

	_, err := g.AssignGuardians(world.anonymous(), testPatient, []string{"0xg1", "0xg2"}, "", 0)
	require.Error(t, err)

	_, err = g.AssignGuardians(world.as("0xmallory"), testPatient, []string{"0xg1", "0xg2"}, "", 0)
	require.Error(t, err)

	guardians, err := g.GetGuardians(world.as(testPatient), testPatient)
	require.NoError(t, err)
	assert.Empty(t, guardians)
}
