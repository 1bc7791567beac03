package guardian

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MedVaultTech/ConsentNetwork/chaincode"
)

type fakeInvoker struct {
	lastName string
	lastArgs []string
	payload  []byte
	err      error
}

func (f *fakeInvoker) SubmitTransaction(name string, args ...string) ([]byte, error) {
	f.lastName, f.lastArgs = name, args
	return f.payload, f.err
}

func (f *fakeInvoker) EvaluateTransaction(name string, args ...string) ([]byte, error) {
	f.lastName, f.lastArgs = name, args
	return f.payload, f.err
}

func withResponse(t *testing.T, v interface{}) *fakeInvoker {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return &fakeInvoker{payload: payload}
}

func TestAssignGuardiansEncodesListAsJSON(t *testing.T) {
	fake := withResponse(t, chaincode.AssignGuardiansResponse{Assigned: true})
	client := New(fake, zap.NewNop())

	err := client.AssignGuardians(context.Background(), "0xpatient",
		[]string{"0xg1", "0xg2", "0xg3"}, "fixed", 2)
	require.NoError(t, err)

	assert.Equal(t, "guardian:AssignGuardians", fake.lastName)
	require.Len(t, fake.lastArgs, 4)
	assert.Equal(t, "0xpatient", fake.lastArgs[0])
	assert.JSONEq(t, `["0xg1","0xg2","0xg3"]`, fake.lastArgs[1])
	assert.Equal(t, "fixed", fake.lastArgs[2])
	assert.Equal(t, "2", fake.lastArgs[3])
}

func TestAssignGuardiansSurfacesReason(t *testing.T) {
	fake := withResponse(t, chaincode.AssignGuardiansResponse{
		Invalid: true,
		Reason:  "a patient cannot be their own guardian",
	})
	err := New(fake, zap.NewNop()).AssignGuardians(context.Background(), "0xpatient",
		[]string{"0xpatient", "0xg2"}, "", 0)

	assert.ErrorIs(t, err, ErrInvalidGuardianSet)
	assert.Contains(t, err.Error(), "their own guardian")
}

func TestInitiateUnlockOutcomes(t *testing.T) {
	tests := []struct {
		name string
		resp chaincode.InitiateEmergencyUnlockResponse
		want error
	}{
		{"outsider rejected", chaincode.InitiateEmergencyUnlockResponse{NotAGuardian: true}, ErrNotAGuardian},
		{"pending blocks re-initiation", chaincode.InitiateEmergencyUnlockResponse{AlreadyPending: true}, ErrUnlockPending},
		{"active blocks re-initiation", chaincode.InitiateEmergencyUnlockResponse{AlreadyActive: true}, ErrUnlockActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := withResponse(t, tt.resp)
			_, err := New(fake, zap.NewNop()).InitiateEmergencyUnlock(context.Background(), "0xpatient", "0xg1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInitiateUnlockReportsQuorumProgress(t *testing.T) {
	fake := withResponse(t, chaincode.InitiateEmergencyUnlockResponse{
		Initiated: true,
		Approvals: 1,
		Quorum:    2,
	})
	status, err := New(fake, zap.NewNop()).InitiateEmergencyUnlock(context.Background(), "0xpatient", "0xg1")
	require.NoError(t, err)
	assert.Equal(t, UnlockStatus{Approvals: 1, Quorum: 2, Active: false}, status)
}

func TestApproveUnlockActivatesAtQuorum(t *testing.T) {
	fake := withResponse(t, chaincode.ApproveEmergencyUnlockResponse{
		Activated: true,
		Approvals: 2,
		Quorum:    2,
	})
	status, err := New(fake, zap.NewNop()).ApproveEmergencyUnlock(context.Background(), "0xpatient", "0xg2")
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, 2, status.Approvals)
}

func TestApproveWithoutPendingUnlock(t *testing.T) {
	fake := withResponse(t, chaincode.ApproveEmergencyUnlockResponse{NoPendingUnlock: true})
	_, err := New(fake, zap.NewNop()).ApproveEmergencyUnlock(context.Background(), "0xpatient", "0xg2")
	assert.ErrorIs(t, err, ErrNoPendingUnlock)
}

func TestTerminateUnlockOutcomes(t *testing.T) {
	tests := []struct {
		name string
		resp chaincode.TerminateEmergencyUnlockResponse
		want error
	}{
		{"stranger rejected", chaincode.TerminateEmergencyUnlockResponse{NotAuthorized: true}, ErrNotAuthorized},
		{"nothing to terminate", chaincode.TerminateEmergencyUnlockResponse{NoActiveUnlock: true}, ErrNoActiveUnlock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := withResponse(t, tt.resp)
			_, err := New(fake, zap.NewNop()).TerminateEmergencyUnlock(context.Background(), "0xpatient", "0xg1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTerminateVoteShortOfQuorum(t *testing.T) {
	fake := withResponse(t, chaincode.TerminateEmergencyUnlockResponse{
		Terminated: false,
		Approvals:  1,
		Quorum:     2,
	})
	terminated, err := New(fake, zap.NewNop()).TerminateEmergencyUnlock(context.Background(), "0xpatient", "0xg1")
	require.NoError(t, err)
	assert.False(t, terminated)
}

func TestGuardiansDecodesList(t *testing.T) {
	fake := withResponse(t, []string{"0xg1", "0xg2"})
	guardians, err := New(fake, zap.NewNop()).Guardians(context.Background(), "0xpatient")
	require.NoError(t, err)
	assert.Equal(t, []string{"0xg1", "0xg2"}, guardians)
	assert.Equal(t, "guardian:GetGuardians", fake.lastName)
}
