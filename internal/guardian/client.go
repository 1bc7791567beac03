// Package guardian wraps the guardian contract: guardian set assignment and
// the emergency unlock lifecycle.
package guardian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/MedVaultTech/ConsentNetwork/chaincode"
)

var (
	// ErrInvalidGuardianSet: the proposed set violates the membership rules
	// (size outside [2,10], duplicates, or the patient itself).
	ErrInvalidGuardianSet = errors.New("invalid guardian set")

	// ErrNotAGuardian: the acting account is not in the patient's set.
	ErrNotAGuardian = errors.New("account is not a guardian for this patient")

	// ErrUnlockPending: an unlock is already awaiting quorum.
	ErrUnlockPending = errors.New("emergency unlock already pending")

	// ErrUnlockActive: an unlock is already active.
	ErrUnlockActive = errors.New("emergency unlock already active")

	// ErrNoPendingUnlock: approving with no unlock awaiting quorum.
	ErrNoPendingUnlock = errors.New("no pending emergency unlock")

	// ErrNoActiveUnlock: terminating with no active unlock.
	ErrNoActiveUnlock = errors.New("no active emergency unlock")

	// ErrNotAuthorized: terminator is neither the patient nor a guardian.
	ErrNotAuthorized = errors.New("not authorized to terminate emergency unlock")
)

// Invoker is the slice of *client.Contract the guardian client needs.
type Invoker interface {
	SubmitTransaction(name string, args ...string) ([]byte, error)
	EvaluateTransaction(name string, args ...string) ([]byte, error)
}

// UnlockStatus reports quorum progress after an unlock mutation.
type UnlockStatus struct {
	Approvals int
	Quorum    int
	Active    bool
}

type Client struct {
	contract Invoker
	log      *zap.Logger
}

func New(contract Invoker, log *zap.Logger) *Client {
	return &Client{contract: contract, log: log}
}

// AssignGuardians atomically replaces the patient's guardian set. Pass
// policy "" or "majority" for majority quorum, or "fixed" with a threshold.
func (c *Client) AssignGuardians(ctx context.Context, patientID string, guardians []string, policy string, threshold int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	guardiansJSON, err := json.Marshal(guardians)
	if err != nil {
		return fmt.Errorf("failed to encode guardian list: %w", err)
	}

	payload, err := c.contract.SubmitTransaction("guardian:AssignGuardians",
		patientID, string(guardiansJSON), policy, strconv.Itoa(threshold))
	if err != nil {
		return fmt.Errorf("AssignGuardians failed: %w", err)
	}

	var resp chaincode.AssignGuardiansResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("failed to decode AssignGuardians response: %w", err)
	}
	if resp.Invalid {
		return fmt.Errorf("%w: %s", ErrInvalidGuardianSet, resp.Reason)
	}

	c.log.Info("guardian set assigned",
		zap.String("patient", patientID),
		zap.Int("guardians", len(guardians)))
	return nil
}

func (c *Client) Guardians(ctx context.Context, patientID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := c.contract.EvaluateTransaction("guardian:GetGuardians", patientID)
	if err != nil {
		return nil, fmt.Errorf("GetGuardians failed: %w", err)
	}

	var guardians []string
	if err := json.Unmarshal(payload, &guardians); err != nil {
		return nil, fmt.Errorf("failed to decode guardian list: %w", err)
	}
	return guardians, nil
}

// InitiateEmergencyUnlock opens a rescue request on behalf of a guardian.
// The initiator's approval is counted immediately.
func (c *Client) InitiateEmergencyUnlock(ctx context.Context, patientID, guardianID string) (UnlockStatus, error) {
	if err := ctx.Err(); err != nil {
		return UnlockStatus{}, err
	}

	payload, err := c.contract.SubmitTransaction("guardian:InitiateEmergencyUnlock", patientID, guardianID)
	if err != nil {
		return UnlockStatus{}, fmt.Errorf("InitiateEmergencyUnlock failed: %w", err)
	}

	var resp chaincode.InitiateEmergencyUnlockResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return UnlockStatus{}, fmt.Errorf("failed to decode InitiateEmergencyUnlock response: %w", err)
	}

	switch {
	case resp.NotAGuardian:
		return UnlockStatus{}, ErrNotAGuardian
	case resp.AlreadyPending:
		return UnlockStatus{}, ErrUnlockPending
	case resp.AlreadyActive:
		return UnlockStatus{}, ErrUnlockActive
	}

	status := UnlockStatus{Approvals: resp.Approvals, Quorum: resp.Quorum, Active: resp.Activated}
	c.log.Info("emergency unlock initiated",
		zap.String("patient", patientID),
		zap.String("guardian", guardianID),
		zap.Int("approvals", status.Approvals),
		zap.Int("quorum", status.Quorum))
	return status, nil
}

// ApproveEmergencyUnlock records a guardian approval; quorum is recomputed
// by the contract against the current guardian set.
func (c *Client) ApproveEmergencyUnlock(ctx context.Context, patientID, guardianID string) (UnlockStatus, error) {
	if err := ctx.Err(); err != nil {
		return UnlockStatus{}, err
	}

	payload, err := c.contract.SubmitTransaction("guardian:ApproveEmergencyUnlock", patientID, guardianID)
	if err != nil {
		return UnlockStatus{}, fmt.Errorf("ApproveEmergencyUnlock failed: %w", err)
	}

	var resp chaincode.ApproveEmergencyUnlockResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return UnlockStatus{}, fmt.Errorf("failed to decode ApproveEmergencyUnlock response: %w", err)
	}

	switch {
	case resp.NotAGuardian:
		return UnlockStatus{}, ErrNotAGuardian
	case resp.NoPendingUnlock:
		return UnlockStatus{}, ErrNoPendingUnlock
	}

	status := UnlockStatus{Approvals: resp.Approvals, Quorum: resp.Quorum, Active: resp.Activated}
	if status.Active {
		c.log.Info("emergency unlock activated", zap.String("patient", patientID))
	}
	return status, nil
}

// TerminateEmergencyUnlock deactivates an active unlock. The patient
// terminates unilaterally; a guardian's call is a termination vote.
func (c *Client) TerminateEmergencyUnlock(ctx context.Context, patientID, callerID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	payload, err := c.contract.SubmitTransaction("guardian:TerminateEmergencyUnlock", patientID, callerID)
	if err != nil {
		return false, fmt.Errorf("TerminateEmergencyUnlock failed: %w", err)
	}

	var resp chaincode.TerminateEmergencyUnlockResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return false, fmt.Errorf("failed to decode TerminateEmergencyUnlock response: %w", err)
	}

	switch {
	case resp.NotAuthorized:
		return false, ErrNotAuthorized
	case resp.NoActiveUnlock:
		return false, ErrNoActiveUnlock
	}

	if resp.Terminated {
		c.log.Info("emergency unlock terminated", zap.String("patient", patientID))
	}
	return resp.Terminated, nil
}
