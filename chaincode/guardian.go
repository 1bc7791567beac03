package chaincode

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// GuardianContract manages per-patient guardian sets and the emergency
// unlock lifecycle. Quorum is always recomputed against the current guardian
// set, never against a snapshot taken when the unlock was initiated.
type GuardianContract struct {
	contractapi.Contract
}

type AssignGuardiansResponse struct {
	Invalid  bool   `json:"invalid"`
	Reason   string `json:"reason"`
	Assigned bool   `json:"assigned"`
}

type InitiateEmergencyUnlockResponse struct {
	NotAGuardian   bool `json:"notAGuardian"`
	AlreadyPending bool `json:"alreadyPending"`
	AlreadyActive  bool `json:"alreadyActive"`
	Initiated      bool `json:"initiated"`
	Activated      bool `json:"activated"`
	Approvals      int  `json:"approvals"`
	Quorum         int  `json:"quorum"`
}

type ApproveEmergencyUnlockResponse struct {
	NotAGuardian    bool `json:"notAGuardian"`
	NoPendingUnlock bool `json:"noPendingUnlock"`
	Activated       bool `json:"activated"`
	Approvals       int  `json:"approvals"`
	Quorum          int  `json:"quorum"`
}

type TerminateEmergencyUnlockResponse struct {
	NotAuthorized  bool `json:"notAuthorized"`
	NoActiveUnlock bool `json:"noActiveUnlock"`
	Terminated     bool `json:"terminated"`
	Approvals      int  `json:"approvals"`
	Quorum         int  `json:"quorum"`
}

// AssignGuardians replaces the patient's guardian set atomically. The whole
// set is a single state entry, so no partial assignment is ever visible.
// quorumPolicy is "majority" (default) or "fixed" with a threshold.
func (g *GuardianContract) AssignGuardians(ctx contractapi.TransactionContextInterface, patientID string, guardians []string, quorumPolicy string, quorumThreshold int) (*AssignGuardiansResponse, error) {
	if err := requireCaller(ctx, patientID); err != nil {
		return nil, err
	}

	resp := AssignGuardiansResponse{}

	if reason, ok := validateGuardianSet(patientID, guardians); !ok {
		resp.Invalid = true
		resp.Reason = reason
		return &resp, nil
	}

	switch quorumPolicy {
	case "", QuorumMajority:
		quorumPolicy = QuorumMajority
		quorumThreshold = 0
	case QuorumFixed:
		if quorumThreshold < 1 {
			resp.Invalid = true
			resp.Reason = "fixed quorum requires a threshold of at least 1"
			return &resp, nil
		}
	default:
		resp.Invalid = true
		resp.Reason = fmt.Sprintf("unknown quorum policy: %s", quorumPolicy)
		return &resp, nil
	}

	now, err := txTime(ctx)
	if err != nil {
		return nil, err
	}

	set := GuardianSet{
		ResourceType:    ResourceGuardianSet,
		PatientID:       patientID,
		Guardians:       guardians,
		QuorumPolicy:    quorumPolicy,
		QuorumThreshold: quorumThreshold,
		UpdatedDate:     now,
	}

	if err := putGuardianSet(ctx, set); err != nil {
		return nil, err
	}

	resp.Assigned = true
	return &resp, nil
}

func (g *GuardianContract) GetGuardians(ctx contractapi.TransactionContextInterface, patientID string) ([]string, error) {
	set, err := getGuardianSet(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return []string{}, nil
	}
	return set.Guardians, nil
}

// InitiateEmergencyUnlock opens a rescue request for the patient's records.
// The initiator's own approval is recorded immediately, so a fixed quorum of
// one activates on initiation.
func (g *GuardianContract) InitiateEmergencyUnlock(ctx contractapi.TransactionContextInterface, patientID, guardianID string) (*InitiateEmergencyUnlockResponse, error) {
	if err := requireCaller(ctx, guardianID); err != nil {
		return nil, err
	}

	resp := InitiateEmergencyUnlockResponse{}

	set, err := getGuardianSet(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if set == nil || !containsAccount(set.Guardians, guardianID) {
		resp.NotAGuardian = true
		return &resp, nil
	}

	existing, err := getEmergencyUnlock(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case UnlockPending:
			resp.AlreadyPending = true
			return &resp, nil
		case UnlockActive:
			resp.AlreadyActive = true
			return &resp, nil
		}
	}

	now, err := txTime(ctx)
	if err != nil {
		return nil, err
	}

	unlock := EmergencyUnlock{
		ResourceType: ResourceEmergencyUnlock,
		PatientID:    patientID,
		InitiatedBy:  guardianID,
		Approvals:    []string{guardianID},
		Status:       UnlockPending,
		CreatedDate:  now,
	}

	resp.Approvals = countApprovals(unlock.Approvals, set.Guardians)
	resp.Quorum = quorumFor(set.QuorumPolicy, set.QuorumThreshold, len(set.Guardians))

	if resp.Approvals >= resp.Quorum {
		if err := activateUnlock(ctx, &unlock, set, now); err != nil {
			return nil, err
		}
		resp.Activated = true
	}

	if err := putEmergencyUnlock(ctx, unlock); err != nil {
		return nil, err
	}

	resp.Initiated = true
	return &resp, nil
}

// ApproveEmergencyUnlock adds a guardian approval. Approvals from accounts
// no longer in the guardian set do not count towards quorum.
func (g *GuardianContract) ApproveEmergencyUnlock(ctx contractapi.TransactionContextInterface, patientID, guardianID string) (*ApproveEmergencyUnlockResponse, error) {
	if err := requireCaller(ctx, guardianID); err != nil {
		return nil, err
	}

	resp := ApproveEmergencyUnlockResponse{}

	set, err := getGuardianSet(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if set == nil || !containsAccount(set.Guardians, guardianID) {
		resp.NotAGuardian = true
		return &resp, nil
	}

	unlock, err := getEmergencyUnlock(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if unlock == nil || unlock.Status != UnlockPending {
		resp.NoPendingUnlock = true
		return &resp, nil
	}

	unlock.Approvals = appendUnique(unlock.Approvals, guardianID)

	resp.Approvals = countApprovals(unlock.Approvals, set.Guardians)
	resp.Quorum = quorumFor(set.QuorumPolicy, set.QuorumThreshold, len(set.Guardians))

	if resp.Approvals >= resp.Quorum {
		now, err := txTime(ctx)
		if err != nil {
			return nil, err
		}
		if err := activateUnlock(ctx, unlock, set, now); err != nil {
			return nil, err
		}
		resp.Activated = true
	}

	if err := putEmergencyUnlock(ctx, *unlock); err != nil {
		return nil, err
	}

	return &resp, nil
}

// TerminateEmergencyUnlock deactivates an active unlock and revokes the
// temporary grants it created. The patient terminates unilaterally; guardians
// terminate once a quorum of them has voted for termination. The patient may
// also dismiss a pending unlock outright, freeing the slot for a later
// rescue attempt.
func (g *GuardianContract) TerminateEmergencyUnlock(ctx contractapi.TransactionContextInterface, patientID, callerID string) (*TerminateEmergencyUnlockResponse, error) {
	if err := requireCaller(ctx, callerID); err != nil {
		return nil, err
	}

	resp := TerminateEmergencyUnlockResponse{}

	unlock, err := getEmergencyUnlock(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if unlock == nil || unlock.Status == UnlockTerminated {
		resp.NoActiveUnlock = true
		return &resp, nil
	}

	set, err := getGuardianSet(ctx, patientID)
	if err != nil {
		return nil, err
	}

	isPatient := callerID == patientID
	isGuardian := set != nil && containsAccount(set.Guardians, callerID)
	if !isPatient && !isGuardian {
		resp.NotAuthorized = true
		return &resp, nil
	}

	if unlock.Status == UnlockPending {
		// A pending unlock holds no grants and was never announced active.
		// Only the patient dismisses it; guardians withhold approval instead
		// of voting it down.
		if !isPatient {
			resp.NoActiveUnlock = true
			return &resp, nil
		}
		now, err := txTime(ctx)
		if err != nil {
			return nil, err
		}
		unlock.Status = UnlockTerminated
		unlock.TerminatedDate = now
		if err := putEmergencyUnlock(ctx, *unlock); err != nil {
			return nil, err
		}
		resp.Terminated = true
		return &resp, nil
	}

	if !isPatient {
		unlock.TerminationApprovals = appendUnique(unlock.TerminationApprovals, callerID)
		resp.Approvals = countApprovals(unlock.TerminationApprovals, set.Guardians)
		resp.Quorum = quorumFor(set.QuorumPolicy, set.QuorumThreshold, len(set.Guardians))
		if resp.Approvals < resp.Quorum {
			if err := putEmergencyUnlock(ctx, *unlock); err != nil {
				return nil, err
			}
			return &resp, nil
		}
	}

	now, err := txTime(ctx)
	if err != nil {
		return nil, err
	}

	for _, ref := range unlock.Grants {
		grant, err := getGrantByID(ctx, patientID, ref.GuardianID, ref.GrantID)
		if err != nil {
			return nil, err
		}
		if grant == nil || grant.Revoked {
			continue
		}
		grant.Revoked = true
		grant.RevokedDate = now
		if err := putGrant(ctx, *grant); err != nil {
			return nil, err
		}
		if err := emitEvent(ctx, EventAccessRevoked, AccessRevokedEvent{
			DoctorID:  ref.GuardianID,
			PatientID: patientID,
			Emergency: true,
		}); err != nil {
			return nil, err
		}
	}

	unlock.Status = UnlockTerminated
	unlock.TerminatedDate = now
	if err := putEmergencyUnlock(ctx, *unlock); err != nil {
		return nil, err
	}

	if err := emitEvent(ctx, EventEmergencyUnlock, EmergencyUnlockEvent{
		PatientID: patientID,
		Active:    false,
	}); err != nil {
		return nil, err
	}

	resp.Terminated = true
	return &resp, nil
}

// GetEmergencyUnlock exposes the current unlock, if any, for session display.
func (g *GuardianContract) GetEmergencyUnlock(ctx contractapi.TransactionContextInterface, patientID string) (*EmergencyUnlock, error) {
	unlock, err := getEmergencyUnlock(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if unlock == nil {
		return nil, fmt.Errorf("no emergency unlock recorded for patient %s", patientID)
	}
	return unlock, nil
}

// activateUnlock flips the unlock active and issues temporary grants to every
// current guardian. Grant IDs derive from the transaction ID so endorsement
// stays deterministic.
func activateUnlock(ctx contractapi.TransactionContextInterface, unlock *EmergencyUnlock, set *GuardianSet, now int64) error {
	unlock.Status = UnlockActive
	unlock.ActivatedDate = now
	unlock.Grants = nil

	for _, guardianID := range set.Guardians {
		grant := PermissionGrant{
			ResourceType: ResourceGrant,
			GrantID:      fmt.Sprintf("%s:%s", ctx.GetStub().GetTxID(), guardianID),
			DoctorID:     guardianID,
			PatientID:    unlock.PatientID,
			GrantedDate:  now,
			Emergency:    true,
		}
		if err := putGrant(ctx, grant); err != nil {
			return err
		}
		unlock.Grants = append(unlock.Grants, EmergencyGrantRef{
			GuardianID: guardianID,
			GrantID:    grant.GrantID,
		})
	}

	return emitEvent(ctx, EventEmergencyUnlock, EmergencyUnlockEvent{
		PatientID: unlock.PatientID,
		Active:    true,
	})
}
