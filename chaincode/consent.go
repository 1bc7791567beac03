package chaincode

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// ConsentContract records access requests and permission grants for patient
// medical records. Grants are the single source of truth for access checks;
// request status is never consulted by HasAccess.
type ConsentContract struct {
	contractapi.Contract
}

type RequestAccessResponse struct {
	AlreadyGranted   bool   `json:"alreadyGranted"`
	DuplicateRequest bool   `json:"duplicateRequest"`
	RequestSent      bool   `json:"requestSent"`
	RequestID        string `json:"requestID"`
}

type ResolveAccessResponse struct {
	AlreadyResolved bool `json:"alreadyResolved"`
	Resolved        bool `json:"resolved"`
	Granted         bool `json:"granted"`
}

type RevokeAccessResponse struct {
	NoActiveGrant bool `json:"noActiveGrant"`
	Revoked       bool `json:"revoked"`
}

// RequestAccess files a pending access request from a doctor towards a
// patient. Requesting while a live grant or an unresolved request exists is
// reported in the response rather than failing the transaction.
func (c *ConsentContract) RequestAccess(ctx contractapi.TransactionContextInterface, doctorID, patientID string) (*RequestAccessResponse, error) {
	if doctorID == "" || patientID == "" {
		return nil, fmt.Errorf("doctor and patient identifiers cannot be empty")
	}
	if doctorID == patientID {
		return nil, fmt.Errorf("requester and subject cannot be the same account")
	}
	if err := requireCaller(ctx, doctorID); err != nil {
		return nil, err
	}

	resp := RequestAccessResponse{}

	granted, err := hasLiveGrant(ctx, patientID, doctorID)
	if err != nil {
		return nil, err
	}
	resp.AlreadyGranted = granted

	pending, err := findPendingRequest(ctx, patientID, doctorID)
	if err != nil {
		return nil, err
	}
	resp.DuplicateRequest = pending != nil

	if resp.AlreadyGranted || resp.DuplicateRequest {
		return &resp, nil
	}

	now, err := txTime(ctx)
	if err != nil {
		return nil, err
	}

	request := AccessRequest{
		ResourceType:      ResourceAccessRequest,
		RequestID:         ctx.GetStub().GetTxID(),
		DoctorID:          doctorID,
		PatientID:         patientID,
		CreatedDate:       now,
		Status:            StatusPending,
		StatusChangedDate: now,
	}

	if err := putRequest(ctx, request); err != nil {
		return nil, err
	}
	if err := emitEvent(ctx, EventAccessRequested, AccessRequestedEvent{
		DoctorID:  doctorID,
		PatientID: patientID,
		RequestID: request.RequestID,
	}); err != nil {
		return nil, err
	}

	resp.RequestSent = true
	resp.RequestID = request.RequestID
	return &resp, nil
}

// ResolveAccess lets the subject patient approve or reject the pending
// request from a doctor. Resolution is terminal per request instance; a
// second resolution attempt is a no-op reported as alreadyResolved.
func (c *ConsentContract) ResolveAccess(ctx contractapi.TransactionContextInterface, patientID, doctorID string, approve bool) (*ResolveAccessResponse, error) {
	if err := requireCaller(ctx, patientID); err != nil {
		return nil, err
	}

	resp := ResolveAccessResponse{}

	request, err := findPendingRequest(ctx, patientID, doctorID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		resp.AlreadyResolved = true
		return &resp, nil
	}

	now, err := txTime(ctx)
	if err != nil {
		return nil, err
	}

	if approve {
		request.Status = StatusApproved
	} else {
		request.Status = StatusRejected
	}
	request.StatusChangedDate = now

	if err := putRequest(ctx, *request); err != nil {
		return nil, err
	}

	if approve {
		grant := PermissionGrant{
			ResourceType: ResourceGrant,
			GrantID:      ctx.GetStub().GetTxID(),
			RequestID:    request.RequestID,
			DoctorID:     doctorID,
			PatientID:    patientID,
			GrantedDate:  now,
		}
		if err := putGrant(ctx, grant); err != nil {
			return nil, err
		}
	}

	if err := emitEvent(ctx, EventAccessApproved, AccessApprovedEvent{
		DoctorID:  doctorID,
		PatientID: patientID,
		Granted:   approve,
	}); err != nil {
		return nil, err
	}

	resp.Resolved = true
	resp.Granted = approve
	return &resp, nil
}

// RevokeAccess marks every live grant for the pair revoked. Grants stay on
// the ledger as an audit trail; a fresh request cycle becomes possible.
func (c *ConsentContract) RevokeAccess(ctx contractapi.TransactionContextInterface, patientID, doctorID string) (*RevokeAccessResponse, error) {
	if err := requireCaller(ctx, patientID); err != nil {
		return nil, err
	}

	resp := RevokeAccessResponse{}

	grants, err := liveGrants(ctx, patientID, doctorID)
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		resp.NoActiveGrant = true
		return &resp, nil
	}

	now, err := txTime(ctx)
	if err != nil {
		return nil, err
	}

	for i := range grants {
		grants[i].Revoked = true
		grants[i].RevokedDate = now
		if err := putGrant(ctx, grants[i]); err != nil {
			return nil, err
		}
	}

	if err := emitEvent(ctx, EventAccessRevoked, AccessRevokedEvent{
		DoctorID:  doctorID,
		PatientID: patientID,
	}); err != nil {
		return nil, err
	}

	resp.Revoked = true
	return &resp, nil
}

// HasAccess is a pure read: true iff an unrevoked grant exists for the pair.
func (c *ConsentContract) HasAccess(ctx contractapi.TransactionContextInterface, patientID, doctorID string) (bool, error) {
	return hasLiveGrant(ctx, patientID, doctorID)
}

// GetPendingRequests returns the patient's unresolved requests created at or
// after the given unix timestamp. The horizon keeps session startup scans
// bounded instead of walking the full request history.
func (c *ConsentContract) GetPendingRequests(ctx contractapi.TransactionContextInterface, patientID string, since int64) ([]AccessRequest, error) {
	requests := []AccessRequest{}

	iterator, err := ctx.GetStub().GetStateByPartialCompositeKey(requestObjectType, []string{patientID})
	if err != nil {
		return requests, nil
	}
	defer iterator.Close()

	for iterator.HasNext() {
		queryResponse, err := iterator.Next()
		if err != nil {
			return nil, fmt.Errorf("error retrieving next query result: %v", err)
		}

		var request AccessRequest
		if err := json.Unmarshal(queryResponse.Value, &request); err != nil {
			return nil, fmt.Errorf("error unmarshalling query result: %v", err)
		}
		if request.Status != StatusPending || request.CreatedDate < since {
			continue
		}
		requests = append(requests, request)
	}

	return requests, nil
}

// GetGrants returns the full grant history for a patient, revoked entries
// included.
func (c *ConsentContract) GetGrants(ctx contractapi.TransactionContextInterface, patientID string) ([]PermissionGrant, error) {
	grants := []PermissionGrant{}

	iterator, err := ctx.GetStub().GetStateByPartialCompositeKey(grantObjectType, []string{patientID})
	if err != nil {
		return grants, nil
	}
	defer iterator.Close()

	for iterator.HasNext() {
		queryResponse, err := iterator.Next()
		if err != nil {
			return nil, fmt.Errorf("error retrieving next query result: %v", err)
		}

		var grant PermissionGrant
		if err := json.Unmarshal(queryResponse.Value, &grant); err != nil {
			return nil, fmt.Errorf("error unmarshalling grant: %v", err)
		}
		grants = append(grants, grant)
	}

	return grants, nil
}
