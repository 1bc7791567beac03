package chaincode

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Client identity attribute carrying the portal account bound to the
// enrollment certificate. Calls on behalf of another account are rejected at
// the ledger layer.
const accountAttribute = "consentnet.account"

func requireCaller(ctx contractapi.TransactionContextInterface, account string) error {
	value, found, err := ctx.GetClientIdentity().GetAttributeValue(accountAttribute)
	if err != nil {
		return fmt.Errorf("failed to read client identity: %v", err)
	}
	// An identity enrolled without the attribute is unauthorized for every
	// account. Test networks must enroll with the attribute set.
	if !found {
		return fmt.Errorf("client identity carries no %s attribute", accountAttribute)
	}
	if value != account {
		return fmt.Errorf("signer %s is not authorized to act for account %s", value, account)
	}
	return nil
}

func txTime(ctx contractapi.TransactionContextInterface) (int64, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return 0, fmt.Errorf("failed to read transaction timestamp: %v", err)
	}
	return ts.Seconds, nil
}

func emitEvent(ctx contractapi.TransactionContextInterface, name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize %s event: %v", name, err)
	}
	if err := ctx.GetStub().SetEvent(name, data); err != nil {
		return fmt.Errorf("failed to emit %s event: %v", name, err)
	}
	return nil
}

func putRequest(ctx contractapi.TransactionContextInterface, request AccessRequest) error {
	requestJSON, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to serialize request to JSON: %v", err)
	}

	compositeKey, err := createRequestCompositeKey(ctx, request.PatientID, request.DoctorID, request.RequestID)
	if err != nil {
		return err
	}

	if err := ctx.GetStub().PutState(compositeKey, requestJSON); err != nil {
		return fmt.Errorf("failed to store request on the ledger: %v", err)
	}
	return nil
}

func putGrant(ctx contractapi.TransactionContextInterface, grant PermissionGrant) error {
	grantJSON, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to serialize grant to JSON: %v", err)
	}

	compositeKey, err := createGrantCompositeKey(ctx, grant.PatientID, grant.DoctorID, grant.GrantID)
	if err != nil {
		return err
	}

	if err := ctx.GetStub().PutState(compositeKey, grantJSON); err != nil {
		return fmt.Errorf("failed to store grant on the ledger: %v", err)
	}
	return nil
}

// findPendingRequest returns the unresolved request for the pair, or nil.
// Request creation guarantees at most one unresolved request per pair.
func findPendingRequest(ctx contractapi.TransactionContextInterface, patientID, doctorID string) (*AccessRequest, error) {
	iterator, err := ctx.GetStub().GetStateByPartialCompositeKey(requestObjectType, []string{patientID, doctorID})
	if err != nil {
		return nil, nil
	}
	defer iterator.Close()

	for iterator.HasNext() {
		queryResponse, err := iterator.Next()
		if err != nil {
			return nil, fmt.Errorf("error retrieving next query result: %v", err)
		}

		var request AccessRequest
		if err := json.Unmarshal(queryResponse.Value, &request); err != nil {
			return nil, fmt.Errorf("error unmarshalling request: %v", err)
		}
		if request.Status == StatusPending {
			return &request, nil
		}
	}

	return nil, nil
}

func hasLiveGrant(ctx contractapi.TransactionContextInterface, patientID, doctorID string) (bool, error) {
	grants, err := liveGrants(ctx, patientID, doctorID)
	if err != nil {
		return false, err
	}
	return len(grants) > 0, nil
}

func liveGrants(ctx contractapi.TransactionContextInterface, patientID, doctorID string) ([]PermissionGrant, error) {
	iterator, err := ctx.GetStub().GetStateByPartialCompositeKey(grantObjectType, []string{patientID, doctorID})
	if err != nil {
		return nil, nil
	}
	defer iterator.Close()

	var grants []PermissionGrant
	for iterator.HasNext() {
		queryResponse, err := iterator.Next()
		if err != nil {
			return nil, fmt.Errorf("error retrieving next query result: %v", err)
		}

		var grant PermissionGrant
		if err := json.Unmarshal(queryResponse.Value, &grant); err != nil {
			return nil, fmt.Errorf("error unmarshalling grant: %v", err)
		}
		if !grant.Revoked {
			grants = append(grants, grant)
		}
	}

	return grants, nil
}

func getGuardianSet(ctx contractapi.TransactionContextInterface, patientID string) (*GuardianSet, error) {
	compositeKey, err := createGuardianSetCompositeKey(ctx, patientID)
	if err != nil {
		return nil, err
	}

	data, err := ctx.GetStub().GetState(compositeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read guardian set: %v", err)
	}
	if data == nil {
		return nil, nil
	}

	var set GuardianSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("error unmarshalling guardian set: %v", err)
	}
	return &set, nil
}

func putGuardianSet(ctx contractapi.TransactionContextInterface, set GuardianSet) error {
	setJSON, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to serialize guardian set to JSON: %v", err)
	}

	compositeKey, err := createGuardianSetCompositeKey(ctx, set.PatientID)
	if err != nil {
		return err
	}

	if err := ctx.GetStub().PutState(compositeKey, setJSON); err != nil {
		return fmt.Errorf("failed to store guardian set on the ledger: %v", err)
	}
	return nil
}

func getEmergencyUnlock(ctx contractapi.TransactionContextInterface, patientID string) (*EmergencyUnlock, error) {
	compositeKey, err := createEmergencyCompositeKey(ctx, patientID)
	if err != nil {
		return nil, err
	}

	data, err := ctx.GetStub().GetState(compositeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read emergency unlock: %v", err)
	}
	if data == nil {
		return nil, nil
	}

	var unlock EmergencyUnlock
	if err := json.Unmarshal(data, &unlock); err != nil {
		return nil, fmt.Errorf("error unmarshalling emergency unlock: %v", err)
	}
	return &unlock, nil
}

func putEmergencyUnlock(ctx contractapi.TransactionContextInterface, unlock EmergencyUnlock) error {
	unlockJSON, err := json.Marshal(unlock)
	if err != nil {
		return fmt.Errorf("failed to serialize emergency unlock to JSON: %v", err)
	}

	compositeKey, err := createEmergencyCompositeKey(ctx, unlock.PatientID)
	if err != nil {
		return err
	}

	if err := ctx.GetStub().PutState(compositeKey, unlockJSON); err != nil {
		return fmt.Errorf("failed to store emergency unlock on the ledger: %v", err)
	}
	return nil
}

func getGrantByID(ctx contractapi.TransactionContextInterface, patientID, doctorID, grantID string) (*PermissionGrant, error) {
	compositeKey, err := createGrantCompositeKey(ctx, patientID, doctorID, grantID)
	if err != nil {
		return nil, err
	}

	data, err := ctx.GetStub().GetState(compositeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read grant: %v", err)
	}
	if data == nil {
		return nil, nil
	}

	var grant PermissionGrant
	if err := json.Unmarshal(data, &grant); err != nil {
		return nil, fmt.Errorf("error unmarshalling grant: %v", err)
	}
	return &grant, nil
}
