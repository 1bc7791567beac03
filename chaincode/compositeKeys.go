package chaincode

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

const (
	requestObjectType   = "Requests"
	grantObjectType     = "Grants"
	guardianObjectType  = "Guardians"
	emergencyObjectType = "Emergency"
)

func createRequestCompositeKey(ctx contractapi.TransactionContextInterface, patientID, doctorID, requestID string) (string, error) {
	compositeKey, err := ctx.GetStub().CreateCompositeKey(requestObjectType, []string{patientID, doctorID, requestID})
	if err != nil {
		return "", fmt.Errorf("failed to create composite key: %v", err)
	}
	return compositeKey, nil
}

func createGrantCompositeKey(ctx contractapi.TransactionContextInterface, patientID, doctorID, grantID string) (string, error) {
	compositeKey, err := ctx.GetStub().CreateCompositeKey(grantObjectType, []string{patientID, doctorID, grantID})
	if err != nil {
		return "", fmt.Errorf("failed to create composite key: %v", err)
	}
	return compositeKey, nil
}

func createGuardianSetCompositeKey(ctx contractapi.TransactionContextInterface, patientID string) (string, error) {
	compositeKey, err := ctx.GetStub().CreateCompositeKey(guardianObjectType, []string{patientID})
	if err != nil {
		return "", fmt.Errorf("failed to create composite key: %v", err)
	}
	return compositeKey, nil
}

func createEmergencyCompositeKey(ctx contractapi.TransactionContextInterface, patientID string) (string, error) {
	compositeKey, err := ctx.GetStub().CreateCompositeKey(emergencyObjectType, []string{patientID})
	if err != nil {
		return "", fmt.Errorf("failed to create composite key: %v", err)
	}
	return compositeKey, nil
}
