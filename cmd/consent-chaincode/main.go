package main

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/MedVaultTech/ConsentNetwork/chaincode"
)

func main() {
	consent := new(chaincode.ConsentContract)
	consent.Name = "consent"

	guardian := new(chaincode.GuardianContract)
	guardian.Name = "guardian"

	cc, err := contractapi.NewChaincode(consent, guardian)
	if err != nil {
		fmt.Printf("Error creating ConsentNetwork chaincode: %v", err)
		return
	}

	if err := cc.Start(); err != nil {
		fmt.Printf("Error starting ConsentNetwork chaincode: %v", err)
	}
}
