package chaincode

// Chaincode event names consumed by the gateway-side notification relay.
const (
	EventAccessRequested = "AccessRequested"
	EventAccessApproved  = "AccessApproved"
	EventAccessRevoked   = "AccessRevoked"
	EventEmergencyUnlock = "EmergencyUnlock"
)

type AccessRequestedEvent struct {
	DoctorID  string `json:"doctorID"`
	PatientID string `json:"patientID"`
	RequestID string `json:"requestID"`
}

type AccessApprovedEvent struct {
	DoctorID  string `json:"doctorID"`
	PatientID string `json:"patientID"`
	Granted   bool   `json:"granted"`
}

type AccessRevokedEvent struct {
	DoctorID  string `json:"doctorID"`
	PatientID string `json:"patientID"`
	Emergency bool   `json:"emergency"`
}

type EmergencyUnlockEvent struct {
	PatientID string `json:"patientID"`
	Active    bool   `json:"active"`
}
