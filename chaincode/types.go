package chaincode

// Resource type discriminators stored alongside each ledger entity.
const (
	ResourceAccessRequest   = 1
	ResourceGrant           = 2
	ResourceGuardianSet     = 3
	ResourceEmergencyUnlock = 4
)

// AccessRequest status values.
const (
	StatusPending  = 0
	StatusApproved = 1
	StatusRejected = 2
)

// EmergencyUnlock status values.
const (
	UnlockPending    = 0
	UnlockActive     = 1
	UnlockTerminated = 2
)

// Quorum policies for emergency unlock.
const (
	QuorumMajority = "majority"
	QuorumFixed    = "fixed"
)

type AccessRequest struct {
	ResourceType      int    `json:"resourceType"` // 1
	RequestID         string `json:"requestID"`
	DoctorID          string `json:"doctorID"`
	PatientID         string `json:"patientID"`
	CreatedDate       int64  `json:"createdDate"`
	Status            int    `json:"status"`
	StatusChangedDate int64  `json:"statusChangedDate"`
}

// PermissionGrant entries are append-only: revocation flips the flag,
// the entry itself is never deleted.
type PermissionGrant struct {
	ResourceType int    `json:"resourceType"` // 2
	GrantID      string `json:"grantID"`
	RequestID    string `json:"requestID"` // empty for emergency grants
	DoctorID     string `json:"doctorID"`
	PatientID    string `json:"patientID"`
	GrantedDate  int64  `json:"grantedDate"`
	Revoked      bool   `json:"revoked"`
	RevokedDate  int64  `json:"revokedDate"`
	Emergency    bool   `json:"emergency"`
}

type GuardianSet struct {
	ResourceType    int      `json:"resourceType"` // 3
	PatientID       string   `json:"patientID"`
	Guardians       []string `json:"guardians"`
	QuorumPolicy    string   `json:"quorumPolicy"`
	QuorumThreshold int      `json:"quorumThreshold"`
	UpdatedDate     int64    `json:"updatedDate"`
}

type EmergencyUnlock struct {
	ResourceType         int                 `json:"resourceType"` // 4
	PatientID            string              `json:"patientID"`
	InitiatedBy          string              `json:"initiatedBy"`
	Approvals            []string            `json:"approvals"`
	TerminationApprovals []string            `json:"terminationApprovals"`
	Status               int                 `json:"status"`
	Grants               []EmergencyGrantRef `json:"grants"`
	CreatedDate          int64               `json:"createdDate"`
	ActivatedDate        int64               `json:"activatedDate"`
	TerminatedDate       int64               `json:"terminatedDate"`
}

// EmergencyGrantRef points at a temporary grant created when an unlock
// activated, so termination can revoke exactly those grants.
type EmergencyGrantRef struct {
	GuardianID string `json:"guardianID"`
	GrantID    string `json:"grantID"`
}
