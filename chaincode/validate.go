package chaincode

import "fmt"

const (
	minGuardians = 2
	maxGuardians = 10
)

// validateGuardianSet checks a proposed guardian set before it replaces the
// current one. Returns a human-readable reason when the set is invalid.
func validateGuardianSet(patientID string, guardians []string) (string, bool) {
	if len(guardians) < minGuardians {
		return fmt.Sprintf("at least %d guardians required", minGuardians), false
	}
	if len(guardians) > maxGuardians {
		return fmt.Sprintf("at most %d guardians allowed", maxGuardians), false
	}
	seen := make(map[string]bool, len(guardians))
	for _, g := range guardians {
		if g == "" {
			return "guardian address cannot be empty", false
		}
		if g == patientID {
			return "patient cannot be their own guardian", false
		}
		if seen[g] {
			return fmt.Sprintf("duplicate guardian: %s", g), false
		}
		seen[g] = true
	}
	return "", true
}

// quorumFor computes the approvals needed against the current guardian set
// size. Fixed thresholds are clamped so a shrunken set can still reach quorum.
func quorumFor(policy string, threshold, setSize int) int {
	if setSize == 0 {
		return 0
	}
	if policy == QuorumFixed {
		if threshold < 1 {
			return 1
		}
		if threshold > setSize {
			return setSize
		}
		return threshold
	}
	return setSize/2 + 1
}

// countApprovals counts only approvals from accounts still in the current
// guardian set. Approvals recorded by since-removed guardians never count.
func countApprovals(approvals, current []string) int {
	count := 0
	for _, a := range approvals {
		if containsAccount(current, a) {
			count++
		}
	}
	return count
}

func containsAccount(list []string, account string) bool {
	for _, v := range list {
		if v == account {
			return true
		}
	}
	return false
}

func appendUnique(list []string, account string) []string {
	if containsAccount(list, account) {
		return list
	}
	return append(list, account)
}
