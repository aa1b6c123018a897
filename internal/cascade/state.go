package cascade

// Role classifies a chain member for tier-matrix lookup.
type Role string

const (
	RoleLeaf         Role = "leaf"
	RoleIntermediate Role = "intermediate"
	RoleRoot         Role = "root"
)

// Status is the closed set a repo entry's state machine passes through
// without skipping states.
type Status string

const (
	StatusPending            Status = "pending"
	StatusLocalPassed        Status = "local-passed"
	StatusContractPassed     Status = "contract-passed"
	StatusIntegrationPassed  Status = "integration-passed"
	StatusSystemPassed       Status = "system-passed"
	StatusCommitted          Status = "committed"
	StatusPaused             Status = "paused"
)

// tierStatus maps a tier name to the status reached on passing it.
var tierStatus = map[string]Status{
	"local-tests":       StatusLocalPassed,
	"contract-tests":    StatusContractPassed,
	"integration-tests": StatusIntegrationPassed,
	"system-tests":      StatusSystemPassed,
}

// statusTierIndex maps a "passed" status to its position in the full tier
// ladder, used to resume from the tier after the last one passed.
var statusTierIndex = map[Status]int{
	StatusPending:           -1,
	StatusLocalPassed:       0,
	StatusContractPassed:    1,
	StatusIntegrationPassed: 2,
	StatusSystemPassed:      3,
}

var allTiers = [...]string{"local-tests", "contract-tests", "integration-tests", "system-tests"}

// SystemMode is the invocation mode affecting which tiers run per role.
type SystemMode string

const (
	ModeDefault  SystemMode = "default"
	ModeAll      SystemMode = "all"
	ModeNone     SystemMode = "none"
)

// DetermineTiers returns the ordered tiers scheduled for role under mode and
// quick, per the role/mode matrix.
func DetermineTiers(role Role, mode SystemMode, quick bool) []string {
	if quick {
		return []string{"local-tests", "contract-tests"}
	}
	switch mode {
	case ModeAll:
		return []string{"local-tests", "contract-tests", "integration-tests", "system-tests"}
	case ModeNone:
		switch role {
		case RoleLeaf:
			return []string{"local-tests", "contract-tests"}
		default:
			return []string{"local-tests", "contract-tests", "integration-tests"}
		}
	default: // ModeDefault
		switch role {
		case RoleLeaf:
			return []string{"local-tests", "contract-tests"}
		case RoleIntermediate:
			return []string{"local-tests", "contract-tests", "integration-tests"}
		default: // root
			return []string{"local-tests", "contract-tests", "integration-tests", "system-tests"}
		}
	}
}

// DiagEntry is one auto-diagnosis observation.
type DiagEntry struct {
	RelPath string `json:"rel_path"`
	Tier    string `json:"tier"`
	Passed  bool   `json:"passed"`
}

// RepoEntry is one node's progress through the cascade.
type RepoEntry struct {
	RelPath        string      `json:"rel_path"`
	Role           Role        `json:"role"`
	Status         Status      `json:"status"`
	PreCascadeHead string      `json:"pre_cascade_head"`
	FailedTier     string      `json:"failed_tier,omitempty"`
	Diagnosis      []DiagEntry `json:"diagnosis,omitempty"`
}

// State is the full persisted cascade-state.json document.
type State struct {
	SubmodulePath string      `json:"submodule_path"`
	StartedAt     string      `json:"started_at"`
	SystemMode    SystemMode  `json:"system_mode"`
	Quick         bool        `json:"quick"`
	Repos         []RepoEntry `json:"repos"`
}

func (s *State) pausedIndex() int {
	for i, r := range s.Repos {
		if r.Status == StatusPaused {
			return i
		}
	}
	return -1
}
