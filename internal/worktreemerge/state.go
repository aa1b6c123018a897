package worktreemerge

// Status is the closed set a repo entry passes through during a merge.
type Status string

const (
	StatusPending Status = "pending"
	StatusSkipped Status = "skipped"
	StatusMerged  Status = "merged"
	StatusPaused  Status = "paused"
)

// Reason explains a skip or pause.
type Reason string

const (
	ReasonAlreadyMerged  Reason = "already-merged"
	ReasonBranchNotFound Reason = "branch-not-found"
	ReasonDetachedHead   Reason = "detached-head"
	ReasonConflict       Reason = "conflict"
	ReasonTestFailed     Reason = "test-failed"
)

// RepoEntry is one node's progress through the merge.
type RepoEntry struct {
	RelPath       string `json:"rel_path"`
	Status        Status `json:"status"`
	PreMergeHead  string `json:"pre_merge_head"`
	PostMergeHead string `json:"post_merge_head,omitempty"`
	Reason        Reason `json:"reason,omitempty"`
}

// State is the full persisted merge-state.json document.
type State struct {
	Branch    string      `json:"branch"`
	NoFF      bool        `json:"no_ff"`
	NoTest    bool        `json:"no_test"`
	StartedAt string      `json:"started_at"`
	Repos     []RepoEntry `json:"repos"`
}

func (s *State) pausedIndex() int {
	for i, r := range s.Repos {
		if r.Status == StatusPaused {
			return i
		}
	}
	return -1
}
