package syncmerge

// DivergedEntry is one revision being merged into the workspace.
type DivergedEntry struct {
	SHA        string `json:"sha"`
	SourcePath string `json:"source_path"`
	Status     string `json:"status"`
}

// State is the full persisted sync-merge-state.json document.
type State struct {
	GroupName       string          `json:"group_name"`
	StartedAt       string          `json:"started_at"`
	WorkspacePath   string          `json:"workspace_path"`
	BaseCommit      string          `json:"base_commit"`
	DivergedCommits []DivergedEntry `json:"diverged_commits"`
	MergedSHA       string          `json:"merged_sha,omitempty"`
	ConflictSHA     string          `json:"conflict_sha,omitempty"`
}
