// Package journal appends timestamped, monthly-rotated event lines to the
// shared control directory. It is append-only: no operation here truncates
// or rewrites a prior line.
//
// Grounded on original_source/cascade.py and worktree_merge.py's identical
// `_log` helpers, which both write "[<iso-ts>] <EVENT> <detail>" lines to a
// per-engine, per-month file under an exclusive lock.
package journal

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Cleanroom-Labs/grove/internal/lockfile"
)

// Kind enumerates the event kinds named in the external interface.
type Kind string

const (
	Start    Kind = "START"
	Discover Kind = "DISCOVER"
	Merge    Kind = "MERGE"
	Test     Kind = "TEST"
	Conflict Kind = "CONFLICT"
	Pass     Kind = "PASS"
	Fail     Kind = "FAIL"
	Diag     Kind = "DIAG"
	Commit   Kind = "COMMIT"
	Paused   Kind = "PAUSED"
	Continue Kind = "CONTINUE"
	Abort    Kind = "ABORT"
	Done     Kind = "DONE"
	Skip     Kind = "SKIP"
)

// Journal appends lines for one engine under a shared control directory.
type Journal struct {
	sharedDir string
	engine    string
	now       func() time.Time
}

// New builds a Journal rooted at sharedDir (as returned by controldir.Shared)
// for the named engine ("cascade", "worktree-merge", "sync", "sync-merge").
func New(sharedDir, engine string) *Journal {
	return &Journal{sharedDir: sharedDir, engine: engine, now: time.Now}
}

func (j *Journal) path(t time.Time) string {
	return filepath.Join(j.sharedDir, fmt.Sprintf("%s-journal-%s.log", j.engine, t.UTC().Format("2006-01")))
}

// Log appends one "[<iso-ts>] <KIND> <detail>" line.
func (j *Journal) Log(kind Kind, detail string) error {
	now := j.now().UTC()
	line := fmt.Sprintf("[%s] %s %s", now.Format(time.RFC3339), kind, detail)
	return lockfile.AppendLine(j.path(now), line)
}
