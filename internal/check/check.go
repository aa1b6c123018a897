// Package check verifies every submodule is on a named ref (not detached)
// and every sync group's instances agree on a single pinned revision.
//
// Grounded on original_source/check.py: get_tag_or_branch,
// _discover_branch_check_repos, and check_sync_groups's majority-vs-
// differing reporting with allow-drift handling. Consumed by both the
// `check` CLI surface and the push engine's exclusion-set computation, so
// it is a real internal package rather than a stub.
package check

import (
	"context"
	"fmt"
	"sort"

	"github.com/Cleanroom-Labs/grove/internal/config"
	"github.com/Cleanroom-Labs/grove/internal/groverepo"
	"github.com/Cleanroom-Labs/grove/internal/vcsdriver"
)

// RefFinding is a repo whose HEAD is not on a named ref.
type RefFinding struct {
	RelPath string
	Reason  string
}

// CheckRefs reports every repo whose HEAD is detached.
func CheckRefs(ctx context.Context, set *groverepo.Set) []RefFinding {
	var findings []RefFinding
	for _, r := range set.Repos {
		if r.Detached {
			findings = append(findings, RefFinding{RelPath: r.RelPath, Reason: "detached HEAD"})
		}
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].RelPath < findings[j].RelPath })
	return findings
}

// GroupFinding reports a sync group's consistency: the majority revision
// and any instances differing from it (excluding drift-allowed paths).
type GroupFinding struct {
	GroupName       string
	MajoritySHA     string
	Differing       []string
	DriftAllowed    []string
}

// CheckSyncGroups reports, per configured sync group, whether all
// non-drift-allowed instances share one pinned revision.
func CheckSyncGroups(ctx context.Context, set *groverepo.Set, groups map[string]config.SyncGroup) ([]GroupFinding, error) {
	var findings []GroupFinding

	for name, g := range groups {
		drift := map[string]bool{}
		for _, p := range g.AllowDrift {
			drift[p] = true
		}

		counts := map[string]int{}
		var driftAllowed []string
		type inst struct {
			relPath string
			sha     string
		}
		var instances []inst

		for _, r := range set.Repos {
			if r.ParentPath == "" {
				continue
			}
			d := vcsdriver.New(r.AbsPath)
			url, err := d.RemoteURL(ctx, "origin")
			if err != nil || url == "" {
				continue
			}
			if !contains(url, g.URLMatch) {
				continue
			}
			if drift[r.RelPath] {
				driftAllowed = append(driftAllowed, r.RelPath)
				continue
			}
			counts[r.SHA]++
			instances = append(instances, inst{relPath: r.RelPath, sha: r.SHA})
		}

		var majoritySHA string
		best := -1
		for sha, c := range counts {
			if c > best {
				best, majoritySHA = c, sha
			}
		}

		var differing []string
		for _, i := range instances {
			if i.sha != majoritySHA {
				differing = append(differing, i.relPath)
			}
		}
		sort.Strings(differing)
		sort.Strings(driftAllowed)

		findings = append(findings, GroupFinding{
			GroupName:    name,
			MajoritySHA:  majoritySHA,
			Differing:    differing,
			DriftAllowed: driftAllowed,
		})
	}

	sort.Slice(findings, func(i, j int) bool { return findings[i].GroupName < findings[j].GroupName })
	return findings, nil
}

// ExcludePaths returns the set of rel_paths belonging to any configured sync
// group, used by the push engine to drop shared-library instances from its
// default operation set.
func ExcludePaths(ctx context.Context, set *groverepo.Set, groups map[string]config.SyncGroup) map[string]bool {
	exclude := map[string]bool{}
	for _, g := range groups {
		for _, r := range set.Repos {
			if r.ParentPath == "" {
				continue
			}
			d := vcsdriver.New(r.AbsPath)
			url, err := d.RemoteURL(ctx, "origin")
			if err != nil || url == "" {
				continue
			}
			if contains(url, g.URLMatch) {
				exclude[r.RelPath] = true
			}
		}
	}
	return exclude
}

func contains(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	if m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}

// Report prints the two-section check report with remediation hints, per
// the error-handling design's "user-visible failure behaviour" contract.
func Report(refFindings []RefFinding, groupFindings []GroupFinding) {
	fmt.Println("Branch/tag check:")
	if len(refFindings) == 0 {
		fmt.Println("  all repos are on a named ref")
	}
	for _, f := range refFindings {
		fmt.Printf("  %s: %s — run: git -C %s checkout <branch>\n", f.RelPath, f.Reason, f.RelPath)
	}

	fmt.Println("Sync group check:")
	for _, g := range groupFindings {
		if len(g.Differing) == 0 {
			fmt.Printf("  %s: consistent at %s\n", g.GroupName, g.MajoritySHA)
			continue
		}
		fmt.Printf("  %s: majority %s, differing: %v — run: grove sync %s\n", g.GroupName, g.MajoritySHA, g.Differing, g.GroupName)
	}
}
