// Package push implements the bottom-up `grove push` command: pushes every
// repo with unpushed commits, filterable by explicit paths, a sync-group
// name, or a cascade chain.
//
// Grounded on original_source/push.py: discover (excluding sync-group
// submodules by default), validate(allow_detached=true, allow_no_remote=true),
// filter to PENDING (ahead) repos, check_sync_groups gate, topological push.
package push

import (
	"context"
	"fmt"
	"strings"

	"github.com/Cleanroom-Labs/grove/internal/check"
	"github.com/Cleanroom-Labs/grove/internal/config"
	"github.com/Cleanroom-Labs/grove/internal/groverepo"
	"github.com/Cleanroom-Labs/grove/internal/vcsdriver"
)

type Options struct {
	DryRun     bool
	SkipChecks bool
	SyncGroup  string
	Cascade    string
	Paths      []string
}

// Run pushes every eligible repo in bottom-up order.
func Run(ctx context.Context, repoRoot string, cfg *config.GroveConfig, opts Options) error {
	set, err := groverepo.Discover(ctx, repoRoot, nil)
	if err != nil {
		return err
	}

	syncExclude := check.ExcludePaths(ctx, set, cfg.SyncGroups)

	filter, err := buildFilter(ctx, set, cfg, opts)
	if err != nil {
		return err
	}

	if !opts.SkipChecks {
		findings, err := check.CheckSyncGroups(ctx, set, cfg.SyncGroups)
		if err != nil {
			return err
		}
		for _, f := range findings {
			if len(f.Differing) > 0 {
				return fmt.Errorf("push blocked: sync group %q is inconsistent; run grove sync %s first (or pass --skip-checks)", f.GroupName, f.GroupName)
			}
		}
	}

	order := groverepo.TopologicalOrder(set)
	for _, r := range order {
		if syncExclude[r.RelPath] && filter == nil {
			continue
		}
		if filter != nil && !filter[r.RelPath] {
			continue
		}

		status, msg := groverepo.Validate(r, false, true, true)
		if status == groverepo.StatusUncommitted {
			return fmt.Errorf("push blocked: %s", msg)
		}
		if !r.HasRemote {
			continue
		}
		if r.Ahead == "0" || r.Ahead == "" {
			continue
		}

		if opts.DryRun {
			fmt.Printf("[dry-run] would push %s (%s ahead)\n", r.RelPath, r.Ahead)
			continue
		}

		d := vcsdriver.New(r.AbsPath)
		if _, err := d.Push(ctx, "origin", r.Branch); err != nil {
			return err
		}
		fmt.Printf("pushed %s\n", r.RelPath)
	}

	return nil
}

// buildFilter unions the explicit-paths, --sync-group, and --cascade filter
// sets; nil means "no filter" (push everything eligible).
func buildFilter(ctx context.Context, set *groverepo.Set, cfg *config.GroveConfig, opts Options) (map[string]bool, error) {
	if len(opts.Paths) == 0 && opts.SyncGroup == "" && opts.Cascade == "" {
		return nil, nil
	}
	filter := map[string]bool{}
	for _, p := range opts.Paths {
		filter[p] = true
	}

	if opts.SyncGroup != "" {
		group, ok := cfg.SyncGroups[opts.SyncGroup]
		if !ok {
			return nil, fmt.Errorf("unknown sync group %q", opts.SyncGroup)
		}
		for _, r := range set.Repos {
			if r.ParentPath == "" {
				continue
			}
			d := vcsdriver.New(r.AbsPath)
			url, err := d.RemoteURL(ctx, "origin")
			if err != nil || url == "" {
				continue
			}
			if strings.Contains(url, group.URLMatch) {
				filter[r.RelPath] = true
			}
		}
	}

	if opts.Cascade != "" {
		var node *groverepo.Repo
		for _, r := range set.Repos {
			if r.RelPath == opts.Cascade {
				node = r
				break
			}
		}
		if node == nil {
			return nil, fmt.Errorf("no repo at %q", opts.Cascade)
		}
		for node != nil {
			filter[node.RelPath] = true
			if node.ParentPath == "" {
				break
			}
			node = set.Repos[node.ParentPath]
		}
	}

	return filter, nil
}
