// Package dirdiff compares two directory trees file by file: files are
// paired by relative path, parsed, and diffed concurrently, and the
// per-file reports are merged into one report whose paths carry a
// "relpath/" prefix.
package dirdiff

import (
	"context"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"diffai/internal/diff"
	"diffai/internal/errors"
	"diffai/internal/parsers"
	"diffai/internal/value"
)

// Compare walks both directories, pairs files by relative path, and
// diffs every pair under the given options. Files whose format cannot
// be detected or whose parse fails are skipped with a warning; a file
// present on only one side diffs against an absent tree, producing
// added/removed records. The merged report is ordered by relative path,
// then by each file's own emission order.
func Compare(ctx context.Context, oldDir, newDir string, opts *diff.Options) (*diff.Report, error) {
	oldFiles, err := listFiles(oldDir)
	if err != nil {
		return nil, err
	}
	newFiles, err := listFiles(newDir)
	if err != nil {
		return nil, err
	}

	rels := unionSorted(oldFiles, newFiles)

	var mu sync.Mutex
	reports := make(map[string]*diff.Report, len(rels))
	skips := make(map[string]diff.Warning)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, rel := range rels {
		rel := rel
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			report, warn, err := compareOne(oldDir, newDir, rel, oldFiles[rel], newFiles[rel], opts)
			if err != nil {
				return err
			}
			mu.Lock()
			if report != nil {
				reports[rel] = report
			}
			if warn != nil {
				skips[rel] = *warn
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &diff.Report{Results: []diff.Result{}}
	for _, rel := range rels {
		if warn, ok := skips[rel]; ok {
			merged.Warnings = append(merged.Warnings, warn)
			continue
		}
		report, ok := reports[rel]
		if !ok {
			continue
		}
		for _, r := range report.Results {
			r.Path = prefixPath(rel, r.Path)
			merged.Results = append(merged.Results, r)
		}
		for _, w := range report.Warnings {
			w.Path = prefixPath(rel, w.Path)
			merged.Warnings = append(merged.Warnings, w)
		}
	}
	return merged, nil
}

// compareOne diffs a single relative path. At least one of inOld/inNew
// is true.
func compareOne(oldDir, newDir, rel string, inOld, inNew bool, opts *diff.Options) (*diff.Report, *diff.Warning, error) {
	format, err := parsers.DetectFormat(rel)
	if err != nil {
		return nil, skipWarning(rel, err), nil
	}

	var oldV, newV *value.Value
	if inOld {
		oldV, err = parsers.ParseFile(filepath.Join(oldDir, rel), format)
		if err != nil {
			return nil, skipWarning(rel, err), nil
		}
	}
	if inNew {
		newV, err = parsers.ParseFile(filepath.Join(newDir, rel), format)
		if err != nil {
			return nil, skipWarning(rel, err), nil
		}
	}

	report, err := diff.Diff(oldV, newV, opts)
	if err != nil {
		return nil, nil, err
	}
	return report, nil, nil
}

func skipWarning(rel string, err error) *diff.Warning {
	return &diff.Warning{
		Code:    errors.CodeOf(err),
		Path:    rel,
		Message: "skipped: " + err.Error(),
	}
}

// listFiles collects the set of regular files under root, keyed by
// slash-separated relative path.
func listFiles(root string) (map[string]bool, error) {
	files := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = true
		return nil
	})
	if err != nil {
		return nil, errors.New(errors.ParseFailed, "walking "+root, err)
	}
	return files, nil
}

func unionSorted(a, b map[string]bool) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var rels []string
	for rel := range a {
		seen[rel] = true
		rels = append(rels, rel)
	}
	for rel := range b {
		if !seen[rel] {
			seen[rel] = true
			rels = append(rels, rel)
		}
	}
	sort.Strings(rels)
	return rels
}

func prefixPath(rel, path string) string {
	if path == "" {
		return rel
	}
	return rel + "/" + path
}
