// Package diff implements the structural diff engine: a configurable
// tree-diff over the canonical value model that compares large numeric
// arrays through their summary statistics instead of element by element.
package diff

import (
	"bytes"
	"fmt"
	"sort"

	"diffai/internal/errors"
	"diffai/internal/tensor"
	"diffai/internal/value"
)

// Diff recursively compares two value trees under the given options and
// returns the ordered difference report. All state is created fresh per
// call and discarded afterwards; concurrent calls over distinct inputs
// need no locking.
//
// Structurally fatal problems (malformed tree) abort with an error.
// Per-tensor statistics failures degrade to tensor_unreadable records
// and comparison of the rest of the tree continues.
func Diff(oldV, newV *value.Value, opts *Options) (*Report, error) {
	if opts == nil {
		opts = &Options{}
	}
	if err := validateTree("", oldV); err != nil {
		return nil, err
	}
	if err := validateTree("", newV); err != nil {
		return nil, err
	}

	e := &engine{
		opts:     opts,
		stats:    make(map[*tensor.Handle]*tensor.Stats),
		statsErr: make(map[*tensor.Handle]error),
	}

	switch {
	case oldV == nil && newV == nil:
		// Nothing to compare.
	case oldV == nil:
		e.emitAdded("", newV)
	case newV == nil:
		e.emitRemoved("", oldV)
	default:
		e.compare("", oldV, newV)
	}

	results := e.results
	if opts.PathFilter != "" {
		filtered := results[:0]
		for _, r := range results {
			if opts.pathMatches(r.Path) {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if results == nil {
		results = []Result{}
	}

	return &Report{Results: results, Warnings: e.warnings}, nil
}

type engine struct {
	opts     *Options
	results  []Result
	warnings []Warning

	// Per-call stats cache: computed on demand exactly once per handle.
	stats    map[*tensor.Handle]*tensor.Stats
	statsErr map[*tensor.Handle]error
}

func (e *engine) emit(r Result) {
	e.results = append(e.results, r)
}

func (e *engine) warn(code errors.ErrorCode, path, message string) {
	e.warnings = append(e.warnings, Warning{Code: code, Path: path, Message: message})
}

func (e *engine) compare(path string, oldV, newV *value.Value) {
	// Exact structural equality never yields a record under any
	// tolerance. This also keeps identity matching from splitting the
	// keyless elements of two identical arrays into removed/added pairs.
	if value.Equal(oldV, newV) {
		return
	}

	if oldV.Kind() == value.KindTensor && newV.Kind() == value.KindTensor {
		e.compareTensors(path, oldV.TensorHandle(), newV.TensorHandle())
		return
	}
	if oldV.Kind() != newV.Kind() {
		e.emit(typeChanged(path, oldV, newV))
		return
	}

	switch oldV.Kind() {
	case value.KindBool, value.KindString:
		// Unequal by the fast path above.
		e.emit(modified(path, oldV, newV))
	case value.KindNumber:
		a, _ := oldV.AsNumber()
		b, _ := newV.AsNumber()
		if !e.opts.numbersEqual(a, b) {
			e.emit(modified(path, oldV, newV))
		}
	case value.KindArray:
		e.compareArrays(path, oldV.Items(), newV.Items())
	case value.KindObject:
		e.compareObjects(path, oldV.Object(), newV.Object())
	}
}

// compareObjects walks the union of both key sets in lexicographic order
// so repeated runs produce byte-identical output regardless of insertion
// order. Keys matching the ignore pattern are skipped entirely on both
// sides: no recursion, no emission.
func (e *engine) compareObjects(path string, oldObj, newObj *value.Object) {
	keys := unionKeys(oldObj, newObj)
	for _, key := range keys {
		if e.opts.ignoreKey(key) {
			continue
		}
		childPath := joinKey(path, key)
		oldChild, oldOK := oldObj.Get(key)
		newChild, newOK := newObj.Get(key)
		switch {
		case oldOK && newOK:
			e.compare(childPath, oldChild, newChild)
		case oldOK:
			e.emitRemoved(childPath, oldChild)
		default:
			e.emitAdded(childPath, newChild)
		}
	}
}

// compareArrays compares index by index up to the shorter length, then
// emits removals for trailing old-only indices and additions for
// trailing new-only indices. With an identity key configured, alignment
// is delegated to the identity matcher.
func (e *engine) compareArrays(path string, oldArr, newArr []*value.Value) {
	if e.opts.ArrayIDKey != "" {
		e.compareArraysByID(path, oldArr, newArr)
		return
	}
	e.comparePositional(path, oldArr, newArr)
}

func (e *engine) comparePositional(path string, oldArr, newArr []*value.Value) {
	minLen := len(oldArr)
	if len(newArr) < minLen {
		minLen = len(newArr)
	}
	for i := 0; i < minLen; i++ {
		e.compare(indexPath(path, i), oldArr[i], newArr[i])
	}
	for i := minLen; i < len(oldArr); i++ {
		e.emitRemoved(indexPath(path, i), oldArr[i])
	}
	for i := minLen; i < len(newArr); i++ {
		e.emitAdded(indexPath(path, i), newArr[i])
	}
}

// compareTensors emits at most one record per path: a shape change is
// terminal (element comparison is meaningless across shapes), otherwise
// summary statistics decide equality under the configured tolerance.
func (e *engine) compareTensors(path string, oldH, newH *tensor.Handle) {
	if !tensor.ShapeEquals(oldH.Shape, newH.Shape) {
		e.emit(tensorShapeChanged(path, copyShape(oldH.Shape), copyShape(newH.Shape)))
		return
	}

	// Exact-match fast path: identical dtype and bytes need no stats.
	if oldH.DType == newH.DType && bytes.Equal(oldH.Data(), newH.Data()) {
		return
	}

	oldStats, err := e.statsFor(oldH)
	if err != nil {
		e.emit(tensorUnreadable(path, err))
		return
	}
	newStats, err := e.statsFor(newH)
	if err != nil {
		e.emit(tensorUnreadable(path, err))
		return
	}

	if e.statsDiffer(oldStats, newStats) {
		e.emit(tensorStatsChanged(path, oldStats, newStats))
	}
}

// statsFor computes statistics at most once per handle per call.
func (e *engine) statsFor(h *tensor.Handle) (*tensor.Stats, error) {
	if s, ok := e.stats[h]; ok {
		return s, nil
	}
	if err, ok := e.statsErr[h]; ok {
		return nil, err
	}
	s, err := tensor.ComputeStats(h)
	if err != nil {
		e.statsErr[h] = err
		return nil, err
	}
	e.stats[h] = s
	return s, nil
}

func (e *engine) statsDiffer(a, b *tensor.Stats) bool {
	if a.DType != b.DType || a.TotalParams != b.TotalParams {
		return true
	}
	return !e.opts.numbersEqual(a.Mean, b.Mean) ||
		!e.opts.numbersEqual(a.Std, b.Std) ||
		!e.opts.numbersEqual(a.Min, b.Min) ||
		!e.opts.numbersEqual(a.Max, b.Max)
}

// emitAdded emits the record for a subtree present only on the new side:
// tensor_added with statistics for tensor leaves, a generic added record
// otherwise.
func (e *engine) emitAdded(path string, v *value.Value) {
	if v.Kind() == value.KindTensor {
		stats, err := e.statsFor(v.TensorHandle())
		if err != nil {
			e.emit(tensorUnreadable(path, err))
			return
		}
		e.emit(tensorAdded(path, stats))
		return
	}
	e.emit(added(path, v))
}

func (e *engine) emitRemoved(path string, v *value.Value) {
	if v.Kind() == value.KindTensor {
		stats, err := e.statsFor(v.TensorHandle())
		if err != nil {
			e.emit(tensorUnreadable(path, err))
			return
		}
		e.emit(tensorRemoved(path, stats))
		return
	}
	e.emit(removed(path, v))
}

// validateTree rejects structurally malformed inputs for which no
// meaningful partial result exists.
func validateTree(path string, v *value.Value) error {
	if v == nil {
		return nil
	}
	switch v.Kind() {
	case value.KindTensor:
		h := v.TensorHandle()
		if h == nil {
			return errors.Newf(errors.InvalidTree, "tensor node without handle at %q", path)
		}
		for _, dim := range h.Shape {
			if dim < 0 {
				return errors.Newf(errors.InvalidTree,
					"tensor %q claims negative dimension %d", joinKey(path, h.Name), dim)
			}
		}
	case value.KindArray:
		for i, item := range v.Items() {
			if item == nil {
				return errors.Newf(errors.InvalidTree, "nil element at %q", indexPath(path, i))
			}
			if err := validateTree(indexPath(path, i), item); err != nil {
				return err
			}
		}
	case value.KindObject:
		obj := v.Object()
		if obj == nil {
			return errors.Newf(errors.InvalidTree, "object node without map at %q", path)
		}
		for _, key := range obj.Keys() {
			child, _ := obj.Get(key)
			if child == nil {
				return errors.Newf(errors.InvalidTree, "nil value at %q", joinKey(path, key))
			}
			if err := validateTree(joinKey(path, key), child); err != nil {
				return err
			}
		}
	}
	return nil
}

func unionKeys(a, b *value.Object) []string {
	keys := a.SortedKeys()
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	extra := false
	for _, k := range b.SortedKeys() {
		if !seen[k] {
			keys = append(keys, k)
			extra = true
		}
	}
	if extra {
		sort.Strings(keys)
	}
	return keys
}

func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func indexPath(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func idPath(path, key, id string) string {
	return fmt.Sprintf("%s[%s=%s]", path, key, id)
}

func copyShape(shape []int64) []int64 {
	out := make([]int64, len(shape))
	copy(out, shape)
	return out
}
