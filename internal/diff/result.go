package diff

import (
	"diffai/internal/errors"
	"diffai/internal/tensor"
	"diffai/internal/value"
)

// ResultKind tags one difference record.
type ResultKind string

const (
	// KindAdded is a key or element present only on the new side
	KindAdded ResultKind = "added"
	// KindRemoved is a key or element present only on the old side
	KindRemoved ResultKind = "removed"
	// KindModified is a scalar whose value changed
	KindModified ResultKind = "modified"
	// KindTypeChanged is a node whose variant changed
	KindTypeChanged ResultKind = "type_changed"
	// KindTensorShapeChanged is a tensor pair with differing shapes;
	// shape mismatch is terminal, no stats are compared
	KindTensorShapeChanged ResultKind = "tensor_shape_changed"
	// KindTensorStatsChanged is a same-shape tensor pair whose summary
	// statistics differ beyond tolerance
	KindTensorStatsChanged ResultKind = "tensor_stats_changed"
	// KindTensorAdded is a tensor present only on the new side
	KindTensorAdded ResultKind = "tensor_added"
	// KindTensorRemoved is a tensor present only on the old side
	KindTensorRemoved ResultKind = "tensor_removed"
	// KindTensorUnreadable is a degraded record for a tensor whose
	// statistics could not be computed; comparison of the rest of the
	// tree continues
	KindTensorUnreadable ResultKind = "tensor_unreadable"
)

// Result is one typed difference record.
type Result struct {
	Kind ResultKind `json:"type"`
	Path string     `json:"path"`

	// Old and New carry plain-Go renderings of the changed values for
	// added/removed/modified records.
	Old interface{} `json:"old,omitempty"`
	New interface{} `json:"new,omitempty"`

	// OldType and NewType are set for type_changed records.
	OldType string `json:"oldType,omitempty"`
	NewType string `json:"newType,omitempty"`

	// OldShape and NewShape are set for tensor_shape_changed records.
	OldShape []int64 `json:"oldShape,omitempty"`
	NewShape []int64 `json:"newShape,omitempty"`

	// OldStats and NewStats are set for tensor_stats_changed records.
	OldStats *tensor.Stats `json:"oldStats,omitempty"`
	NewStats *tensor.Stats `json:"newStats,omitempty"`

	// Stats is set for tensor_added and tensor_removed records.
	Stats *tensor.Stats `json:"stats,omitempty"`

	// Reason is set for tensor_unreadable records.
	Reason string `json:"reason,omitempty"`
}

// Warning records a non-fatal degradation, such as an identity key that
// could not apply to any array element.
type Warning struct {
	Code    errors.ErrorCode `json:"code"`
	Path    string           `json:"path"`
	Message string           `json:"message"`
}

// Report is the output of one comparison call.
type Report struct {
	Results  []Result  `json:"results"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// IsEmpty reports whether the comparison found no differences.
func (r *Report) IsEmpty() bool {
	return len(r.Results) == 0
}

func added(path string, v *value.Value) Result {
	return Result{Kind: KindAdded, Path: path, New: v.Interface()}
}

func removed(path string, v *value.Value) Result {
	return Result{Kind: KindRemoved, Path: path, Old: v.Interface()}
}

func modified(path string, oldV, newV *value.Value) Result {
	return Result{Kind: KindModified, Path: path, Old: oldV.Interface(), New: newV.Interface()}
}

func typeChanged(path string, oldV, newV *value.Value) Result {
	return Result{Kind: KindTypeChanged, Path: path, OldType: oldV.TypeName(), NewType: newV.TypeName()}
}

func tensorShapeChanged(path string, oldShape, newShape []int64) Result {
	return Result{Kind: KindTensorShapeChanged, Path: path, OldShape: oldShape, NewShape: newShape}
}

func tensorStatsChanged(path string, oldStats, newStats *tensor.Stats) Result {
	return Result{Kind: KindTensorStatsChanged, Path: path, OldStats: oldStats, NewStats: newStats}
}

func tensorAdded(path string, stats *tensor.Stats) Result {
	return Result{Kind: KindTensorAdded, Path: path, Stats: stats}
}

func tensorRemoved(path string, stats *tensor.Stats) Result {
	return Result{Kind: KindTensorRemoved, Path: path, Stats: stats}
}

func tensorUnreadable(path string, err error) Result {
	return Result{Kind: KindTensorUnreadable, Path: path, Reason: err.Error()}
}
