package diff

import (
	"encoding/binary"
	"math"
	"reflect"
	"regexp"
	"testing"

	"diffai/internal/errors"
	"diffai/internal/tensor"
	"diffai/internal/value"
)

func mkObj(t *testing.T, pairs ...interface{}) *value.Value {
	t.Helper()
	o := value.NewObject()
	for i := 0; i < len(pairs); i += 2 {
		o.Set(pairs[i].(string), pairs[i+1].(*value.Value))
	}
	return value.ObjectValue(o)
}

func f32Tensor(t *testing.T, name string, shape []int64, vals ...float32) *value.Value {
	t.Helper()
	data := make([]byte, 0, len(vals)*4)
	for _, v := range vals {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		data = append(data, buf[:]...)
	}
	h, err := tensor.NewHandle(name, tensor.F32, shape, data)
	if err != nil {
		t.Fatal(err)
	}
	return value.Tensor(h)
}

func mustDiff(t *testing.T, oldV, newV *value.Value, opts *Options) *Report {
	t.Helper()
	report, err := Diff(oldV, newV, opts)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	return report
}

func kindsAndPaths(report *Report) []string {
	out := make([]string, len(report.Results))
	for i, r := range report.Results {
		out[i] = string(r.Kind) + " " + r.Path
	}
	return out
}

func TestDiffIdenticalTreesEmpty(t *testing.T) {
	v1 := mkObj(t, "a", value.Number(1), "b", value.String("x"))
	v2 := mkObj(t, "b", value.String("x"), "a", value.Number(1))

	report := mustDiff(t, v1, v2, nil)
	if !report.IsEmpty() {
		t.Errorf("identical trees should produce no results, got %v", kindsAndPaths(report))
	}
	if report.Results == nil {
		t.Error("Results must be non-nil even when empty")
	}
}

func TestDiffScalarChanges(t *testing.T) {
	oldV := mkObj(t,
		"name", value.String("resnet"),
		"lr", value.Number(0.001),
		"frozen", value.Bool(true),
	)
	newV := mkObj(t,
		"name", value.String("resnet"),
		"lr", value.Number(0.01),
		"frozen", value.Bool(false),
	)

	report := mustDiff(t, oldV, newV, nil)
	want := []string{"modified frozen", "modified lr"}
	if got := kindsAndPaths(report); !reflect.DeepEqual(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}
	if report.Results[1].Old != 0.001 || report.Results[1].New != 0.01 {
		t.Errorf("lr record carries %v -> %v", report.Results[1].Old, report.Results[1].New)
	}
}

func TestDiffAddedRemovedInterleavedSorted(t *testing.T) {
	oldV := mkObj(t, "b", value.Number(1), "d", value.Number(2))
	newV := mkObj(t, "a", value.Number(0), "b", value.Number(1), "c", value.Number(3))

	report := mustDiff(t, oldV, newV, nil)
	want := []string{"added a", "added c", "removed d"}
	if got := kindsAndPaths(report); !reflect.DeepEqual(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}
}

func TestDiffTypeChanged(t *testing.T) {
	oldV := mkObj(t, "val", value.Number(1))
	newV := mkObj(t, "val", value.String("1"))

	report := mustDiff(t, oldV, newV, nil)
	if len(report.Results) != 1 {
		t.Fatalf("want 1 result, got %v", kindsAndPaths(report))
	}
	r := report.Results[0]
	if r.Kind != KindTypeChanged || r.OldType != "number" || r.NewType != "string" {
		t.Errorf("got %+v, want type_changed number->string", r)
	}
}

func TestDiffNestedPaths(t *testing.T) {
	oldV := mkObj(t, "model",
		mkObj(t, "layers", value.Array(
			value.Number(1),
			mkObj(t, "units", value.Number(64)),
		)),
	)
	newV := mkObj(t, "model",
		mkObj(t, "layers", value.Array(
			value.Number(1),
			mkObj(t, "units", value.Number(128)),
		)),
	)

	report := mustDiff(t, oldV, newV, nil)
	if len(report.Results) != 1 {
		t.Fatalf("want 1 result, got %v", kindsAndPaths(report))
	}
	if report.Results[0].Path != "model.layers[1].units" {
		t.Errorf("path = %q, want model.layers[1].units", report.Results[0].Path)
	}
}

func TestDiffArrayLengthChange(t *testing.T) {
	oldV := mkObj(t, "xs", value.Array(value.Number(1), value.Number(2), value.Number(3)))
	newV := mkObj(t, "xs", value.Array(value.Number(1)))

	report := mustDiff(t, oldV, newV, nil)
	want := []string{"removed xs[1]", "removed xs[2]"}
	if got := kindsAndPaths(report); !reflect.DeepEqual(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}
}

func TestDiffEpsilonInclusive(t *testing.T) {
	oldV := mkObj(t, "x", value.Number(1.0))
	newV := mkObj(t, "x", value.Number(1.1))

	tests := []struct {
		name    string
		epsilon *float64
		differs bool
	}{
		{name: "no tolerance", epsilon: nil, differs: true},
		{name: "below difference", epsilon: Epsilon(0.05), differs: true},
		{name: "exactly the difference", epsilon: Epsilon(math.Abs(1.1 - 1.0)), differs: false},
		{name: "above difference", epsilon: Epsilon(0.2), differs: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := mustDiff(t, oldV, newV, &Options{Epsilon: tt.epsilon})
			if got := !report.IsEmpty(); got != tt.differs {
				t.Errorf("differs = %v, want %v", got, tt.differs)
			}
		})
	}
}

func TestDiffNaNEqualsNaN(t *testing.T) {
	oldV := mkObj(t, "x", value.Number(math.NaN()))
	newV := mkObj(t, "x", value.Number(math.NaN()))

	report := mustDiff(t, oldV, newV, nil)
	if !report.IsEmpty() {
		t.Error("NaN must compare equal to NaN so self-comparison is empty")
	}
}

func TestDiffIgnoreKeysRegex(t *testing.T) {
	oldV := mkObj(t,
		"timestamp", value.String("2026-01-01"),
		"internal_id", value.Number(1),
		"name", value.String("a"),
	)
	newV := mkObj(t,
		"timestamp", value.String("2026-02-02"),
		"internal_id", value.Number(2),
		"name", value.String("b"),
	)

	report := mustDiff(t, oldV, newV, &Options{
		IgnoreKeysRegex: regexp.MustCompile(`^(timestamp|internal_.*)$`),
	})
	want := []string{"modified name"}
	if got := kindsAndPaths(report); !reflect.DeepEqual(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}
}

func TestDiffIgnoredKeyRemovalSuppressed(t *testing.T) {
	oldV := mkObj(t, "debug", value.Number(1), "name", value.String("a"))
	newV := mkObj(t, "name", value.String("a"))

	report := mustDiff(t, oldV, newV, &Options{IgnoreKeysRegex: regexp.MustCompile(`^debug$`)})
	if !report.IsEmpty() {
		t.Errorf("removal of an ignored key must not be reported, got %v", kindsAndPaths(report))
	}
}

func TestDiffPathFilter(t *testing.T) {
	oldV := mkObj(t,
		"model", mkObj(t, "lr", value.Number(1)),
		"data", mkObj(t, "batch", value.Number(32)),
	)
	newV := mkObj(t,
		"model", mkObj(t, "lr", value.Number(2)),
		"data", mkObj(t, "batch", value.Number(64)),
	)

	t.Run("prefix", func(t *testing.T) {
		report := mustDiff(t, oldV, newV, &Options{PathFilter: "model"})
		want := []string{"modified model.lr"}
		if got := kindsAndPaths(report); !reflect.DeepEqual(got, want) {
			t.Errorf("results = %v, want %v", got, want)
		}
	})

	t.Run("glob", func(t *testing.T) {
		report := mustDiff(t, oldV, newV, &Options{PathFilter: "*.batch"})
		want := []string{"modified data.batch"}
		if got := kindsAndPaths(report); !reflect.DeepEqual(got, want) {
			t.Errorf("results = %v, want %v", got, want)
		}
	})
}

func TestDiffDeterministic(t *testing.T) {
	oldV := mkObj(t, "z", value.Number(1), "a", value.Number(2), "m", value.Number(3))
	newV := mkObj(t, "m", value.Number(4), "z", value.Number(5), "b", value.Number(6))

	first := mustDiff(t, oldV, newV, nil)
	for i := 0; i < 5; i++ {
		again := mustDiff(t, oldV, newV, nil)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d diverged: %v vs %v", i, kindsAndPaths(first), kindsAndPaths(again))
		}
	}
}

func TestDiffSymmetry(t *testing.T) {
	oldV := mkObj(t,
		"only_old", value.Number(1),
		"both", value.String("x"),
	)
	newV := mkObj(t,
		"only_new", value.Number(2),
		"both", value.String("y"),
	)

	forward := mustDiff(t, oldV, newV, nil)
	backward := mustDiff(t, newV, oldV, nil)

	flip := func(k ResultKind) ResultKind {
		switch k {
		case KindAdded:
			return KindRemoved
		case KindRemoved:
			return KindAdded
		}
		return k
	}

	if len(forward.Results) != len(backward.Results) {
		t.Fatalf("asymmetric counts: %v vs %v", kindsAndPaths(forward), kindsAndPaths(backward))
	}
	byPath := make(map[string]Result, len(backward.Results))
	for _, r := range backward.Results {
		byPath[r.Path] = r
	}
	for _, fw := range forward.Results {
		bw, ok := byPath[fw.Path]
		if !ok {
			t.Fatalf("path %q missing in reverse run", fw.Path)
		}
		if bw.Kind != flip(fw.Kind) {
			t.Errorf("path %q: %s forward but %s backward", fw.Path, fw.Kind, bw.Kind)
		}
		if fw.Kind == KindModified {
			if !reflect.DeepEqual(fw.Old, bw.New) || !reflect.DeepEqual(fw.New, bw.Old) {
				t.Errorf("path %q: modified values not mirrored", fw.Path)
			}
		}
	}
}

func TestDiffEpsilonMonotonic(t *testing.T) {
	oldV := mkObj(t, "x", value.Number(10.0))
	newV := mkObj(t, "x", value.Number(10.3))

	// Once a tolerance absorbs the difference, every looser tolerance
	// must absorb it too.
	absorbed := false
	for _, eps := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		report := mustDiff(t, oldV, newV, &Options{Epsilon: Epsilon(eps)})
		if report.IsEmpty() {
			absorbed = true
		} else if absorbed {
			t.Fatalf("difference reappeared at looser epsilon %v", eps)
		}
	}
	if !absorbed {
		t.Error("difference of 0.3 should be absorbed by some tolerance in the sweep")
	}
}

func TestDiffSelfComparisonEmptyAcrossOptions(t *testing.T) {
	tree := mkObj(t,
		"model", mkObj(t,
			"lr", value.Number(0.001),
			"loss", value.Number(math.NaN()),
			"layers", value.Array(
				mkObj(t, "id", value.Number(1), "units", value.Number(64)),
				mkObj(t, "name", value.String("head")),
				value.Number(7),
			),
		),
		"w", f32Tensor(t, "w", []int64{2, 2}, 1, 2, 3, 4),
	)

	tests := []struct {
		name string
		opts *Options
	}{
		{name: "default", opts: nil},
		{name: "epsilon", opts: &Options{Epsilon: Epsilon(1e-6)}},
		{name: "array id key", opts: &Options{ArrayIDKey: "id"}},
		{name: "ignore keys", opts: &Options{IgnoreKeysRegex: regexp.MustCompile(`^lr$`)}},
		{name: "path filter", opts: &Options{PathFilter: "model"}},
		{name: "combined", opts: &Options{
			Epsilon:         Epsilon(0.5),
			ArrayIDKey:      "id",
			IgnoreKeysRegex: regexp.MustCompile(`^loss$`),
			PathFilter:      "model",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := mustDiff(t, tree, tree, tt.opts)
			if !report.IsEmpty() {
				t.Errorf("self-comparison produced %v", kindsAndPaths(report))
			}
		})
	}
}

func TestDiffNilSides(t *testing.T) {
	v := mkObj(t, "a", value.Number(1))

	t.Run("both nil", func(t *testing.T) {
		report := mustDiff(t, nil, nil, nil)
		if !report.IsEmpty() {
			t.Error("nil vs nil must be empty")
		}
	})

	t.Run("old nil", func(t *testing.T) {
		report := mustDiff(t, nil, v, nil)
		want := []string{"added "}
		if got := kindsAndPaths(report); !reflect.DeepEqual(got, want) {
			t.Errorf("results = %v, want root added", got)
		}
	})

	t.Run("new nil", func(t *testing.T) {
		report := mustDiff(t, v, nil, nil)
		if len(report.Results) != 1 || report.Results[0].Kind != KindRemoved {
			t.Errorf("results = %v, want root removed", kindsAndPaths(report))
		}
	})
}

func TestDiffTensorShapeChangeTerminal(t *testing.T) {
	oldV := mkObj(t, "w", f32Tensor(t, "w", []int64{2, 2}, 1, 2, 3, 4))
	newV := mkObj(t, "w", f32Tensor(t, "w", []int64{4}, 9, 9, 9, 9))

	report := mustDiff(t, oldV, newV, nil)
	if len(report.Results) != 1 {
		t.Fatalf("shape change must emit exactly one record, got %v", kindsAndPaths(report))
	}
	r := report.Results[0]
	if r.Kind != KindTensorShapeChanged {
		t.Fatalf("kind = %s, want tensor_shape_changed", r.Kind)
	}
	if !reflect.DeepEqual(r.OldShape, []int64{2, 2}) || !reflect.DeepEqual(r.NewShape, []int64{4}) {
		t.Errorf("shapes = %v -> %v", r.OldShape, r.NewShape)
	}
	if r.OldStats != nil || r.NewStats != nil {
		t.Error("shape change is terminal, no statistics may be attached")
	}
}

func TestDiffTensorStatsChanged(t *testing.T) {
	oldV := mkObj(t, "w", f32Tensor(t, "w", []int64{4}, 1, 2, 3, 4))
	newV := mkObj(t, "w", f32Tensor(t, "w", []int64{4}, 1, 2, 3, 8))

	report := mustDiff(t, oldV, newV, nil)
	if len(report.Results) != 1 || report.Results[0].Kind != KindTensorStatsChanged {
		t.Fatalf("results = %v, want one tensor_stats_changed", kindsAndPaths(report))
	}
	r := report.Results[0]
	if r.OldStats == nil || r.NewStats == nil {
		t.Fatal("stats records must carry both sides")
	}
	if r.OldStats.Max != 4 || r.NewStats.Max != 8 {
		t.Errorf("max = %v -> %v, want 4 -> 8", r.OldStats.Max, r.NewStats.Max)
	}
}

func TestDiffTensorStatsWithinEpsilon(t *testing.T) {
	oldV := mkObj(t, "w", f32Tensor(t, "w", []int64{2}, 1.0, 2.0))
	newV := mkObj(t, "w", f32Tensor(t, "w", []int64{2}, 1.0000001, 2.0))

	report := mustDiff(t, oldV, newV, &Options{Epsilon: Epsilon(1e-3)})
	if !report.IsEmpty() {
		t.Errorf("statistics within tolerance must not be reported, got %v", kindsAndPaths(report))
	}
}

func TestDiffTensorIdenticalBytesFastPath(t *testing.T) {
	oldV := mkObj(t, "w", f32Tensor(t, "w", []int64{2}, 1, 2))
	newV := mkObj(t, "w", f32Tensor(t, "w", []int64{2}, 1, 2))

	report := mustDiff(t, oldV, newV, nil)
	if !report.IsEmpty() {
		t.Errorf("byte-identical tensors must be equal, got %v", kindsAndPaths(report))
	}
}

func TestDiffTensorAddedRemoved(t *testing.T) {
	oldV := mkObj(t, "gone", f32Tensor(t, "gone", []int64{2}, 1, 2))
	newV := mkObj(t, "fresh", f32Tensor(t, "fresh", []int64{2}, 3, 4))

	report := mustDiff(t, oldV, newV, nil)
	want := []string{"tensor_added fresh", "tensor_removed gone"}
	if got := kindsAndPaths(report); !reflect.DeepEqual(got, want) {
		t.Fatalf("results = %v, want %v", got, want)
	}
	if report.Results[0].Stats == nil || report.Results[0].Stats.Mean != 3.5 {
		t.Errorf("added tensor must carry its statistics, got %+v", report.Results[0].Stats)
	}
}

func TestDiffTensorUnreadableDegrades(t *testing.T) {
	// A buffer shorter than the claimed shape: stats fail, comparison of
	// the sibling continues.
	badH, err := tensor.NewHandle("bad", tensor.F32, []int64{4}, make([]byte, 6))
	if err != nil {
		t.Fatal(err)
	}
	oldV := mkObj(t,
		"bad", value.Tensor(badH),
		"lr", value.Number(1),
	)
	goodH, err := tensor.NewHandle("bad", tensor.F32, []int64{4}, make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}
	newV := mkObj(t,
		"bad", value.Tensor(goodH),
		"lr", value.Number(2),
	)

	report := mustDiff(t, oldV, newV, nil)
	want := []string{"tensor_unreadable bad", "modified lr"}
	if got := kindsAndPaths(report); !reflect.DeepEqual(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}
	if report.Results[0].Reason == "" {
		t.Error("unreadable record must carry a reason")
	}
}

func TestDiffTensorVsScalarIsTypeChanged(t *testing.T) {
	oldV := mkObj(t, "w", f32Tensor(t, "w", []int64{1}, 1))
	newV := mkObj(t, "w", value.Number(1))

	report := mustDiff(t, oldV, newV, nil)
	if len(report.Results) != 1 || report.Results[0].Kind != KindTypeChanged {
		t.Fatalf("results = %v, want one type_changed", kindsAndPaths(report))
	}
	if report.Results[0].OldType != "tensor" || report.Results[0].NewType != "number" {
		t.Errorf("types = %s -> %s", report.Results[0].OldType, report.Results[0].NewType)
	}
}

func TestDiffInvalidTreeRejected(t *testing.T) {
	h, err := tensor.NewHandle("w", tensor.F32, []int64{2}, make([]byte, 8))
	if err != nil {
		t.Fatal(err)
	}
	h.Shape[0] = -2 // corrupted after construction

	_, err = Diff(mkObj(t, "w", value.Tensor(h)), mkObj(t, "x", value.Number(1)), nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if errors.CodeOf(err) != errors.InvalidTree {
		t.Errorf("error code = %s, want INVALID_TREE", errors.CodeOf(err))
	}
}
