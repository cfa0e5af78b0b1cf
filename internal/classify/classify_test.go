package classify

import (
	"math"
	"testing"

	"diffai/internal/diff"
	"diffai/internal/tensor"
)

func stats(mean, std, min, max float64, dtype string, params int64) *tensor.Stats {
	return &tensor.Stats{
		Mean: mean, Std: std, Min: min, Max: max,
		Shape: []int64{params}, DType: dtype, TotalParams: params,
	}
}

func findLabels(findings []Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Label
	}
	return out
}

func TestArchitectureChange(t *testing.T) {
	report := &diff.Report{Results: []diff.Result{
		{Kind: diff.KindTensorShapeChanged, Path: "fc.weight"},
		{Kind: diff.KindTensorAdded, Path: "head.weight"},
	}}

	findings := ArchitectureChange(report)
	if len(findings) != 1 {
		t.Fatalf("want 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Label != "architecture_changed" || f.Severity != SeverityWarning {
		t.Errorf("finding = %+v", f)
	}
	if f.Details["reshaped"] != 1 || f.Details["added"] != 1 || f.Details["removed"] != 0 {
		t.Errorf("details = %v", f.Details)
	}
}

func TestArchitectureChangeQuietOnStatsOnly(t *testing.T) {
	report := &diff.Report{Results: []diff.Result{
		{
			Kind:     diff.KindTensorStatsChanged,
			Path:     "w",
			OldStats: stats(0, 1, -1, 1, "f32", 4),
			NewStats: stats(0, 1, -1, 2, "f32", 4),
		},
	}}
	if findings := ArchitectureChange(report); findings != nil {
		t.Errorf("stats-only changes are not architectural, got %v", findLabels(findings))
	}
}

func TestQuantizationGuessDtypeNarrowed(t *testing.T) {
	report := &diff.Report{Results: []diff.Result{
		{
			Kind:     diff.KindTensorStatsChanged,
			Path:     "w",
			OldStats: stats(0, 1, -1, 1, "f32", 4),
			NewStats: stats(0, 1, -1, 1, "f16", 4),
		},
	}}

	findings := QuantizationGuess(report)
	if len(findings) != 1 || findings[0].Label != "likely_quantized" {
		t.Fatalf("findings = %v", findLabels(findings))
	}
	if findings[0].Path != "w" {
		t.Errorf("path = %q", findings[0].Path)
	}
}

func TestQuantizationGuessRangeCollapse(t *testing.T) {
	report := &diff.Report{Results: []diff.Result{
		{
			Kind:     diff.KindTensorStatsChanged,
			Path:     "w",
			OldStats: stats(0, 1, -10, 10, "f32", 4),
			NewStats: stats(0, 1, -1, 1, "f32", 4),
		},
	}}
	if findings := QuantizationGuess(report); len(findings) != 1 {
		t.Errorf("collapsed range should be flagged, got %v", findLabels(findings))
	}
}

func TestGradientHealthNaNContamination(t *testing.T) {
	report := &diff.Report{Results: []diff.Result{
		{
			Kind:     diff.KindTensorStatsChanged,
			Path:     "w",
			OldStats: stats(0, 1, -1, 1, "f32", 4),
			NewStats: stats(math.NaN(), math.NaN(), math.NaN(), math.NaN(), "f32", 4),
		},
	}}

	findings := GradientHealth(report)
	if len(findings) != 1 {
		t.Fatalf("findings = %v", findLabels(findings))
	}
	if findings[0].Label != "nan_contamination" || findings[0].Severity != SeverityCritical {
		t.Errorf("finding = %+v", findings[0])
	}
}

func TestGradientHealthExplodingAndVanishing(t *testing.T) {
	report := &diff.Report{Results: []diff.Result{
		{
			Kind:     diff.KindTensorStatsChanged,
			Path:     "boom",
			OldStats: stats(0, 0.1, -1, 1, "f32", 4),
			NewStats: stats(0, 5.0, -1, 1, "f32", 4),
		},
		{
			Kind:     diff.KindTensorStatsChanged,
			Path:     "fade",
			OldStats: stats(0, 1.0, -1, 1, "f32", 4),
			NewStats: stats(0, 0.01, -1, 1, "f32", 4),
		},
		{
			Kind:     diff.KindTensorStatsChanged,
			Path:     "fine",
			OldStats: stats(0, 1.0, -1, 1, "f32", 4),
			NewStats: stats(0, 1.5, -1, 1, "f32", 4),
		},
	}}

	findings := GradientHealth(report)
	labels := findLabels(findings)
	if len(labels) != 2 || labels[0] != "exploding_values" || labels[1] != "vanishing_values" {
		t.Errorf("labels = %v, want [exploding_values vanishing_values]", labels)
	}
}

func TestMemoryUsage(t *testing.T) {
	report := &diff.Report{Results: []diff.Result{
		{Kind: diff.KindTensorAdded, Path: "a", Stats: stats(0, 0, 0, 0, "f32", 100)},
		{Kind: diff.KindTensorRemoved, Path: "b", Stats: stats(0, 0, 0, 0, "f32", 25)},
	}}

	findings := MemoryUsage(report)
	if len(findings) != 1 {
		t.Fatalf("findings = %v", findLabels(findings))
	}
	// +100 f32 params, -25 f32 params -> +300 bytes.
	if findings[0].Details["deltaBytes"] != int64(300) {
		t.Errorf("deltaBytes = %v, want 300", findings[0].Details["deltaBytes"])
	}
}

func TestTrainingScalars(t *testing.T) {
	report := &diff.Report{Results: []diff.Result{
		{Kind: diff.KindModified, Path: "optimizer.lr", Old: 0.001, New: 0.0001},
		{Kind: diff.KindModified, Path: "epoch", Old: 10.0, New: 20.0},
		{Kind: diff.KindModified, Path: "notes", Old: "a", New: "b"},
	}}

	findings := TrainingScalars(report)
	labels := findLabels(findings)
	if len(labels) != 2 || labels[0] != "learning_rate_changed" || labels[1] != "epoch_changed" {
		t.Errorf("labels = %v", labels)
	}
}

func TestRunConcatenatesInOrder(t *testing.T) {
	report := &diff.Report{Results: []diff.Result{
		{Kind: diff.KindTensorAdded, Path: "a", Stats: stats(0, 0, 0, 0, "f32", 1)},
	}}

	findings := Run(report, Default)
	labels := findLabels(findings)
	// ArchitectureChange fires before MemoryUsage per the Default order.
	if len(labels) != 2 || labels[0] != "architecture_changed" || labels[1] != "memory_usage_changed" {
		t.Errorf("labels = %v", labels)
	}
}
