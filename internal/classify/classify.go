// Package classify maps difference records plus tensor statistics to
// higher-level labels. Classifiers are stateless functions over a
// finished report; none of them feed back into the diff engine.
package classify

import (
	"fmt"
	"math"
	"strings"

	"diffai/internal/diff"
	"diffai/internal/tensor"
)

// Severity grades a finding.
type Severity string

const (
	// SeverityInfo marks an observation
	SeverityInfo Severity = "info"
	// SeverityWarning marks a change that usually deserves review
	SeverityWarning Severity = "warning"
	// SeverityCritical marks a change that likely breaks the model
	SeverityCritical Severity = "critical"
)

// Finding is one labeled annotation derived from a report.
type Finding struct {
	Label    string                 `json:"label"`
	Severity Severity               `json:"severity"`
	Path     string                 `json:"path,omitempty"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Classifier inspects a report and produces zero or more findings.
type Classifier func(report *diff.Report) []Finding

// Default is the classifier set the CLI runs for ML inputs.
var Default = []Classifier{
	ArchitectureChange,
	QuantizationGuess,
	GradientHealth,
	MemoryUsage,
	TrainingScalars,
}

// Run applies every classifier in order and concatenates the findings.
func Run(report *diff.Report, classifiers []Classifier) []Finding {
	var findings []Finding
	for _, c := range classifiers {
		findings = append(findings, c(report)...)
	}
	return findings
}

// ArchitectureChange reports when the tensor census changed: reshaped,
// added, or removed tensors mean the two sides are not the same network.
func ArchitectureChange(report *diff.Report) []Finding {
	var reshaped, addedT, removedT int
	for _, r := range report.Results {
		switch r.Kind {
		case diff.KindTensorShapeChanged:
			reshaped++
		case diff.KindTensorAdded:
			addedT++
		case diff.KindTensorRemoved:
			removedT++
		}
	}
	if reshaped == 0 && addedT == 0 && removedT == 0 {
		return nil
	}
	return []Finding{{
		Label:    "architecture_changed",
		Severity: SeverityWarning,
		Message: fmt.Sprintf("tensor census changed: %d reshaped, %d added, %d removed",
			reshaped, addedT, removedT),
		Details: map[string]interface{}{
			"reshaped": reshaped,
			"added":    addedT,
			"removed":  removedT,
		},
	}}
}

// QuantizationGuess flags tensors whose dtype narrowed or whose value
// range collapsed, the usual signature of post-training quantization.
func QuantizationGuess(report *diff.Report) []Finding {
	var findings []Finding
	for _, r := range report.Results {
		if r.Kind != diff.KindTensorStatsChanged || r.OldStats == nil || r.NewStats == nil {
			continue
		}
		oldWidth := dtypeWidth(r.OldStats.DType)
		newWidth := dtypeWidth(r.NewStats.DType)
		if newWidth > 0 && oldWidth > newWidth {
			findings = append(findings, Finding{
				Label:    "likely_quantized",
				Severity: SeverityInfo,
				Path:     r.Path,
				Message: fmt.Sprintf("dtype narrowed from %s to %s",
					r.OldStats.DType, r.NewStats.DType),
				Details: map[string]interface{}{
					"oldDtype": r.OldStats.DType,
					"newDtype": r.NewStats.DType,
				},
			})
			continue
		}

		oldRange := r.OldStats.Max - r.OldStats.Min
		newRange := r.NewStats.Max - r.NewStats.Min
		if oldRange > 0 && !math.IsNaN(newRange) && newRange < oldRange*0.5 {
			findings = append(findings, Finding{
				Label:    "likely_quantized",
				Severity: SeverityInfo,
				Path:     r.Path,
				Message:  fmt.Sprintf("value range collapsed from %.6g to %.6g", oldRange, newRange),
			})
		}
	}
	return findings
}

// GradientHealth flags exploding, vanishing, or NaN-contaminated tensors
// by comparing standard deviations across the two sides.
func GradientHealth(report *diff.Report) []Finding {
	var findings []Finding
	for _, r := range report.Results {
		if r.Kind != diff.KindTensorStatsChanged || r.OldStats == nil || r.NewStats == nil {
			continue
		}
		if !statsHasNaN(r.OldStats) && statsHasNaN(r.NewStats) {
			findings = append(findings, Finding{
				Label:    "nan_contamination",
				Severity: SeverityCritical,
				Path:     r.Path,
				Message:  "tensor statistics became NaN",
			})
			continue
		}
		if r.OldStats.Std <= 0 {
			continue
		}
		ratio := r.NewStats.Std / r.OldStats.Std
		switch {
		case ratio > 10:
			findings = append(findings, Finding{
				Label:    "exploding_values",
				Severity: SeverityWarning,
				Path:     r.Path,
				Message:  fmt.Sprintf("standard deviation grew %.1fx", ratio),
			})
		case ratio < 0.1:
			findings = append(findings, Finding{
				Label:    "vanishing_values",
				Severity: SeverityWarning,
				Path:     r.Path,
				Message:  fmt.Sprintf("standard deviation shrank to %.3fx", ratio),
			})
		}
	}
	return findings
}

// MemoryUsage estimates the parameter-buffer byte delta implied by
// added/removed tensors and dtype changes.
func MemoryUsage(report *diff.Report) []Finding {
	var deltaBytes int64
	for _, r := range report.Results {
		switch r.Kind {
		case diff.KindTensorAdded:
			if r.Stats != nil {
				deltaBytes += r.Stats.TotalParams * dtypeWidth(r.Stats.DType)
			}
		case diff.KindTensorRemoved:
			if r.Stats != nil {
				deltaBytes -= r.Stats.TotalParams * dtypeWidth(r.Stats.DType)
			}
		case diff.KindTensorStatsChanged:
			if r.OldStats != nil && r.NewStats != nil {
				deltaBytes += r.NewStats.TotalParams*dtypeWidth(r.NewStats.DType) -
					r.OldStats.TotalParams*dtypeWidth(r.OldStats.DType)
			}
		}
	}
	if deltaBytes == 0 {
		return nil
	}
	return []Finding{{
		Label:    "memory_usage_changed",
		Severity: SeverityInfo,
		Message:  fmt.Sprintf("estimated parameter memory delta: %+d bytes", deltaBytes),
		Details:  map[string]interface{}{"deltaBytes": deltaBytes},
	}}
}

// trainingScalarLabels maps well-known checkpoint scalar keys to labels.
var trainingScalarLabels = map[string]string{
	"lr":            "learning_rate_changed",
	"learning_rate": "learning_rate_changed",
	"loss":          "loss_changed",
	"accuracy":      "accuracy_changed",
	"acc":           "accuracy_changed",
	"epoch":         "epoch_changed",
}

// TrainingScalars tracks modifications to well-known training metadata
// scalars (learning rate, loss, accuracy, epoch).
func TrainingScalars(report *diff.Report) []Finding {
	var findings []Finding
	for _, r := range report.Results {
		if r.Kind != diff.KindModified {
			continue
		}
		label, ok := trainingScalarLabels[lastSegment(r.Path)]
		if !ok {
			continue
		}
		findings = append(findings, Finding{
			Label:    label,
			Severity: SeverityInfo,
			Path:     r.Path,
			Message:  fmt.Sprintf("%v -> %v", r.Old, r.New),
			Details:  map[string]interface{}{"old": r.Old, "new": r.New},
		})
	}
	return findings
}

func lastSegment(path string) string {
	if i := strings.LastIndexAny(path, "]."); i >= 0 && i+1 < len(path) {
		return path[i+1:]
	}
	return path
}

func dtypeWidth(label string) int64 {
	d, err := tensor.ParseDType(label)
	if err != nil {
		return 0
	}
	w, err := d.Width()
	if err != nil {
		return 0
	}
	return w
}

func statsHasNaN(s *tensor.Stats) bool {
	return math.IsNaN(s.Mean) || math.IsNaN(s.Std) || math.IsNaN(s.Min) || math.IsNaN(s.Max)
}
