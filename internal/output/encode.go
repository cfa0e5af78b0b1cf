package output

import (
	"encoding/json"
	"math"

	yaml "gopkg.in/yaml.v3"

	"diffai/internal/classify"
	"diffai/internal/diff"
	"diffai/internal/tensor"
)

// Envelope is the serializable form of one comparison: the ordered
// results plus any engine warnings and classifier findings.
type Envelope struct {
	Results  []map[string]interface{} `json:"results"`
	Warnings []diff.Warning           `json:"warnings,omitempty"`
	Findings []classify.Finding       `json:"findings,omitempty"`
}

// BuildEnvelope normalizes a report for encoding: floats rounded to six
// decimal places, non-finite values replaced with their string names
// (JSON has no NaN literal), map keys left to the encoders' sorted-key
// ordering.
func BuildEnvelope(report *diff.Report, findings []classify.Finding) *Envelope {
	results := make([]map[string]interface{}, 0, len(report.Results))
	for _, r := range report.Results {
		results = append(results, resultValue(r))
	}
	return &Envelope{
		Results:  results,
		Warnings: report.Warnings,
		Findings: normalizeFindings(findings),
	}
}

// EncodeJSON renders the envelope as indented JSON.
func EncodeJSON(env *Envelope) ([]byte, error) {
	return json.MarshalIndent(env, "", "  ")
}

// EncodeYAML renders the envelope as YAML.
func EncodeYAML(env *Envelope) ([]byte, error) {
	return yaml.Marshal(env)
}

func resultValue(r diff.Result) map[string]interface{} {
	out := map[string]interface{}{
		"type": string(r.Kind),
		"path": r.Path,
	}
	switch r.Kind {
	case diff.KindAdded:
		out["new"] = normalize(r.New)
	case diff.KindRemoved:
		out["old"] = normalize(r.Old)
	case diff.KindModified:
		out["old"] = normalize(r.Old)
		out["new"] = normalize(r.New)
	case diff.KindTypeChanged:
		out["oldType"] = r.OldType
		out["newType"] = r.NewType
	case diff.KindTensorShapeChanged:
		out["oldShape"] = r.OldShape
		out["newShape"] = r.NewShape
	case diff.KindTensorStatsChanged:
		out["oldStats"] = StatsValue(r.OldStats)
		out["newStats"] = StatsValue(r.NewStats)
	case diff.KindTensorAdded, diff.KindTensorRemoved:
		out["stats"] = StatsValue(r.Stats)
	case diff.KindTensorUnreadable:
		out["reason"] = r.Reason
	}
	return out
}

// StatsValue converts tensor statistics to a plain map so non-finite
// floats survive JSON encoding.
func StatsValue(s *tensor.Stats) map[string]interface{} {
	if s == nil {
		return nil
	}
	return map[string]interface{}{
		"mean":         normalizeFloat(s.Mean),
		"std":          normalizeFloat(s.Std),
		"min":          normalizeFloat(s.Min),
		"max":          normalizeFloat(s.Max),
		"shape":        s.Shape,
		"dtype":        s.DType,
		"total_params": s.TotalParams,
	}
}

// normalize recursively rounds floats and replaces non-finite values.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case float64:
		return normalizeFloat(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, elem := range t {
			out[i] = normalize(elem)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, elem := range t {
			out[k] = normalize(elem)
		}
		return out
	}
	return v
}

func normalizeFloat(f float64) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return FormatFloat(f)
	}
	return RoundFloat(f)
}

func normalizeFindings(findings []classify.Finding) []classify.Finding {
	out := make([]classify.Finding, len(findings))
	for i, f := range findings {
		if f.Details != nil {
			normalized, _ := normalize(f.Details).(map[string]interface{})
			f.Details = normalized
		}
		out[i] = f
	}
	return out
}
