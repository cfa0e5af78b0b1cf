package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"diffai/internal/errors"
	"diffai/internal/output"
	"diffai/internal/parsers"
	"diffai/internal/tensor"
	"diffai/internal/value"
)

var (
	statsFormatFlag string
	statsOutputFlag string
)

var statsCmd = &cobra.Command{
	Use:   "stats FILE",
	Short: "Print per-tensor summary statistics for a model file",
	Long: `Print mean, standard deviation, min, max, shape, dtype, and parameter
count for every tensor in a Safetensors or NumPy file.

Examples:
  diffai stats model.safetensors
  diffai stats weights.npz --output json`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runStats,
}

func init() {
	statsCmd.Flags().StringVarP(&statsFormatFlag, "format", "f", "",
		"Input format (safetensors, numpy); default: by extension")
	statsCmd.Flags().StringVarP(&statsOutputFlag, "output", "o", "",
		"Output format: human or json (default: human)")

	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	path := args[0]

	var format parsers.Format
	var err error
	if statsFormatFlag != "" {
		format, err = parsers.ParseFormat(statsFormatFlag)
	} else {
		format, err = parsers.DetectFormat(path)
	}
	if err != nil {
		fatal(nil, "resolving format", err)
	}
	if !format.IsTensorFormat() {
		fatal(nil, "resolving format", errors.Newf(errors.IncompatibleOptions,
			"stats requires a tensor format, got %q", string(format)))
	}

	root, err := parsers.ParseFile(path, format)
	if err != nil {
		fatal(nil, "parsing "+path, err)
	}

	names, handles := collectTensors(root)

	if statsOutputFlag == "json" {
		entries := make([]map[string]interface{}, 0, len(names))
		for i, name := range names {
			entry := map[string]interface{}{"name": name}
			stats, err := tensor.ComputeStats(handles[i])
			if err != nil {
				entry["error"] = err.Error()
			} else {
				for k, v := range output.StatsValue(stats) {
					entry[k] = v
				}
			}
			entries = append(entries, entry)
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			fatal(nil, "encoding stats", err)
		}
		fmt.Println(string(data))
		return nil
	}

	for i, name := range names {
		stats, err := tensor.ComputeStats(handles[i])
		if err != nil {
			fmt.Printf("  %s: unreadable (%v)\n", name, err)
			continue
		}
		fmt.Printf("  %s: %s %v params=%d mean=%s std=%s min=%s max=%s\n",
			name, stats.DType, stats.Shape, stats.TotalParams,
			output.FormatFloat(stats.Mean), output.FormatFloat(stats.Std),
			output.FormatFloat(stats.Min), output.FormatFloat(stats.Max))
	}
	return nil
}

// collectTensors walks the tree and returns tensor leaves in sorted
// path order.
func collectTensors(root *value.Value) ([]string, []*tensor.Handle) {
	found := make(map[string]*tensor.Handle)
	walkTensors("", root, found)

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)

	handles := make([]*tensor.Handle, len(names))
	for i, name := range names {
		handles[i] = found[name]
	}
	return names, handles
}

func walkTensors(path string, v *value.Value, found map[string]*tensor.Handle) {
	switch v.Kind() {
	case value.KindTensor:
		found[path] = v.TensorHandle()
	case value.KindArray:
		for i, item := range v.Items() {
			walkTensors(fmt.Sprintf("%s[%d]", path, i), item, found)
		}
	case value.KindObject:
		obj := v.Object()
		for _, key := range obj.Keys() {
			child, _ := obj.Get(key)
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			walkTensors(childPath, child, found)
		}
	}
}
