package main

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"diffai/internal/classify"
	"diffai/internal/config"
	"diffai/internal/diff"
	"diffai/internal/dirdiff"
	"diffai/internal/errors"
	"diffai/internal/logging"
	"diffai/internal/output"
	"diffai/internal/parsers"
	"diffai/internal/version"
)

var (
	epsilonFlag     float64
	arrayIDKeyFlag  string
	ignoreKeysFlag  string
	pathFilterFlag  string
	inputFormatFlag string
	outputFlag      string
	recursiveFlag   bool
	quietFlag       bool
	briefFlag       bool
	verboseFlag     bool
	noColorFlag     bool
	noMLFlag        bool
	logFormatFlag   string
	logLevelFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "diffai OLD NEW",
	Short: "AI/ML-aware structural diff for models and configs",
	Long: `diffai compares two structured files (JSON, YAML, TOML, CSV, INI) or
tensor containers (Safetensors, NumPy .npy/.npz) and reports typed,
path-addressed differences. Tensors are compared through summary
statistics instead of element by element, so checkpoint-sized inputs
stay cheap to diff.

Examples:
  # Compare two config files
  diffai config_old.yaml config_new.yaml

  # Compare two checkpoints with a tolerance
  diffai model_a.safetensors model_b.safetensors --epsilon 1e-6

  # Align array elements by an identity field
  diffai users_v1.json users_v2.json --array-id-key id

  # Machine-readable output
  diffai old.json new.json --output json

  # Compare two directories recursively
  diffai run_a/ run_b/ --recursive`,
	Version:       version.Info(),
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCompare,
}

func init() {
	rootCmd.SetVersionTemplate("diffai version {{.Version}}\n")

	rootCmd.Flags().Float64Var(&epsilonFlag, "epsilon", 0,
		"Tolerance for numeric comparison (absolute difference)")
	rootCmd.Flags().StringVar(&arrayIDKeyFlag, "array-id-key", "",
		"Align array elements by this object field instead of by position")
	rootCmd.Flags().StringVar(&ignoreKeysFlag, "ignore-keys-regex", "",
		"Skip object keys matching this regular expression")
	rootCmd.Flags().StringVar(&pathFilterFlag, "path", "",
		"Only report differences under this path prefix or glob")
	rootCmd.Flags().StringVarP(&inputFormatFlag, "format", "f", "",
		"Input format (json, yaml, toml, csv, ini, safetensors, numpy); default: by extension")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "",
		"Output format: human, json, or yaml (default: human)")
	rootCmd.Flags().BoolVarP(&recursiveFlag, "recursive", "r", false,
		"Compare two directories file by file")
	rootCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false,
		"Suppress output; exit code reports the result")
	rootCmd.Flags().BoolVar(&briefFlag, "brief", false,
		"Report only whether the inputs differ")
	rootCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.Flags().BoolVar(&noColorFlag, "no-color", false,
		"Disable colored output")
	rootCmd.Flags().BoolVar(&noMLFlag, "no-ml-analysis", false,
		"Disable ML classifiers for tensor inputs")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "",
		"Log format: human or json (default: human)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, or error (default: info)")
}

func runCompare(cmd *cobra.Command, args []string) error {
	oldPath, newPath := args[0], args[1]

	cfg, err := config.LoadConfig("")
	if err != nil {
		fatal(nil, "loading config", err)
	}
	logger := newLogger(cfg)

	opts, err := resolveOptions(cmd, cfg)
	if err != nil {
		fatal(logger, "resolving options", err)
	}

	var (
		report   *diff.Report
		isTensor bool
	)
	if recursiveFlag {
		report, err = dirdiff.Compare(context.Background(), oldPath, newPath, opts)
		if err != nil {
			fatal(logger, "comparing directories", err)
		}
	} else {
		report, isTensor, err = compareFiles(oldPath, newPath, opts, logger)
		if err != nil {
			fatal(logger, "comparing files", err)
		}
	}

	var findings []classify.Finding
	if isTensor && !noMLFlag && cfg.MLAnalysis {
		findings = classify.Run(report, classify.Default)
	}

	logger.Debug("comparison finished", map[string]interface{}{
		"results":  len(report.Results),
		"warnings": len(report.Warnings),
		"findings": len(findings),
	})

	if !quietFlag {
		if briefFlag {
			if report.IsEmpty() {
				fmt.Printf("Files %s and %s are identical\n", oldPath, newPath)
			} else {
				fmt.Printf("Files %s and %s differ\n", oldPath, newPath)
			}
		} else if err := render(cfg, report, findings); err != nil {
			fatal(logger, "rendering output", err)
		}
	}

	if !report.IsEmpty() {
		os.Exit(exitDiff)
	}
	return nil
}

// compareFiles parses both inputs and diffs them. The two inputs must
// resolve to the same format family: diffing a YAML config against a
// safetensors checkpoint is always a mistake.
func compareFiles(oldPath, newPath string, opts *diff.Options, logger *logging.Logger) (*diff.Report, bool, error) {
	oldFormat, newFormat, err := resolveFormats(oldPath, newPath)
	if err != nil {
		return nil, false, err
	}

	oldV, err := parsers.ParseFile(oldPath, oldFormat)
	if err != nil {
		return nil, false, err
	}
	newV, err := parsers.ParseFile(newPath, newFormat)
	if err != nil {
		return nil, false, err
	}

	logger.Debug("inputs parsed", map[string]interface{}{
		"oldFormat": string(oldFormat),
		"newFormat": string(newFormat),
	})

	report, err := diff.Diff(oldV, newV, opts)
	if err != nil {
		return nil, false, err
	}
	return report, oldFormat.IsTensorFormat(), nil
}

func resolveFormats(oldPath, newPath string) (parsers.Format, parsers.Format, error) {
	if inputFormatFlag != "" {
		format, err := parsers.ParseFormat(inputFormatFlag)
		if err != nil {
			return "", "", err
		}
		return format, format, nil
	}
	oldFormat, err := parsers.DetectFormat(oldPath)
	if err != nil {
		return "", "", err
	}
	newFormat, err := parsers.DetectFormat(newPath)
	if err != nil {
		return "", "", err
	}
	if oldFormat.IsTensorFormat() != newFormat.IsTensorFormat() {
		return "", "", errors.Newf(errors.FormatMismatch,
			"cannot compare %s input with %s input", oldFormat, newFormat)
	}
	return oldFormat, newFormat, nil
}

// resolveOptions builds the engine options: CLI flag, then DIFFAI_* env
// or .diffai.yaml (both via the config layer), then default.
func resolveOptions(cmd *cobra.Command, cfg *config.Config) (*diff.Options, error) {
	opts := &diff.Options{
		ArrayIDKey: cfg.ArrayIDKey,
		PathFilter: pathFilterFlag,
	}

	if cmd.Flags().Changed("epsilon") {
		opts.Epsilon = diff.Epsilon(epsilonFlag)
	} else if cfg.EpsilonSet() {
		opts.Epsilon = diff.Epsilon(cfg.Epsilon)
	}

	if cmd.Flags().Changed("array-id-key") {
		opts.ArrayIDKey = arrayIDKeyFlag
	}

	pattern := cfg.IgnoreKeysRegex
	if cmd.Flags().Changed("ignore-keys-regex") {
		pattern = ignoreKeysFlag
	}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.New(errors.IncompatibleOptions,
				"invalid --ignore-keys-regex "+pattern, err)
		}
		opts.IgnoreKeysRegex = re
	}

	return opts, nil
}

func render(cfg *config.Config, report *diff.Report, findings []classify.Finding) error {
	format := cfg.Output
	if outputFlag != "" {
		format = outputFlag
	}

	switch format {
	case "", "human", "cli":
		noColor := noColorFlag || cfg.Color == "never" || os.Getenv("NO_COLOR") != ""
		renderer := output.NewHumanRenderer(os.Stdout, noColor)
		if cfg.Color == "always" && !noColor {
			renderer.ForceColor()
		}
		renderer.Render(report, findings)
		return nil
	case "json":
		data, err := output.EncodeJSON(output.BuildEnvelope(report, findings))
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	case "yaml":
		data, err := output.EncodeYAML(output.BuildEnvelope(report, findings))
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	}
	return errors.Newf(errors.IncompatibleOptions, "unknown output format %q", format)
}

// newLogger builds the run logger: a fresh run ID per invocation,
// verbosity from the flags with config as fallback.
func newLogger(cfg *config.Config) *logging.Logger {
	level := logging.ParseLevel(cfg.Logging.Level)
	if logLevelFlag != "" {
		level = logging.ParseLevel(logLevelFlag)
	}
	if verboseFlag {
		level = logging.DebugLevel
	}
	format := logging.Format(cfg.Logging.Format)
	if logFormatFlag != "" {
		format = logging.Format(logFormatFlag)
	}
	return logging.NewLogger(logging.Config{
		Format: format,
		Level:  level,
		RunID:  uuid.New().String(),
	})
}

// fatal reports an unrecoverable error and exits with the error code.
func fatal(logger *logging.Logger, context string, err error) {
	if logger != nil {
		logger.Error(context, map[string]interface{}{
			"code":  string(errors.CodeOf(err)),
			"error": err.Error(),
		})
	}
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", context, err)
	os.Exit(exitError)
}
