// Package parsers decodes supported input formats into the canonical
// value model. Structured formats (JSON/YAML/TOML/CSV/INI) produce trees
// with no tensor leaves; tensor containers (Safetensors, NumPy) produce
// trees whose numeric arrays are tensor leaves keyed by their original
// names.
package parsers

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"diffai/internal/errors"
	"diffai/internal/value"
)

// Format identifies one supported input format.
type Format string

const (
	// FormatJSON is a JSON document
	FormatJSON Format = "json"
	// FormatYAML is a YAML document
	FormatYAML Format = "yaml"
	// FormatTOML is a TOML document
	FormatTOML Format = "toml"
	// FormatCSV is a comma-separated table
	FormatCSV Format = "csv"
	// FormatINI is an INI file
	FormatINI Format = "ini"
	// FormatSafetensors is a safetensors tensor container
	FormatSafetensors Format = "safetensors"
	// FormatNumPy is a NumPy .npy array or .npz archive
	FormatNumPy Format = "numpy"
)

// IsTensorFormat reports whether the format produces tensor leaves.
// Both inputs of one comparison must belong to the same family.
func (f Format) IsTensorFormat() bool {
	return f == FormatSafetensors || f == FormatNumPy
}

// ParseFormat converts a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "csv":
		return FormatCSV, nil
	case "ini":
		return FormatINI, nil
	case "safetensors":
		return FormatSafetensors, nil
	case "numpy", "npy", "npz":
		return FormatNumPy, nil
	}
	return "", errors.Newf(errors.FormatUnknown, "unknown format %q", s)
}

// DetectFormat maps a file path to its format by extension. A trailing
// .gz is transparent: model.json.gz detects as JSON.
func DetectFormat(path string) (Format, error) {
	name := path
	if strings.HasSuffix(name, ".gz") {
		name = strings.TrimSuffix(name, ".gz")
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".csv":
		return FormatCSV, nil
	case ".ini", ".cfg":
		return FormatINI, nil
	case ".safetensors":
		return FormatSafetensors, nil
	case ".npy", ".npz":
		return FormatNumPy, nil
	}
	return "", errors.Newf(errors.FormatUnknown, "cannot detect format of %q", path)
}

// ParseFile reads and decodes one input file. Gzip-wrapped structured
// inputs (*.json.gz and friends) are decompressed transparently.
func ParseFile(path string, format Format) (*value.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.ParseFailed, "reading "+path, err)
	}
	if strings.HasSuffix(path, ".gz") && !format.IsTensorFormat() {
		data, err = gunzip(data)
		if err != nil {
			return nil, errors.New(errors.ParseFailed, "decompressing "+path, err)
		}
	}

	switch format {
	case FormatJSON:
		return ParseJSON(data)
	case FormatYAML:
		return ParseYAML(data)
	case FormatTOML:
		return ParseTOML(data)
	case FormatCSV:
		return ParseCSV(data)
	case FormatINI:
		return ParseINI(data)
	case FormatSafetensors:
		return ParseSafetensors(data)
	case FormatNumPy:
		if strings.HasSuffix(strings.ToLower(path), ".npz") {
			return ParseNPZ(data)
		}
		return ParseNPY(data)
	}
	return nil, errors.Newf(errors.FormatUnknown, "unknown format %q", string(format))
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}
