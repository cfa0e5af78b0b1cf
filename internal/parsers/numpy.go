package parsers

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/flate"

	"diffai/internal/errors"
	"diffai/internal/tensor"
	"diffai/internal/value"
)

var npyMagic = []byte("\x93NUMPY")

var (
	npyDescrRe = regexp.MustCompile(`'descr':\s*'([^']+)'`)
	npyShapeRe = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

// ParseNPY decodes a single NumPy .npy array into a one-entry object
// keyed "data", matching how a bare array is addressed in results.
func ParseNPY(data []byte) (*value.Value, error) {
	handle, err := parseNPYTensor("data", data)
	if err != nil {
		return nil, err
	}
	root := value.NewObject()
	root.Set("data", value.Tensor(handle))
	return value.ObjectValue(root), nil
}

// ParseNPZ decodes a NumPy .npz archive (a zip of .npy members) into an
// object keyed by member stem. Deflated members are inflated with the
// registered flate decompressor.
func ParseNPZ(data []byte) (*value.Value, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.New(errors.ParseFailed, "npz: invalid zip archive", err)
	}
	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	members := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".npy") {
			members = append(members, f)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })

	root := value.NewObject()
	for _, f := range members {
		rc, err := f.Open()
		if err != nil {
			return nil, errors.New(errors.ParseFailed, "npz: opening "+f.Name, err)
		}
		raw, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, errors.New(errors.ParseFailed, "npz: reading "+f.Name, err)
		}
		name := strings.TrimSuffix(f.Name, ".npy")
		handle, err := parseNPYTensor(name, raw)
		if err != nil {
			return nil, err
		}
		root.Set(name, value.Tensor(handle))
	}
	return value.ObjectValue(root), nil
}

// parseNPYTensor decodes the .npy wire format: 6-byte magic, version,
// header length (2 bytes for v1, 4 bytes for v2+), then an ASCII python
// dict header with descr/fortran_order/shape, then the raw buffer.
// Element order (C vs Fortran) is irrelevant to summary statistics, so
// fortran_order is accepted either way.
func parseNPYTensor(name string, data []byte) (*tensor.Handle, error) {
	if len(data) < 10 || !bytes.Equal(data[:6], npyMagic) {
		return nil, errors.Newf(errors.ParseFailed, "npy %q: bad magic", name)
	}
	major := data[6]

	var headerLen, headerStart int
	switch {
	case major == 1:
		headerLen = int(binary.LittleEndian.Uint16(data[8:10]))
		headerStart = 10
	case major >= 2:
		if len(data) < 12 {
			return nil, errors.Newf(errors.ParseFailed, "npy %q: truncated header", name)
		}
		headerLen = int(binary.LittleEndian.Uint32(data[8:12]))
		headerStart = 12
	default:
		return nil, errors.Newf(errors.ParseFailed, "npy %q: unsupported version %d", name, major)
	}
	if headerStart+headerLen > len(data) {
		return nil, errors.Newf(errors.ParseFailed, "npy %q: header length %d out of bounds", name, headerLen)
	}

	header := string(data[headerStart : headerStart+headerLen])
	payload := data[headerStart+headerLen:]

	descrMatch := npyDescrRe.FindStringSubmatch(header)
	if descrMatch == nil {
		return nil, errors.Newf(errors.ParseFailed, "npy %q: missing descr in header", name)
	}
	dtype, err := tensor.ParseDType(descrMatch[1])
	if err != nil {
		return nil, err
	}

	shapeMatch := npyShapeRe.FindStringSubmatch(header)
	if shapeMatch == nil {
		return nil, errors.Newf(errors.ParseFailed, "npy %q: missing shape in header", name)
	}
	shape, err := parseNPYShape(shapeMatch[1])
	if err != nil {
		return nil, errors.Newf(errors.ParseFailed, "npy %q: invalid shape %q", name, shapeMatch[1])
	}

	return tensor.NewHandle(name, dtype, shape, payload)
}

func parseNPYShape(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int64{}, nil // zero-dimensional scalar
	}
	parts := strings.Split(s, ",")
	var shape []int64
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue // trailing comma in one-dimensional shapes: (3,)
		}
		dim, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		shape = append(shape, dim)
	}
	if shape == nil {
		shape = []int64{}
	}
	return shape, nil
}
