package parsers

import (
	"encoding/binary"
	"encoding/json"
	"sort"
	"strings"

	"diffai/internal/errors"
	"diffai/internal/tensor"
	"diffai/internal/value"
)

// safetensorsHeaderLimit caps the JSON header size; real model headers
// are a few megabytes at most.
const safetensorsHeaderLimit = 100 << 20

// tensorInfo mirrors one safetensors header entry. Endianness is
// little-endian; ordering is C.
type tensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// safetensorsDTypes maps the header dtype tags the statistics engine
// can read to their canonical labels. The format's tag set is closed:
// "I8" means int8, never a width-suffixed alias for int64.
var safetensorsDTypes = map[string]tensor.DType{
	"F64":  tensor.F64,
	"F32":  tensor.F32,
	"F16":  tensor.F16,
	"BF16": tensor.BF16,
	"I64":  tensor.I64,
	"U32":  tensor.U32,
	"U8":   tensor.U8,
}

// safetensorsDType resolves a header tag. Tags outside the table
// (I8, I32, BOOL, F8_E4M3, ...) are carried through verbatim so only
// the affected tensor degrades at statistics time; one exotic dtype
// must not make the whole file unreadable.
func safetensorsDType(tag string) tensor.DType {
	if d, ok := safetensorsDTypes[tag]; ok {
		return d
	}
	return tensor.DType(strings.ToLower(tag))
}

// ParseSafetensors decodes a safetensors container: an 8-byte
// little-endian header length, a JSON header mapping tensor names to
// dtype/shape/offsets, then the raw buffers. Every tensor becomes a
// tensor leaf keyed by its name; the optional __metadata__ block becomes
// a plain object.
func ParseSafetensors(data []byte) (*value.Value, error) {
	if len(data) < 8 {
		return nil, errors.Newf(errors.ParseFailed, "safetensors: file too short (%d bytes)", len(data))
	}
	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > safetensorsHeaderLimit || 8+headerLen > uint64(len(data)) {
		return nil, errors.Newf(errors.ParseFailed, "safetensors: header length %d out of bounds", headerLen)
	}

	headerBytes := data[8 : 8+headerLen]
	payload := data[8+headerLen:]

	var header map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, errors.New(errors.ParseFailed, "safetensors: invalid header", err)
	}

	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)

	root := value.NewObject()
	for _, name := range names {
		if name == "__metadata__" {
			var meta map[string]string
			if err := json.Unmarshal(header[name], &meta); err != nil {
				return nil, errors.New(errors.ParseFailed, "safetensors: invalid __metadata__", err)
			}
			metaObj := value.NewObject()
			metaKeys := make([]string, 0, len(meta))
			for k := range meta {
				metaKeys = append(metaKeys, k)
			}
			sort.Strings(metaKeys)
			for _, k := range metaKeys {
				metaObj.Set(k, value.String(meta[k]))
			}
			root.Set("__metadata__", value.ObjectValue(metaObj))
			continue
		}

		var info tensorInfo
		if err := json.Unmarshal(header[name], &info); err != nil {
			return nil, errors.Newf(errors.ParseFailed, "safetensors: invalid entry for %q", name)
		}
		begin, end := info.DataOffsets[0], info.DataOffsets[1]
		if begin < 0 || end < begin || end > int64(len(payload)) {
			return nil, errors.Newf(errors.ParseFailed,
				"safetensors: tensor %q offsets [%d, %d) out of bounds", name, begin, end)
		}
		handle, err := tensor.NewHandle(name, safetensorsDType(info.DType), info.Shape, payload[begin:end])
		if err != nil {
			return nil, err
		}
		root.Set(name, value.Tensor(handle))
	}

	return value.ObjectValue(root), nil
}
