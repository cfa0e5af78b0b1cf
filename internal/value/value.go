// Package value defines the canonical representation every input is
// decoded into before comparison: a recursive tagged union over scalars,
// arrays, insertion-ordered objects, and tensor leaves.
package value

import (
	"bytes"
	"math"
	"sort"

	"diffai/internal/tensor"
)

// Kind discriminates the Value union.
type Kind int

const (
	// KindNull is the null variant
	KindNull Kind = iota
	// KindBool is the boolean variant
	KindBool
	// KindNumber is the float64 variant
	KindNumber
	// KindString is the string variant
	KindString
	// KindArray is the ordered sequence variant
	KindArray
	// KindObject is the ordered-insertion mapping variant
	KindObject
	// KindTensor is the numeric-array leaf variant; it never nests
	// further Value children
	KindTensor
)

// Value is one node of a decoded input tree.
type Value struct {
	kind    Kind
	boolVal bool
	numVal  float64
	strVal  string
	arr     []*Value
	obj     *Object
	handle  *tensor.Handle
}

// Null returns the null value.
func Null() *Value { return &Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) *Value { return &Value{kind: KindBool, boolVal: b} }

// Number returns a numeric value.
func Number(f float64) *Value { return &Value{kind: KindNumber, numVal: f} }

// String returns a string value.
func String(s string) *Value { return &Value{kind: KindString, strVal: s} }

// Array returns an array value over the given elements.
func Array(items ...*Value) *Value { return &Value{kind: KindArray, arr: items} }

// ObjectValue wraps an Object as a value.
func ObjectValue(obj *Object) *Value { return &Value{kind: KindObject, obj: obj} }

// Tensor returns a tensor leaf borrowing the given handle.
func Tensor(h *tensor.Handle) *Value { return &Value{kind: KindTensor, handle: h} }

// Kind returns the variant tag.
func (v *Value) Kind() Kind { return v.kind }

// TypeName returns the stable type name used in type-changed records.
func (v *Value) TypeName() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindTensor:
		return "tensor"
	}
	return "unknown"
}

// AsBool returns the boolean payload.
func (v *Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolVal, true
}

// AsNumber returns the numeric payload.
func (v *Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.numVal, true
}

// AsString returns the string payload.
func (v *Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.strVal, true
}

// Items returns the array elements, or nil for non-arrays.
func (v *Value) Items() []*Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Object returns the object payload, or nil for non-objects.
func (v *Value) Object() *Object {
	if v.kind != KindObject {
		return nil
	}
	return v.obj
}

// TensorHandle returns the tensor payload, or nil for non-tensors.
func (v *Value) TensorHandle() *tensor.Handle {
	if v.kind != KindTensor {
		return nil
	}
	return v.handle
}

// Equal reports exact structural equality. Object key order is
// irrelevant (objects compare by key set); array order is significant;
// tensors compare by dtype, shape, and raw bytes. NaN numbers compare
// equal to themselves so reflexivity holds.
func Equal(a, b *Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.boolVal == b.boolVal
	case KindNumber:
		return numbersEqual(a.numVal, b.numVal)
	case KindString:
		return a.strVal == b.strVal
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if a.obj.Len() != b.obj.Len() {
			return false
		}
		for _, key := range a.obj.Keys() {
			bv, ok := b.obj.Get(key)
			if !ok {
				return false
			}
			av, _ := a.obj.Get(key)
			if !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindTensor:
		ah, bh := a.handle, b.handle
		if ah.DType != bh.DType || !tensor.ShapeEquals(ah.Shape, bh.Shape) {
			return false
		}
		return bytes.Equal(ah.Data(), bh.Data())
	}
	return false
}

func numbersEqual(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}

// Object is an insertion-ordered string-keyed mapping with unique keys.
type Object struct {
	keys  []string
	index map[string]int
	vals  []*Value
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{index: make(map[string]int)}
}

// Set inserts or replaces the value for key, preserving the original
// insertion position on replace.
func (o *Object) Set(key string, v *Value) {
	if i, ok := o.index[key]; ok {
		o.vals[i] = v
		return
	}
	o.index[key] = len(o.keys)
	o.keys = append(o.keys, key)
	o.vals = append(o.vals, v)
}

// Get returns the value for key.
func (o *Object) Get(key string) (*Value, bool) {
	i, ok := o.index[key]
	if !ok {
		return nil, false
	}
	return o.vals[i], true
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.index[key]
	return ok
}

// Len returns the number of keys.
func (o *Object) Len() int { return len(o.keys) }

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// SortedKeys returns the keys in lexicographic order. Comparison and
// output walk keys in this order so repeated runs are byte-identical.
func (o *Object) SortedKeys() []string {
	out := o.Keys()
	sort.Strings(out)
	return out
}

// Interface converts the value to plain Go data for serialization.
// Objects become maps (renderers re-sort keys for determinism); tensor
// leaves become a {dtype, shape} summary since raw buffers are never
// serialized.
func (v *Value) Interface() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.boolVal
	case KindNumber:
		return v.numVal
	case KindString:
		return v.strVal
	case KindArray:
		out := make([]interface{}, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, v.obj.Len())
		for _, key := range v.obj.Keys() {
			child, _ := v.obj.Get(key)
			out[key] = child.Interface()
		}
		return out
	case KindTensor:
		return map[string]interface{}{
			"dtype": v.handle.DType.String(),
			"shape": v.handle.Shape,
		}
	}
	return nil
}
