package diff

import (
	"fmt"
	"strconv"

	"diffai/internal/errors"
	"diffai/internal/value"
)

// compareArraysByID aligns array elements by the value of the configured
// identity key instead of by position, modeling "diff by ID" semantics
// for arrays whose order is not meaningful.
//
// Elements lacking the key (or that are not objects, or whose key value
// is not a scalar) are never paired and surface as removed/added under
// their index path. Duplicate key values pair FIFO: the first unmatched
// old element with a given id pairs with the first unmatched new element
// with that id, in original array position order, keeping output
// deterministic.
func (e *engine) compareArraysByID(path string, oldArr, newArr []*value.Value) {
	idKey := e.opts.ArrayIDKey

	if !containsObjects(oldArr) && !containsObjects(newArr) {
		e.warn(errors.IncompatibleOptions, path,
			fmt.Sprintf("array id key %q set but neither array contains objects; comparing positionally", idKey))
		e.comparePositional(path, oldArr, newArr)
		return
	}

	// FIFO queues of unmatched new-side indices per id.
	newByID := make(map[string][]int)
	for i, v := range newArr {
		if id, ok := elementID(v, idKey); ok {
			newByID[id] = append(newByID[id], i)
		}
	}

	matchedNew := make([]bool, len(newArr))
	for i, oldElem := range oldArr {
		id, ok := elementID(oldElem, idKey)
		if !ok {
			e.emitRemoved(indexPath(path, i), oldElem)
			continue
		}
		queue := newByID[id]
		if len(queue) == 0 {
			e.emitRemoved(idPath(path, idKey, id), oldElem)
			continue
		}
		j := queue[0]
		newByID[id] = queue[1:]
		matchedNew[j] = true
		e.compare(idPath(path, idKey, id), oldElem, newArr[j])
	}

	for j, newElem := range newArr {
		if matchedNew[j] {
			continue
		}
		id, ok := elementID(newElem, idKey)
		if !ok {
			e.emitAdded(indexPath(path, j), newElem)
			continue
		}
		e.emitAdded(idPath(path, idKey, id), newElem)
	}
}

func containsObjects(arr []*value.Value) bool {
	for _, v := range arr {
		if v.Kind() == value.KindObject {
			return true
		}
	}
	return false
}

// elementID returns the scalar identity of an array element as a path
// literal. Only object elements with a scalar value at the id key
// participate in identity matching.
func elementID(v *value.Value, idKey string) (string, bool) {
	obj := v.Object()
	if obj == nil {
		return "", false
	}
	idVal, ok := obj.Get(idKey)
	if !ok {
		return "", false
	}
	switch idVal.Kind() {
	case value.KindNull:
		return "null", true
	case value.KindBool:
		b, _ := idVal.AsBool()
		return strconv.FormatBool(b), true
	case value.KindNumber:
		f, _ := idVal.AsNumber()
		return strconv.FormatFloat(f, 'g', -1, 64), true
	case value.KindString:
		s, _ := idVal.AsString()
		return s, true
	}
	return "", false
}
