package parsers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"

	"diffai/internal/errors"
	"diffai/internal/value"
)

// ParseJSON decodes a JSON document, preserving object key order.
func ParseJSON(data []byte) (*value.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSONValue(dec)
	if err != nil {
		return nil, errors.New(errors.ParseFailed, "invalid JSON", err)
	}
	return v, nil
}

func decodeJSONValue(dec *json.Decoder) (*value.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := value.NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T, want string", keyTok)
				}
				child, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, child)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return value.ObjectValue(obj), nil
		case '[':
			var items []*value.Value
			for dec.More() {
				child, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				items = append(items, child)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return value.Array(items...), nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case string:
		return value.String(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return value.Number(f), nil
	case bool:
		return value.Bool(t), nil
	case nil:
		return value.Null(), nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// ParseYAML decodes a YAML document, preserving mapping key order.
func ParseYAML(data []byte) (*value.Value, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.New(errors.ParseFailed, "invalid YAML", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return value.Null(), nil
	}
	v, err := decodeYAMLNode(root.Content[0])
	if err != nil {
		return nil, errors.New(errors.ParseFailed, "invalid YAML", err)
	}
	return v, nil
}

func decodeYAMLNode(node *yaml.Node) (*value.Value, error) {
	switch node.Kind {
	case yaml.MappingNode:
		obj := value.NewObject()
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valNode := node.Content[i], node.Content[i+1]
			child, err := decodeYAMLNode(valNode)
			if err != nil {
				return nil, err
			}
			obj.Set(keyNode.Value, child)
		}
		return value.ObjectValue(obj), nil
	case yaml.SequenceNode:
		items := make([]*value.Value, 0, len(node.Content))
		for _, elem := range node.Content {
			child, err := decodeYAMLNode(elem)
			if err != nil {
				return nil, err
			}
			items = append(items, child)
		}
		return value.Array(items...), nil
	case yaml.AliasNode:
		return decodeYAMLNode(node.Alias)
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!null":
			return value.Null(), nil
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return nil, err
			}
			return value.Bool(b), nil
		case "!!int", "!!float":
			var f float64
			if err := node.Decode(&f); err != nil {
				return nil, err
			}
			return value.Number(f), nil
		default:
			return value.String(node.Value), nil
		}
	}
	return nil, fmt.Errorf("unsupported YAML node kind %d", node.Kind)
}

// ParseTOML decodes a TOML document. Key order is not preserved (the
// decoder materializes maps) which is fine: objects compare by key set.
func ParseTOML(data []byte) (*value.Value, error) {
	var m map[string]interface{}
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errors.New(errors.ParseFailed, "invalid TOML", err)
	}
	return fromInterface(m), nil
}

// fromInterface converts decoded plain-Go data to the value model,
// inserting map keys in sorted order for determinism.
func fromInterface(v interface{}) *value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Bool(t)
	case int64:
		return value.Number(float64(t))
	case int:
		return value.Number(float64(t))
	case float64:
		return value.Number(t)
	case string:
		return value.String(t)
	case time.Time:
		return value.String(t.Format(time.RFC3339))
	case []interface{}:
		items := make([]*value.Value, len(t))
		for i, elem := range t {
			items[i] = fromInterface(elem)
		}
		return value.Array(items...)
	case map[string]interface{}:
		obj := value.NewObject()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			obj.Set(k, fromInterface(t[k]))
		}
		return value.ObjectValue(obj)
	}
	return value.String(fmt.Sprintf("%v", v))
}

// ParseCSV decodes a CSV table: with a header row, each record becomes an
// object of string fields keyed by header; all values stay strings.
func ParseCSV(data []byte) (*value.Value, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return value.Array(), nil
	}
	if err != nil {
		return nil, errors.New(errors.ParseFailed, "invalid CSV", err)
	}

	var records []*value.Value
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.New(errors.ParseFailed, "invalid CSV", err)
		}
		obj := value.NewObject()
		for i, header := range headers {
			if i < len(record) {
				obj.Set(header, value.String(record[i]))
			}
		}
		records = append(records, value.ObjectValue(obj))
	}
	return value.Array(records...), nil
}

// ParseINI decodes an INI file: sections become objects of string values;
// keys before any section header sit at the root.
func ParseINI(data []byte) (*value.Value, error) {
	root := value.NewObject()
	section := root

	for lineNo, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.TrimSpace(line[1 : len(line)-1])
			section = value.NewObject()
			root.Set(name, value.ObjectValue(section))
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			return nil, errors.Newf(errors.ParseFailed, "invalid INI line %d: %q", lineNo+1, line)
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		section.Set(key, value.String(val))
	}
	return value.ObjectValue(root), nil
}
