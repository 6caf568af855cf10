package grammar

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseSchemaJSON decodes a response_format's json_schema.schema value
// into a Schema, preserving the source object's property order. A
// plain encoding/json Unmarshal into map[string]interface{} would
// lose that order, and property order is part of the compiled
// grammar's contract (§4.C3) — so this walks the token stream by
// hand instead.
func ParseSchemaJSON(raw []byte) (Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	v, err := decodeOrdered(dec)
	if err != nil {
		return Schema{}, schemaErrorf("invalid schema JSON: %v", err)
	}
	obj, ok := v.(*orderedObject)
	if !ok {
		return Schema{}, schemaErrorf("schema must be a JSON object")
	}
	return schemaFromOrdered(obj)
}

type orderedKV struct {
	Key   string
	Value interface{}
}

type orderedObject struct {
	entries []orderedKV
}

func (o *orderedObject) get(key string) (interface{}, bool) {
	for _, kv := range o.entries {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// decodeOrdered recursively decodes the next JSON value from dec,
// representing objects as *orderedObject (preserving key order) and
// arrays as []interface{}.
func decodeOrdered(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeOrderedValue(dec, tok)
}

func decodeOrderedValue(dec *json.Decoder, tok json.Token) (interface{}, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &orderedObject{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("expected string key, got %v", keyTok)
				}
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				obj.entries = append(obj.entries, orderedKV{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil

		case '[':
			var arr []interface{}
			for dec.More() {
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil

		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	default:
		return tok, nil
	}
}

func schemaFromOrdered(obj *orderedObject) (Schema, error) {
	typVal, ok := obj.get("type")
	if !ok {
		return Schema{}, schemaErrorf("schema missing \"type\"")
	}
	typ, ok := typVal.(string)
	if !ok {
		return Schema{}, schemaErrorf("schema \"type\" must be a string")
	}

	s := Schema{Type: typ}

	if enumVal, ok := obj.get("enum"); ok {
		values, err := stringSlice(enumVal)
		if err != nil {
			return Schema{}, schemaErrorf("invalid enum: %v", err)
		}
		if len(values) == 0 {
			return Schema{}, schemaErrorf("enum must be non-empty")
		}
		s.Enum = values
	}

	switch typ {
	case "object":
		propsVal, ok := obj.get("properties")
		if ok {
			propsObj, ok := propsVal.(*orderedObject)
			if !ok {
				return Schema{}, schemaErrorf("\"properties\" must be an object")
			}
			for _, kv := range propsObj.entries {
				child, ok := kv.Value.(*orderedObject)
				if !ok {
					return Schema{}, schemaErrorf("property %q must be an object", kv.Key)
				}
				childSchema, err := schemaFromOrdered(child)
				if err != nil {
					return Schema{}, err
				}
				s.Properties = append(s.Properties, Property{Name: kv.Key, Schema: childSchema})
			}
		}
		if reqVal, ok := obj.get("required"); ok {
			req, err := stringSlice(reqVal)
			if err != nil {
				return Schema{}, schemaErrorf("invalid required: %v", err)
			}
			s.Required = req
		}

	case "array":
		itemsVal, ok := obj.get("items")
		if !ok {
			return Schema{}, schemaErrorf("array schema missing \"items\"")
		}
		itemsObj, ok := itemsVal.(*orderedObject)
		if !ok {
			return Schema{}, schemaErrorf("\"items\" must be an object")
		}
		itemSchema, err := schemaFromOrdered(itemsObj)
		if err != nil {
			return Schema{}, err
		}
		s.Items = &itemSchema
	}

	return s, nil
}

func stringSlice(v interface{}) ([]string, error) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected string element, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}
