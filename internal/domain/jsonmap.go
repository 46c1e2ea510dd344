package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a JSON object stored in a JSON/JSONB (or TEXT) column.
type JSONMap map[string]any

// CoerceJSONMap accepts the loosely-typed values the CMS sends for the
// harvester's object-valued fields. Any empty value becomes an empty map,
// strings are decoded as JSON, and anything that is not an object is
// rejected.
func CoerceJSONMap(field string, v any) (JSONMap, error) {
	switch val := v.(type) {
	case nil:
		return JSONMap{}, nil
	case JSONMap:
		if val == nil {
			return JSONMap{}, nil
		}
		return val, nil
	case map[string]any:
		if val == nil {
			return JSONMap{}, nil
		}
		return JSONMap(val), nil
	case string:
		if val == "" {
			return JSONMap{}, nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(val), &decoded); err != nil {
			return nil, Wrap(ErrInvalid, err, "%s: invalid JSON", field)
		}
		return CoerceJSONMap(field, decoded)
	case []any:
		if len(val) == 0 {
			return JSONMap{}, nil
		}
		return nil, Errorf(ErrInvalid, "%s: expecting object; got list", field)
	case bool:
		if !val {
			return JSONMap{}, nil
		}
		return nil, Errorf(ErrInvalid, "%s: expecting object; got bool", field)
	case float64:
		if val == 0 {
			return JSONMap{}, nil
		}
		return nil, Errorf(ErrInvalid, "%s: expecting object; got number", field)
	default:
		return nil, Errorf(ErrInvalid, "%s: expecting object; got %T", field, v)
	}
}

// Value implements driver.Valuer. A nil map is stored as SQL NULL.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("JSONMap: cannot scan %T", src)
	}
	if len(data) == 0 || string(data) == "null" {
		*m = nil
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("JSONMap: %w", err)
	}
	*m = out
	return nil
}

// Clone returns a deep copy made by a JSON round trip.
func (m JSONMap) Clone() JSONMap {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return JSONMap{}
	}
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return out
}
