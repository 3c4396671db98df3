// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the JSON type of an extracted key value.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindNumber
	KindString
	KindBool
	KindNull
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindNull:
		return "null"
	default:
		return "other"
	}
}

// Key is an identifier value pulled out of a decoded record. The zero Key is
// absent. Keys are comparable, so they can be used directly as map keys;
// equality is by kind and canonical text, which keeps the number 1 and the
// string "1" apart while 1 and 1.0 are the same key.
type Key struct {
	kind Kind
	text string
}

// Present reports whether the attribute existed in the record, regardless of
// its value.
func (k Key) Present() bool {
	return k.kind != KindAbsent
}

func (k Key) Kind() Kind {
	return k.kind
}

// String returns the canonical text of the key. Strings are returned
// unquoted, numbers are in canonical form (see canonicalNumber), everything
// else is the compact JSON encoding.
func (k Key) String() string {
	return k.text
}

// JSONValue returns the value to use when re-encoding the key as JSON.
func (k Key) JSONValue() any {
	switch k.kind {
	case KindString:
		return k.text
	case KindAbsent:
		return nil
	default:
		return json.RawMessage(k.text)
	}
}

// NewStringKey and NewNumberKey build keys without going through a decoder.
func NewStringKey(s string) Key {
	return Key{kind: KindString, text: s}
}

func NewNumberKey(n string) Key {
	return Key{kind: KindNumber, text: canonicalNumber(n)}
}

// canonicalNumber maps numerals with equal values onto one text: integral
// values print as integers, other values in shortest float form. Integers
// too large for int64 keep their literal digits.
func canonicalNumber(text string) string {
	if !strings.ContainsAny(text, ".eE") {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return strconv.FormatInt(n, 10)
		}
		return text
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return text
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Extract returns the value of field in obj as a Key. A field whose value is
// 0, "", false or null is still present.
func Extract(obj map[string]any, field string) Key {
	v, ok := obj[field]
	if !ok {
		return Key{}
	}
	return keyFromValue(v)
}

func keyFromValue(v any) Key {
	switch val := v.(type) {
	case nil:
		return Key{kind: KindNull, text: "null"}
	case string:
		return Key{kind: KindString, text: val}
	case json.Number:
		return NewNumberKey(val.String())
	case float64:
		return NewNumberKey(strconv.FormatFloat(val, 'g', -1, 64))
	case int64:
		return Key{kind: KindNumber, text: strconv.FormatInt(val, 10)}
	case int:
		return Key{kind: KindNumber, text: strconv.Itoa(val)}
	case bool:
		if val {
			return Key{kind: KindBool, text: "true"}
		}
		return Key{kind: KindBool, text: "false"}
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return Key{kind: KindOther, text: fmt.Sprint(val)}
		}
		return Key{kind: KindOther, text: string(b)}
	}
}
