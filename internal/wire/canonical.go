package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Marshal produces compact deterministic JSON for v.
// Object keys are sorted by UTF-16 code units and <, >, & are not escaped.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalCanonical produces RFC 8785 style canonical JSON for v.
// It is the serialization behind content hashes and must never be used for
// wire output: string contents are rewritten.
//
// Differences from Marshal:
//  1. Strings and object keys are NFC normalized
//  2. Keys that become equal after normalization are an error
//
// Numbers keep their literal text; callers that need numeric canonical form
// must construct numbers through Int or Float.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v, true); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustMarshal is like Marshal but panics on error.
// Use only in tests or when v is known to be valid.
func MustMarshal(v Value) []byte {
	data, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func writeValue(buf *bytes.Buffer, v Value, nfc bool) error {
	switch val := v.(type) {
	case Null:
		buf.WriteString("null")
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		if !validNumber(string(val)) {
			return fmt.Errorf("invalid number literal %q", string(val))
		}
		buf.WriteString(string(val))
	case String:
		writeString(buf, string(val), nfc)
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, elem, nfc); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		return writeObject(buf, val, nfc)
	case nil:
		return fmt.Errorf("nil Value: use wire.Null{} for JSON null")
	default:
		return fmt.Errorf("unknown Value type: %T", v)
	}
	return nil
}

func writeObject(buf *bytes.Buffer, obj Object, nfc bool) error {
	keys := obj.SortedKeys()
	if nfc {
		// Sort order must be computed on the normalized keys
		normalized := make(Object, len(obj))
		for _, k := range keys {
			nk := norm.NFC.String(k)
			if _, dup := normalized[nk]; dup {
				return fmt.Errorf("object keys collide after NFC normalization: %q", nk)
			}
			normalized[nk] = obj[k]
		}
		obj = normalized
		keys = obj.SortedKeys()
	}

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, k, nfc)
		buf.WriteByte(':')
		if err := writeValue(buf, obj[k], nfc); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeString escapes only what RFC 8785 requires: quote, backslash and
// control characters. No HTML escaping, U+2028/U+2029 are emitted literally.
func writeString(buf *bytes.Buffer, s string, nfc bool) {
	if nfc {
		s = norm.NFC.String(s)
	}

	const hex = "0123456789abcdef"
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r < 0x20:
			buf.WriteString(`\u00`)
			buf.WriteByte(hex[r>>4])
			buf.WriteByte(hex[r&0xF])
		case r == utf8.RuneError && size == 1:
			buf.WriteString(`�`)
		default:
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}

func validNumber(s string) bool {
	if s == "" {
		return false
	}
	if c := s[0]; c != '-' && (c < '0' || c > '9') {
		return false
	}
	return json.Valid([]byte(s))
}
