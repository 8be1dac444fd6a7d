// Package text renders values as canonical JSON. Map keys are always
// sorted, so equal values render to equal strings.
package text

import (
	"bytes"
	"encoding/json"
)

// Pretty renders v indented by four spaces with no space after the colon
// of an object key.
func Pretty(v any) (string, error) {
	b, err := marshal(v)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "    "); err != nil {
		return "", err
	}
	return string(tightColons(buf.Bytes())), nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// tightColons drops the space json.Indent puts after a key. Colons inside
// strings are left alone.
func tightColons(b []byte) []byte {
	out := b[:0]
	inString, escaped := false, false
	for i := 0; i < len(b); i++ {
		c := b[i]
		out = append(out, c)
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == ':' && i+1 < len(b) && b[i+1] == ' ':
			i++
		}
	}
	return out
}
