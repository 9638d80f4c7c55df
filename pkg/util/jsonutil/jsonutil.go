package jsonutil

import (
	"bytes"
	"encoding/json"
	"io"
)

// Decode reads one JSON document keeping numbers as json.Number,
// so they are written back exactly as they were read.
func Decode(reader io.Reader, out interface{}) error {
	decoder := json.NewDecoder(reader)
	decoder.UseNumber()
	return decoder.Decode(out)
}

// Canonical serializes the input with object keys sorted lexicographically
// at every level, no HTML escaping and no trailing newline.
// Structs are flattened to generic values first so their keys get sorted too.
func Canonical(input interface{}) ([]byte, error) {
	raw, err := encode(input)
	if err != nil {
		return nil, err
	}

	var generic interface{}
	if err := Decode(bytes.NewReader(raw), &generic); err != nil {
		return nil, err
	}

	return encode(generic)
}

func encode(input interface{}) ([]byte, error) {
	var out bytes.Buffer
	encoder := json.NewEncoder(&out)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(input); err != nil {
		return nil, err
	}

	return bytes.TrimSuffix(out.Bytes(), []byte("\n")), nil
}
