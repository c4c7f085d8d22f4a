package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// object is a JSON object that remembers its key order, so a descriptor can
// be rewritten without reshuffling fields a maintainer placed by hand.
type object struct {
	keys []string
	vals map[string]json.RawMessage
}

func (o *object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	o.keys = nil
	o.vals = make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		if _, dup := o.vals[key]; !dup {
			o.keys = append(o.keys, key)
		}
		o.vals[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(o.vals[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *object) has(key string) bool {
	_, ok := o.vals[key]
	return ok
}

// isNull reports whether key holds a JSON null.
func (o *object) isNull(key string) bool {
	v, ok := o.vals[key]
	return ok && string(bytes.TrimSpace(v)) == "null"
}

func (o *object) get(key string) (json.RawMessage, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// set stores v under key, appending the key when it is new.
func (o *object) set(key string, v any) error {
	data, err := marshal(v)
	if err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	if o.vals == nil {
		o.vals = make(map[string]json.RawMessage)
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = data
	return nil
}

// place stores v under key. A new key is inserted right after the nearest
// preceding key of order already present, or first when there is none.
func (o *object) place(key string, v any, order []string) error {
	if o.has(key) {
		return o.set(key, v)
	}
	at := 0
	for _, prev := range order {
		if prev == key {
			break
		}
		for i, k := range o.keys {
			if k == prev {
				at = i + 1
			}
		}
	}
	if err := o.set(key, v); err != nil {
		return err
	}
	last := len(o.keys) - 1
	copy(o.keys[at+1:], o.keys[at:last])
	o.keys[at] = key
	return nil
}

func (o *object) del(key string) {
	if _, ok := o.vals[key]; !ok {
		return
	}
	delete(o.vals, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i:i], o.keys[i+1:]...)
			break
		}
	}
}

func (o *object) clone() object {
	cp := object{
		keys: append([]string(nil), o.keys...),
		vals: make(map[string]json.RawMessage, len(o.vals)),
	}
	for k, v := range o.vals {
		cp.vals[k] = append(json.RawMessage(nil), v...)
	}
	return cp
}

// marshal encodes v without HTML escaping; descriptor names routinely
// contain "&" and "<".
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Encode serializes a record the way descriptor files are stored on disk:
// two-space indentation, no HTML escaping, trailing newline.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a descriptor file.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
