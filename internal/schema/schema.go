// Package schema checks driver descriptors against a JSON Schema.
package schema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"homey-driverkit/internal/descriptor"
)

//go:embed data/compose.schema.json
var embeddedSchema []byte

const resourceName = "compose.schema.json"

// Violation is one schema failure at a JSON pointer in the descriptor.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// Validator holds a compiled schema. It is safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

// NewDefault compiles the embedded descriptor schema.
func NewDefault() (*Validator, error) {
	return compile(embeddedSchema)
}

// Load compiles the schema at path, or the embedded schema when path is
// empty.
func Load(path string) (*Validator, error) {
	if path == "" {
		return NewDefault()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	v, err := compile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

func compile(data []byte) (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate checks the serialized form of rec.
func (v *Validator) Validate(rec *descriptor.Record) ([]Violation, error) {
	data, err := descriptor.Encode(rec)
	if err != nil {
		return nil, err
	}
	return v.ValidateBytes(data)
}

// ValidateBytes checks a raw descriptor document. The error is non-nil only
// when data is not JSON; schema failures are returned as violations.
func (v *Validator) ValidateBytes(data []byte) ([]Violation, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal descriptor: %w", err)
	}
	err = v.schema.Validate(inst)
	if err == nil {
		return nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, err
	}
	return flatten(ve.BasicOutput()), nil
}

// flatten turns basic output into violations, sorted by path.
func flatten(out *jsonschema.OutputUnit) []Violation {
	var vs []Violation
	seen := make(map[Violation]bool)
	add := func(u jsonschema.OutputUnit) {
		if u.Error == nil {
			return
		}
		path := u.InstanceLocation
		if path == "" {
			path = propertyNamesPath(u.KeywordLocation)
		}
		v := Violation{Path: path, Message: u.Error.String()}
		if !seen[v] {
			seen[v] = true
			vs = append(vs, v)
		}
	}
	for _, u := range out.Errors {
		add(u)
	}
	if len(vs) == 0 {
		add(*out)
	}
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].Path < vs[j].Path })
	return vs
}

// propertyNamesPath locates propertyNames failures, which the validator
// reports without an instance location. A keyword location made of
// properties steps, like /properties/zigbee/properties/endpoints/propertyNames,
// maps to the object whose key failed (/zigbee/endpoints). Any other
// propertyNames location is returned as the keyword location itself.
func propertyNamesPath(kw string) string {
	i := strings.Index(kw, "/propertyNames")
	if i < 0 {
		return ""
	}
	var sb strings.Builder
	toks := strings.Split(kw[:i], "/")[1:]
	for j := 0; j < len(toks); j++ {
		switch {
		case toks[j] == "$ref":
		case toks[j] == "properties" && j+1 < len(toks):
			j++
			sb.WriteString("/" + toks[j])
		default:
			return kw
		}
	}
	return sb.String()
}
