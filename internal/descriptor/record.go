// Package descriptor models Homey driver descriptors (driver.compose.json)
// and reads and writes them on disk.
package descriptor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Known top-level descriptor keys.
const (
	keyID           = "id"
	keyName         = "name"
	keyClass        = "class"
	keyCapabilities = "capabilities"
	keyZigbee       = "zigbee"
)

// Record is one driver descriptor. Fields the toolkit does not model are
// carried through untouched, in their original order.
type Record struct {
	ID           string
	Name         LocalizedString
	Class        string
	Capabilities []string
	Zigbee       *Zigbee

	fields object
}

// LocalizedString maps a locale code to text. A bare JSON string decodes as
// the "en" translation.
type LocalizedString map[string]string

func (l *LocalizedString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = LocalizedString{"en": s}
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*l = m
	return nil
}

// Zigbee is the protocol block of a descriptor.
type Zigbee struct {
	ManufacturerName Names
	ProductID        Names
	Endpoints        map[string]Endpoint // nil when absent

	fields object
}

// Names holds a string field that descriptors store either as one string
// or as an array of strings.
type Names []string

// Present reports whether at least one non-empty value is set.
func (n Names) Present() bool {
	for _, s := range n {
		if s != "" {
			return true
		}
	}
	return false
}

// First returns the first value or "".
func (n Names) First() string {
	if len(n) == 0 {
		return ""
	}
	return n[0]
}

func (n *Names) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = Names{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("expected string or string array: %w", err)
	}
	if list == nil {
		list = []string{}
	}
	*n = list
	return nil
}

func (n Names) MarshalJSON() ([]byte, error) {
	if len(n) == 1 {
		return marshal(n[0])
	}
	return marshal([]string(n))
}

// Endpoint describes one zigbee endpoint of a descriptor. An endpoint read
// without a bindings key is written back without one while Bindings stays
// nil; endpoints built in code always get a bindings array.
type Endpoint struct {
	Clusters EndpointClusters
	Bindings ClusterList

	noBindings bool
}

type endpointJSON struct {
	Clusters EndpointClusters `json:"clusters"`
	Bindings *ClusterList     `json:"bindings,omitempty"`
}

func (e *Endpoint) UnmarshalJSON(data []byte) error {
	var v endpointJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = Endpoint{Clusters: v.Clusters}
	if v.Bindings == nil {
		e.noBindings = true
	} else {
		e.Bindings = *v.Bindings
	}
	return nil
}

func (e Endpoint) MarshalJSON() ([]byte, error) {
	v := endpointJSON{Clusters: e.Clusters}
	if e.Bindings != nil || !e.noBindings {
		b := e.Bindings
		if b == nil {
			b = ClusterList{}
		}
		v.Bindings = &b
	}
	return marshal(v)
}

// EndpointClusters holds the input and output cluster lists. Homey SDK
// descriptors use a flat array instead; that form decodes into Input and is
// written back as a flat array.
type EndpointClusters struct {
	Input  ClusterList
	Output ClusterList
	flat   bool
}

type endpointClustersJSON struct {
	Input  ClusterList `json:"input"`
	Output ClusterList `json:"output"`
}

func (c *EndpointClusters) UnmarshalJSON(data []byte) error {
	var list ClusterList
	if err := json.Unmarshal(data, &list); err == nil {
		*c = EndpointClusters{Input: list, flat: true}
		return nil
	}
	var v endpointClustersJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = EndpointClusters{Input: v.Input, Output: v.Output}
	return nil
}

func (c EndpointClusters) MarshalJSON() ([]byte, error) {
	if c.flat {
		return marshal(c.Input)
	}
	in, out := c.Input, c.Output
	if in == nil {
		in = ClusterList{}
	}
	if out == nil {
		out = ClusterList{}
	}
	return marshal(endpointClustersJSON{Input: in, Output: out})
}

// ClusterRef references a cluster either by descriptor key ("genOnOff") or
// by numeric ID, and is written back in the form it was read.
type ClusterRef struct {
	Name    string
	ID      uint16
	Numeric bool
}

// ClusterName returns a reference by key.
func ClusterName(name string) ClusterRef { return ClusterRef{Name: name} }

// ClusterID returns a numeric reference.
func ClusterID(id uint16) ClusterRef { return ClusterRef{ID: id, Numeric: true} }

func (c ClusterRef) String() string {
	if c.Numeric {
		return strconv.Itoa(int(c.ID))
	}
	return c.Name
}

func (c *ClusterRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ClusterRef{Name: s}
		return nil
	}
	var id uint16
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("cluster must be a name or an id 0-65535: %s", data)
	}
	*c = ClusterRef{ID: id, Numeric: true}
	return nil
}

func (c ClusterRef) MarshalJSON() ([]byte, error) {
	if c.Numeric {
		return []byte(strconv.Itoa(int(c.ID))), nil
	}
	return marshal(c.Name)
}

// ClusterList is an ordered list of cluster references.
type ClusterList []ClusterRef

// Set returns the distinct string forms of the list, sorted.
func (l ClusterList) Set() []string {
	seen := make(map[string]bool, len(l))
	out := make([]string, 0, len(l))
	for _, c := range l {
		s := c.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// SameSet reports whether two lists contain the same clusters.
func SameSet(a, b ClusterList) bool {
	as, bs := a.Set(), b.Set()
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	cp := &Record{
		ID:     r.ID,
		Class:  r.Class,
		fields: r.fields.clone(),
	}
	if r.Name != nil {
		cp.Name = make(LocalizedString, len(r.Name))
		for k, v := range r.Name {
			cp.Name[k] = v
		}
	}
	if r.Capabilities != nil {
		cp.Capabilities = append([]string{}, r.Capabilities...)
	}
	if r.Zigbee != nil {
		cp.Zigbee = r.Zigbee.Clone()
	}
	return cp
}

// Clone returns a deep copy of the zigbee block.
func (z *Zigbee) Clone() *Zigbee {
	cp := &Zigbee{fields: z.fields.clone()}
	if z.ManufacturerName != nil {
		cp.ManufacturerName = append(Names{}, z.ManufacturerName...)
	}
	if z.ProductID != nil {
		cp.ProductID = append(Names{}, z.ProductID...)
	}
	if z.Endpoints != nil {
		cp.Endpoints = make(map[string]Endpoint, len(z.Endpoints))
		for k, ep := range z.Endpoints {
			cp.Endpoints[k] = Endpoint{
				Clusters: EndpointClusters{
					Input:  cloneClusters(ep.Clusters.Input),
					Output: cloneClusters(ep.Clusters.Output),
					flat:   ep.Clusters.flat,
				},
				Bindings:   cloneClusters(ep.Bindings),
				noBindings: ep.noBindings,
			}
		}
	}
	return cp
}

func cloneClusters(l ClusterList) ClusterList {
	if l == nil {
		return nil
	}
	return append(ClusterList{}, l...)
}

// Extra returns the raw JSON of a field the record does not model.
func (r *Record) Extra(key string) (json.RawMessage, bool) {
	return r.fields.get(key)
}

// SetExtra stores v under a field the record does not model.
func (r *Record) SetExtra(key string, v any) error {
	switch key {
	case keyID, keyName, keyClass, keyCapabilities, keyZigbee:
		return fmt.Errorf("field %q is modelled, set it directly", key)
	}
	return r.fields.set(key, v)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var obj object
	if err := obj.UnmarshalJSON(data); err != nil {
		return err
	}
	rec := Record{fields: obj}
	if err := decodeField(&obj, keyID, &rec.ID); err != nil {
		return err
	}
	if err := decodeField(&obj, keyName, &rec.Name); err != nil {
		return err
	}
	if err := decodeField(&obj, keyClass, &rec.Class); err != nil {
		return err
	}
	if err := decodeField(&obj, keyCapabilities, &rec.Capabilities); err != nil {
		return err
	}
	if raw, ok := obj.get(keyZigbee); ok && string(raw) != "null" {
		var z Zigbee
		if err := json.Unmarshal(raw, &z); err != nil {
			return fmt.Errorf("field %q: %w", keyZigbee, err)
		}
		rec.Zigbee = &z
	}
	*r = rec
	return nil
}

var recordOrder = []string{keyID, keyName, keyClass, keyCapabilities, keyZigbee}

func (r Record) MarshalJSON() ([]byte, error) {
	obj := r.fields.clone()
	known := []struct {
		key     string
		present bool
		v       any
	}{
		{keyID, r.ID != "" || (obj.has(keyID) && !obj.isNull(keyID)), r.ID},
		{keyName, r.Name != nil, r.Name},
		{keyClass, r.Class != "" || (obj.has(keyClass) && !obj.isNull(keyClass)), r.Class},
		{keyCapabilities, r.Capabilities != nil, r.Capabilities},
		{keyZigbee, r.Zigbee != nil, r.Zigbee},
	}
	for _, f := range known {
		if err := placeOrDelete(&obj, f.key, f.present, f.v, recordOrder); err != nil {
			return nil, err
		}
	}
	return obj.MarshalJSON()
}

// Known zigbee keys.
const (
	keyManufacturerName = "manufacturerName"
	keyProductID        = "productId"
	keyEndpoints        = "endpoints"
)

func (z *Zigbee) UnmarshalJSON(data []byte) error {
	var obj object
	if err := obj.UnmarshalJSON(data); err != nil {
		return err
	}
	zb := Zigbee{fields: obj}
	if err := decodeField(&obj, keyManufacturerName, &zb.ManufacturerName); err != nil {
		return err
	}
	if err := decodeField(&obj, keyProductID, &zb.ProductID); err != nil {
		return err
	}
	if err := decodeField(&obj, keyEndpoints, &zb.Endpoints); err != nil {
		return err
	}
	*z = zb
	return nil
}

var zigbeeOrder = []string{keyManufacturerName, keyProductID, keyEndpoints}

func (z Zigbee) MarshalJSON() ([]byte, error) {
	obj := z.fields.clone()
	if err := placeOrDelete(&obj, keyManufacturerName, z.ManufacturerName != nil, z.ManufacturerName, zigbeeOrder); err != nil {
		return nil, err
	}
	if err := placeOrDelete(&obj, keyProductID, z.ProductID != nil, z.ProductID, zigbeeOrder); err != nil {
		return nil, err
	}
	if err := placeOrDelete(&obj, keyEndpoints, z.Endpoints != nil, endpointsInOrder(z.Endpoints), zigbeeOrder); err != nil {
		return nil, err
	}
	return obj.MarshalJSON()
}

// endpointsInOrder renders endpoints with numeric keys in numeric order.
func endpointsInOrder(eps map[string]Endpoint) object {
	keys := make([]string, 0, len(eps))
	for k := range eps {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aerr := strconv.Atoi(keys[i])
		b, berr := strconv.Atoi(keys[j])
		if aerr == nil && berr == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	var obj object
	for _, k := range keys {
		// Endpoint marshalling cannot fail: it holds only strings and numbers.
		_ = obj.set(k, eps[k])
	}
	return obj
}

func decodeField(obj *object, key string, dst any) error {
	raw, ok := obj.get(key)
	if !ok || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	return nil
}

// placeOrDelete writes v under key, or removes key when the field is
// unset. An explicit null read from the file is kept as is.
func placeOrDelete(obj *object, key string, present bool, v any, order []string) error {
	if !present {
		if !obj.isNull(key) {
			obj.del(key)
		}
		return nil
	}
	return obj.place(key, v, order)
}
