// Package knowledge holds the curated device matrix used to enrich driver
// descriptors: product id -> device type, capabilities, clusters and the
// zigbee identity (manufacturer name, model id) written into descriptors.
package knowledge

import "fmt"

// DeviceType is the Homey device class a product maps to.
type DeviceType string

const (
	TypeSocket     DeviceType = "socket"
	TypeSwitch     DeviceType = "switch"
	TypeSensor     DeviceType = "sensor"
	TypeLight      DeviceType = "light"
	TypeThermostat DeviceType = "thermostat"
	TypeCover      DeviceType = "cover"
	TypeLock       DeviceType = "lock"
	TypeFan        DeviceType = "fan"
	TypeClimate    DeviceType = "climate"
	TypeRemote     DeviceType = "remote"
)

// DeviceTypes lists every accepted device type.
var DeviceTypes = []DeviceType{
	TypeSocket, TypeSwitch, TypeSensor, TypeLight, TypeThermostat,
	TypeCover, TypeLock, TypeFan, TypeClimate, TypeRemote,
}

// Valid reports whether t is one of DeviceTypes.
func (t DeviceType) Valid() bool {
	for _, v := range DeviceTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Entry is one curated fact about a device model.
type Entry struct {
	ProductID       string     `json:"product_id"`        // lookup key, e.g. "TS0601_motion"
	Category        string     `json:"category"`          // e.g. "sensors"
	DeviceType      DeviceType `json:"device_type"`
	Capabilities    []string   `json:"capabilities"`
	Clusters        []string   `json:"clusters"`
	ManufacturerID  string     `json:"manufacturer_id"`   // representative manufacturer string
	ZigbeeProductID string     `json:"zigbee_product_id"` // model id written to descriptors, e.g. "TS0601"
}

// DriverID returns the conventional driver directory name for the entry.
func (e Entry) DriverID() string {
	return e.Category + "-" + e.ProductID
}

func (e Entry) clone() Entry {
	cp := e
	cp.Capabilities = append([]string(nil), e.Capabilities...)
	cp.Clusters = append([]string(nil), e.Clusters...)
	return cp
}

// Category groups entries under a driver category name.
type Category struct {
	Name    string
	Entries []Entry
}

// Base is the immutable knowledge base. Construct it with New or one of the
// Load functions; it is safe for concurrent use.
type Base struct {
	categories []Category
	index      map[string]Entry
}

// New builds a knowledge base from categories. Entries are copied, so later
// changes to the arguments do not leak into the base. When the same product
// id appears in more than one category the first occurrence wins.
func New(categories []Category) (*Base, error) {
	b := &Base{index: make(map[string]Entry)}
	for _, c := range categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category without name")
		}
		cat := Category{Name: c.Name, Entries: make([]Entry, 0, len(c.Entries))}
		for _, e := range c.Entries {
			if e.ProductID == "" {
				return nil, fmt.Errorf("category %s: entry without product id", c.Name)
			}
			if !e.DeviceType.Valid() {
				return nil, fmt.Errorf("category %s: product %s: unknown device type %q", c.Name, e.ProductID, e.DeviceType)
			}
			e = e.clone()
			e.Category = c.Name
			e.Clusters = dedupe(e.Clusters)
			if e.ZigbeeProductID == "" {
				e.ZigbeeProductID = e.ProductID
			}
			cat.Entries = append(cat.Entries, e)
			if _, dup := b.index[e.ProductID]; !dup {
				b.index[e.ProductID] = e
			}
		}
		b.categories = append(b.categories, cat)
	}
	return b, nil
}

// Lookup returns the entry for productID. The result is a copy.
func (b *Base) Lookup(productID string) (Entry, bool) {
	e, ok := b.index[productID]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Entries returns all entries in table order (categories top to bottom),
// including entries shadowed by an earlier duplicate product id.
func (b *Base) Entries() []Entry {
	var out []Entry
	for _, c := range b.categories {
		for _, e := range c.Entries {
			out = append(out, e.clone())
		}
	}
	return out
}

// Categories returns the category names in table order.
func (b *Base) Categories() []string {
	names := make([]string, len(b.categories))
	for i, c := range b.categories {
		names[i] = c.Name
	}
	return names
}

// Len returns the number of distinct product ids.
func (b *Base) Len() int {
	return len(b.index)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
