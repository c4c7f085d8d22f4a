package enrich

import (
	"math"

	"homey-driverkit/internal/descriptor"
)

const (
	fieldWeight     = 20.0
	zigbeeSubWeight = 6.67
)

// NeedsEnrichment reports whether the zigbee block or any of its
// manufacturerName, productId or endpoints fields is missing. Capabilities
// do not count.
func NeedsEnrichment(rec *descriptor.Record) bool {
	z := rec.Zigbee
	return z == nil || !z.ManufacturerName.Present() || !z.ProductID.Present() || z.Endpoints == nil
}

// IsResolved reports whether the zigbee block is complete and capabilities
// are set.
func IsResolved(rec *descriptor.Record) bool {
	return !NeedsEnrichment(rec) && len(rec.Capabilities) > 0
}

// Score rates a record 0-100: 20 points each for id, English name, class
// and capabilities, and 6.67 for each of the three zigbee fields. The sum
// is rounded once.
func Score(rec *descriptor.Record) int {
	var s float64
	if rec.ID != "" {
		s += fieldWeight
	}
	if rec.Name["en"] != "" {
		s += fieldWeight
	}
	if rec.Class != "" {
		s += fieldWeight
	}
	if len(rec.Capabilities) > 0 {
		s += fieldWeight
	}
	if z := rec.Zigbee; z != nil {
		if z.ManufacturerName.Present() {
			s += zigbeeSubWeight
		}
		if z.ProductID.Present() {
			s += zigbeeSubWeight
		}
		if z.Endpoints != nil {
			s += zigbeeSubWeight
		}
	}
	return int(math.Min(100, math.Floor(s+0.5)))
}
