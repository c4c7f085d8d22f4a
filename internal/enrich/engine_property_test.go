package enrich

import (
	"bytes"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"homey-driverkit/internal/descriptor"
)

var (
	propIDs = []string{
		"plugs-TS011F", "switches-TS0001", "sensors-TS0601_motion",
		"plugs-TS9999", "generic-device-42", "", "lights-TS0501B",
	}
	propCaps = []string{"onoff", "dim", "measure_power", "alarm_battery"}
)

// recordGen draws descriptors with any subset of fields set.
func recordGen() *rapid.Generator[*descriptor.Record] {
	return rapid.Custom(func(t *rapid.T) *descriptor.Record {
		rec := &descriptor.Record{ID: rapid.SampledFrom(propIDs).Draw(t, "id")}
		if rapid.Bool().Draw(t, "has_name") {
			rec.Name = descriptor.LocalizedString{"en": rapid.StringMatching(`[a-z ]{0,12}`).Draw(t, "name")}
		}
		if rapid.Bool().Draw(t, "has_class") {
			rec.Class = rapid.SampledFrom([]string{"socket", "light", ""}).Draw(t, "class")
		}
		if rapid.Bool().Draw(t, "has_caps") {
			rec.Capabilities = rapid.SliceOfN(rapid.SampledFrom(propCaps), 0, 3).Draw(t, "caps")
		}
		if rapid.Bool().Draw(t, "has_zigbee") {
			z := &descriptor.Zigbee{}
			if rapid.Bool().Draw(t, "has_manufacturer") {
				z.ManufacturerName = descriptor.Names{rapid.StringMatching(`_TZ[0-9]{4}_[a-z]{0,4}`).Draw(t, "manufacturer")}
			}
			if rapid.Bool().Draw(t, "has_product") {
				z.ProductID = descriptor.Names{"TS0001"}
			}
			if rapid.Bool().Draw(t, "has_endpoints") {
				z.Endpoints = map[string]descriptor.Endpoint{}
			}
			rec.Zigbee = z
		}
		return rec
	})
}

func encode(t *rapid.T, rec *descriptor.Record) []byte {
	data, err := descriptor.Encode(rec)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestPropertyEnrichIdempotent(t *testing.T) {
	e := testEngine(t, DefaultOptions())
	rapid.Check(t, func(t *rapid.T) {
		rec := recordGen().Draw(t, "record")
		once := e.Enrich(rec).Record
		twice := e.Enrich(once).Record
		if a, b := encode(t, once), encode(t, twice); !bytes.Equal(a, b) {
			t.Fatalf("second enrichment changed the record:\n%s\n%s", a, b)
		}
	})
}

func TestPropertyCapabilitiesPreserved(t *testing.T) {
	e := testEngine(t, DefaultOptions())
	rapid.Check(t, func(t *rapid.T) {
		rec := recordGen().Draw(t, "record")
		if len(rec.Capabilities) == 0 {
			rec.Capabilities = []string{rapid.SampledFrom(propCaps).Draw(t, "cap")}
		}
		before := slices.Clone(rec.Capabilities)
		after := e.Enrich(rec).Record.Capabilities
		if !slices.Equal(before, after) {
			t.Fatalf("capabilities %v became %v", before, after)
		}
	})
}

func TestPropertyScoreMonotonic(t *testing.T) {
	e := testEngine(t, DefaultOptions())
	rapid.Check(t, func(t *rapid.T) {
		rec := recordGen().Draw(t, "record")
		before := Score(rec)
		after := Score(e.Enrich(rec).Record)
		if after < before {
			t.Fatalf("score dropped from %d to %d", before, after)
		}
	})
}

func TestPropertyEndpointSymmetry(t *testing.T) {
	e := testEngine(t, DefaultOptions())
	rapid.Check(t, func(t *rapid.T) {
		rec := recordGen().Draw(t, "record")
		res := e.Enrich(rec)
		if res.Outcome != Enriched {
			return
		}
		ep, ok := res.Record.Zigbee.Endpoints["1"]
		if !ok {
			t.Fatal("endpoint 1 missing")
		}
		if !descriptor.SameSet(ep.Clusters.Input, ep.Clusters.Output) || !descriptor.SameSet(ep.Clusters.Input, ep.Bindings) {
			t.Fatalf("asymmetric endpoint: %+v", ep)
		}
	})
}

func TestPropertyExtractTrailingLetter(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.StringMatching(`[a-z]{1,10}`).Draw(t, "prefix")
		id := "TS" + rapid.StringMatching(`[0-9]{3}[A-Z]`).Draw(t, "product")
		got, ok := Extract(prefix + "-" + id)
		if !ok || got != id {
			t.Fatalf("Extract(%q) = %q, %v; want %q", prefix+"-"+id, got, ok, id)
		}
	})
}
