package enrich

import (
	"testing"

	"homey-driverkit/internal/descriptor"
)

func fullZigbee() *descriptor.Zigbee {
	return &descriptor.Zigbee{
		ManufacturerName: descriptor.Names{"m"},
		ProductID:        descriptor.Names{"p"},
		Endpoints:        map[string]descriptor.Endpoint{},
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		rec  *descriptor.Record
		want int
	}{
		{"empty", &descriptor.Record{}, 0},
		{"four fields and one zigbee field", &descriptor.Record{
			ID: "a", Name: descriptor.LocalizedString{"en": "a"}, Class: "socket",
			Capabilities: []string{"onoff"},
			Zigbee:       &descriptor.Zigbee{ManufacturerName: descriptor.Names{"m"}},
		}, 87},
		{"complete", &descriptor.Record{
			ID: "a", Name: descriptor.LocalizedString{"en": "a"}, Class: "socket",
			Capabilities: []string{"onoff"}, Zigbee: fullZigbee(),
		}, 100},
		{"two zigbee fields", &descriptor.Record{
			Zigbee: &descriptor.Zigbee{ManufacturerName: descriptor.Names{"m"}, ProductID: descriptor.Names{"p"}},
		}, 13},
		{"empty capabilities and foreign name", &descriptor.Record{
			ID: "a", Name: descriptor.LocalizedString{"fr": "a"}, Class: "socket",
			Capabilities: []string{}, Zigbee: fullZigbee(),
		}, 60},
		{"empty zigbee strings", &descriptor.Record{
			ID: "a", Zigbee: &descriptor.Zigbee{ManufacturerName: descriptor.Names{""}, ProductID: descriptor.Names{}},
		}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.rec); got != tt.want {
				t.Errorf("Score = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNeedsEnrichmentIgnoresCapabilities(t *testing.T) {
	rec := &descriptor.Record{Capabilities: []string{}, Zigbee: fullZigbee()}
	if NeedsEnrichment(rec) {
		t.Error("NeedsEnrichment = true, want false")
	}
	if IsResolved(rec) {
		t.Error("IsResolved = true with empty capabilities")
	}
	if Score(rec) >= 100 {
		t.Errorf("score = %d, want < 100", Score(rec))
	}

	for _, z := range []*descriptor.Zigbee{
		nil,
		{ProductID: descriptor.Names{"p"}, Endpoints: map[string]descriptor.Endpoint{}},
		{ManufacturerName: descriptor.Names{"m"}, Endpoints: map[string]descriptor.Endpoint{}},
		{ManufacturerName: descriptor.Names{"m"}, ProductID: descriptor.Names{"p"}},
	} {
		if !NeedsEnrichment(&descriptor.Record{Capabilities: []string{"onoff"}, Zigbee: z}) {
			t.Errorf("NeedsEnrichment(%+v) = false", z)
		}
	}
}

func TestValidateAll(t *testing.T) {
	complete := &descriptor.Record{
		ID: "plugs-TS011F", Name: descriptor.LocalizedString{"en": "x"}, Class: "socket",
		Capabilities: []string{"onoff"}, Zigbee: fullZigbee(),
	}
	validOnly := &descriptor.Record{ID: "plugs-TS011G", Zigbee: fullZigbee()}
	bare := &descriptor.Record{ID: "custom"}

	s := ValidateAll([]*descriptor.Record{complete, validOnly, bare})
	if s.TotalCount != 3 || s.ValidCount != 2 || s.CompleteCount != 1 {
		t.Errorf("counts = %d/%d/%d", s.TotalCount, s.ValidCount, s.CompleteCount)
	}
	// (100 + 40 + 20) / 3
	if s.AverageScore != 53 {
		t.Errorf("average = %d, want 53", s.AverageScore)
	}
	if s.ValidPercent != 67 {
		t.Errorf("valid percent = %d, want 67", s.ValidPercent)
	}
	if c := s.ByCategory["plugs"]; c.Total != 2 || c.Valid != 2 || c.Complete != 1 {
		t.Errorf("plugs = %+v", c)
	}
	if c := s.ByCategory[Uncategorized]; c.Total != 1 || c.Valid != 0 {
		t.Errorf("uncategorized = %+v", c)
	}

	empty := ValidateAll(nil)
	if empty.TotalCount != 0 || empty.AverageScore != 0 || empty.ByCategory == nil {
		t.Errorf("empty summary = %+v", empty)
	}
}
