package rules

import (
	"sort"

	"homey-driverkit/internal/descriptor"
	"homey-driverkit/internal/enrich"
)

// Subject is the view of a driver handed to rule scripts.
type Subject struct {
	Driver           string
	ID               string
	Name             map[string]string
	Class            string
	Capabilities     []string
	ManufacturerName []string
	ProductID        []string
	Endpoints        []string // endpoint keys, sorted
	Clusters         []string // distinct clusters across all endpoints, sorted
	Score            int
	Valid            bool
	Resolved         bool
}

// SubjectFor builds the rule view of a descriptor.
func SubjectFor(driver string, rec *descriptor.Record) Subject {
	s := Subject{
		Driver:       driver,
		ID:           rec.ID,
		Name:         rec.Name,
		Class:        rec.Class,
		Capabilities: rec.Capabilities,
		Score:        enrich.Score(rec),
		Valid:        !enrich.NeedsEnrichment(rec),
		Resolved:     enrich.IsResolved(rec),
	}
	if z := rec.Zigbee; z != nil {
		s.ManufacturerName = z.ManufacturerName
		s.ProductID = z.ProductID
		var all descriptor.ClusterList
		for k, ep := range z.Endpoints {
			s.Endpoints = append(s.Endpoints, k)
			all = append(all, ep.Clusters.Input...)
			all = append(all, ep.Clusters.Output...)
			all = append(all, ep.Bindings...)
		}
		sort.Strings(s.Endpoints)
		s.Clusters = all.Set()
	}
	return s
}

// table converts the subject into the map handed to goToLua.
func (s Subject) table() map[string]any {
	name := make(map[string]any, len(s.Name))
	for k, v := range s.Name {
		name[k] = v
	}
	return map[string]any{
		"driver":            s.Driver,
		"id":                s.ID,
		"name":              name,
		"class":             s.Class,
		"capabilities":      anySlice(s.Capabilities),
		"manufacturer_name": anySlice(s.ManufacturerName),
		"product_id":        anySlice(s.ProductID),
		"endpoints":         anySlice(s.Endpoints),
		"clusters":          anySlice(s.Clusters),
		"score":             s.Score,
		"valid":             s.Valid,
		"resolved":          s.Resolved,
	}
}

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
