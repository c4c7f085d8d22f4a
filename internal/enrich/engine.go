// Package enrich fills missing driver descriptor fields from the knowledge
// base, synthesizes descriptors for products without a driver, and scores
// descriptor completeness.
package enrich

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"homey-driverkit/internal/descriptor"
	"homey-driverkit/internal/knowledge"
	"homey-driverkit/internal/zcl"
)

// ClusterFormat selects how clusters are written into endpoints.
type ClusterFormat string

const (
	ClusterNames ClusterFormat = "name" // "genOnOff"
	ClusterIDs   ClusterFormat = "id"   // 6
)

// Options parameterizes the engine.
type Options struct {
	ConfidenceScore int           // metadata.confidence_score of synthesized records
	Locales         []string      // name locales of synthesized records; must contain "en"
	ClusterFormat   ClusterFormat // endpoint cluster representation
	Sources         []string      // metadata.sources of synthesized records
	MetadataVersion string        // metadata.version of synthesized records
	Clock           func() time.Time
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		ConfidenceScore: 90,
		Locales:         []string{"en", "fr", "nl", "ta"},
		ClusterFormat:   ClusterNames,
		Sources:         []string{"knowledge-base"},
		MetadataVersion: "1.0.0",
		Clock:           time.Now,
	}
}

// Outcome is the result kind of Enrich.
type Outcome string

const (
	Enriched  Outcome = "enriched"
	Unchanged Outcome = "unchanged"
)

// Result describes one Enrich call.
type Result struct {
	Outcome   Outcome
	Record    *descriptor.Record // enriched copy, or the input when unchanged
	ProductID string             // extracted product id, "" when none
	Reason    string             // why the record was left unchanged
}

// Engine applies knowledge base facts to descriptors. It is safe for
// concurrent use.
type Engine struct {
	kb       *knowledge.Base
	registry *zcl.Registry
	opts     Options
	logger   *slog.Logger
}

// NewEngine creates an engine. registry is required only for ClusterIDs.
func NewEngine(kb *knowledge.Base, registry *zcl.Registry, opts Options, logger *slog.Logger) (*Engine, error) {
	if kb == nil {
		return nil, fmt.Errorf("knowledge base is required")
	}
	if opts.ConfidenceScore < 0 || opts.ConfidenceScore > 100 {
		return nil, fmt.Errorf("confidence score %d out of range 0-100", opts.ConfidenceScore)
	}
	if !slices.Contains(opts.Locales, "en") {
		return nil, fmt.Errorf("locales %v must include en", opts.Locales)
	}
	switch opts.ClusterFormat {
	case "":
		opts.ClusterFormat = ClusterNames
	case ClusterNames:
	case ClusterIDs:
		if registry == nil {
			return nil, fmt.Errorf("cluster format %q needs a cluster registry", ClusterIDs)
		}
	default:
		return nil, fmt.Errorf("unknown cluster format %q", opts.ClusterFormat)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	opts.Locales = slices.Clone(opts.Locales)
	opts.Sources = slices.Clone(opts.Sources)
	return &Engine{
		kb:       kb,
		registry: registry,
		opts:     opts,
		logger:   logger.With("component", "enrich"),
	}, nil
}

// Knowledge returns the engine's knowledge base.
func (e *Engine) Knowledge() *knowledge.Base { return e.kb }

// Enrich resolves the record's product id from its id and, on a knowledge
// base hit, returns a copy whose zigbee block is replaced by one built from
// the knowledge base. Capabilities are filled only when empty. A miss is
// not an error; the record is returned unchanged.
func (e *Engine) Enrich(rec *descriptor.Record) Result {
	pid, ok := Extract(rec.ID)
	if !ok {
		e.logger.Debug("no product id in driver id", "id", rec.ID)
		return Result{Outcome: Unchanged, Record: rec, Reason: "no product id"}
	}
	entry, ok := e.kb.Lookup(pid)
	if !ok {
		e.logger.Debug("product not in knowledge base", "id", rec.ID, "product", pid)
		return Result{Outcome: Unchanged, Record: rec, ProductID: pid, Reason: "unknown product"}
	}

	out := rec.Clone()
	out.Zigbee = e.zigbee(entry)
	if len(out.Capabilities) == 0 {
		out.Capabilities = slices.Clone(entry.Capabilities)
	}
	e.logger.Debug("record enriched", "id", rec.ID, "product", pid)
	return Result{Outcome: Enriched, Record: out, ProductID: pid}
}

// zigbee builds a complete zigbee block for entry.
func (e *Engine) zigbee(entry knowledge.Entry) *descriptor.Zigbee {
	return &descriptor.Zigbee{
		ManufacturerName: descriptor.Names{entry.ManufacturerID},
		ProductID:        descriptor.Names{entry.ZigbeeProductID},
		Endpoints:        e.BuildEndpoints(entry.Clusters),
	}
}

// BuildEndpoints returns a single endpoint "1" whose input clusters, output
// clusters and bindings all equal clusters.
func (e *Engine) BuildEndpoints(clusters []string) map[string]descriptor.Endpoint {
	list := func() descriptor.ClusterList {
		out := make(descriptor.ClusterList, 0, len(clusters))
		for _, c := range clusters {
			out = append(out, e.clusterRef(c))
		}
		return out
	}
	return map[string]descriptor.Endpoint{
		"1": {
			Clusters: descriptor.EndpointClusters{Input: list(), Output: list()},
			Bindings: list(),
		},
	}
}

func (e *Engine) clusterRef(name string) descriptor.ClusterRef {
	if e.opts.ClusterFormat == ClusterIDs {
		if id, ok := e.registry.Resolve(name); ok {
			return descriptor.ClusterID(id)
		}
		e.logger.Warn("cluster has no known id, keeping name", "cluster", name)
	}
	return descriptor.ClusterName(name)
}

// Images is the images block of synthesized records.
type Images struct {
	Small string `json:"small"`
	Large string `json:"large"`
}

// Metadata is the metadata block of synthesized records.
type Metadata struct {
	Version         string   `json:"version"`
	LastUpdated     string   `json:"last_updated"`
	ConfidenceScore int      `json:"confidence_score"`
	Sources         []string `json:"sources"`
	Type            string   `json:"type"`
	Category        string   `json:"category"`
}

// Synthesize builds a new descriptor for a knowledge base entry. The name
// is "<category> <productID>" in every configured locale.
func (e *Engine) Synthesize(entry knowledge.Entry) (*descriptor.Record, error) {
	label := entry.Category + " " + entry.ProductID
	name := make(descriptor.LocalizedString, len(e.opts.Locales))
	for _, l := range e.opts.Locales {
		name[l] = label
	}
	rec := &descriptor.Record{
		ID:           entry.DriverID(),
		Name:         name,
		Class:        string(entry.DeviceType),
		Capabilities: slices.Clone(entry.Capabilities),
		Zigbee:       e.zigbee(entry),
	}
	if rec.Capabilities == nil {
		rec.Capabilities = []string{}
	}
	images := Images{
		Small: descriptor.AssetsDir + "/small.svg",
		Large: descriptor.AssetsDir + "/large.svg",
	}
	if err := rec.SetExtra("images", images); err != nil {
		return nil, err
	}
	meta := Metadata{
		Version:         e.opts.MetadataVersion,
		LastUpdated:     e.opts.Clock().UTC().Format(time.RFC3339),
		ConfidenceScore: e.opts.ConfidenceScore,
		Sources:         slices.Clone(e.opts.Sources),
		Type:            "tuya",
		Category:        entry.Category,
	}
	if meta.Sources == nil {
		meta.Sources = []string{}
	}
	if err := rec.SetExtra("metadata", meta); err != nil {
		return nil, err
	}
	return rec, nil
}
