package knowledge

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"homey-driverkit/internal/zcl"
)

// DefaultManufacturer is used for entries without a manufacturer table row.
const DefaultManufacturer = "_TZ3000_generic"

//go:embed data/knowledge.yaml
var embeddedTable []byte

// identity is a manufacturer table row.
type identity struct {
	ManufacturerName string `yaml:"manufacturer_name"`
	ProductID        string `yaml:"product_id"`
}

type entryFile struct {
	ProductID    string   `yaml:"product_id"`
	Type         string   `yaml:"type"`
	Capabilities []string `yaml:"capabilities"`
	Clusters     []string `yaml:"clusters"`
}

type categoryFile struct {
	Name    string      `yaml:"name"`
	Entries []entryFile `yaml:"entries"`
}

// tableFile is the YAML structure of a knowledge table.
type tableFile struct {
	DefaultManufacturer string              `yaml:"default_manufacturer"`
	Categories          []categoryFile      `yaml:"categories"`
	Manufacturers       map[string]identity `yaml:"manufacturers"`
}

// LoadDefault parses the table compiled into the binary.
func LoadDefault(registry *zcl.Registry, logger *slog.Logger) (*Base, error) {
	return Parse(embeddedTable, registry, logger)
}

// LoadFile reads a knowledge table from path. An empty path selects the
// embedded table.
func LoadFile(path string, registry *zcl.Registry, logger *slog.Logger) (*Base, error) {
	if path == "" {
		return LoadDefault(registry, logger)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge table: %w", err)
	}
	b, err := Parse(data, registry, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Parse decodes a YAML knowledge table. Cluster keys unknown to registry are
// kept but logged; registry may be nil to skip the check.
func Parse(data []byte, registry *zcl.Registry, logger *slog.Logger) (*Base, error) {
	var tf tableFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&tf); err != nil {
		return nil, fmt.Errorf("parse knowledge table: %w", err)
	}

	fallback := tf.DefaultManufacturer
	if fallback == "" {
		fallback = DefaultManufacturer
	}

	unknown := make(map[string]bool)
	categories := make([]Category, 0, len(tf.Categories))
	for _, cf := range tf.Categories {
		cat := Category{Name: cf.Name}
		for _, ef := range cf.Entries {
			e := Entry{
				ProductID:       ef.ProductID,
				DeviceType:      DeviceType(ef.Type),
				Capabilities:    ef.Capabilities,
				Clusters:        ef.Clusters,
				ManufacturerID:  fallback,
				ZigbeeProductID: ef.ProductID,
			}
			if id, ok := tf.Manufacturers[ef.ProductID]; ok {
				if id.ManufacturerName != "" {
					e.ManufacturerID = id.ManufacturerName
				}
				if id.ProductID != "" {
					e.ZigbeeProductID = id.ProductID
				}
			} else {
				logger.Debug("no manufacturer row, using fallback", "product", ef.ProductID, "manufacturer", fallback)
			}
			if registry != nil {
				for _, c := range ef.Clusters {
					if _, ok := registry.Resolve(c); !ok && !unknown[c] {
						unknown[c] = true
						logger.Warn("knowledge table references unknown cluster", "cluster", c, "product", ef.ProductID)
					}
				}
			}
			cat.Entries = append(cat.Entries, e)
		}
		categories = append(categories, cat)
	}

	b, err := New(categories)
	if err != nil {
		return nil, err
	}
	logger.Info("knowledge base loaded", "categories", len(categories), "products", b.Len())
	return b, nil
}
