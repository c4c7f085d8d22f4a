package zcl

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Registry holds all known ZCL cluster definitions.
type Registry struct {
	mu       sync.RWMutex
	clusters map[uint16]*ClusterDef
	byKey    map[string]uint16
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clusters: make(map[uint16]*ClusterDef),
		byKey:    make(map[string]uint16),
		logger:   logger,
	}
}

// NewStandardRegistry creates a registry preloaded with the standard clusters.
func NewStandardRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	for _, c := range Standard {
		r.Register(c)
	}
	return r
}

// Register adds a cluster definition to the registry.
func (r *Registry) Register(c ClusterDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clusters[c.ID]; ok {
		existing.Merge(&c)
		r.index(existing)
		r.logger.Debug("cluster merged", "id", fmt.Sprintf("0x%04X", c.ID), "key", existing.Key)
		return
	}
	clone := c.DeepCopy()
	r.clusters[c.ID] = clone
	r.index(clone)
	r.logger.Debug("cluster registered", "id", fmt.Sprintf("0x%04X", c.ID), "key", c.Key)
}

func (r *Registry) index(c *ClusterDef) {
	if c.Key != "" {
		r.byKey[strings.ToLower(c.Key)] = c.ID
	}
	for _, a := range c.Aliases {
		r.byKey[strings.ToLower(a)] = c.ID
	}
}

// Get returns a cluster definition by ID, or nil if not found.
// The returned value is a deep copy; callers may modify it safely.
func (r *Registry) Get(id uint16) *ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.clusters[id]
	if c == nil {
		return nil
	}
	return c.DeepCopy()
}

// Resolve maps a descriptor cluster key (or alias) to its numeric ID.
func (r *Registry) Resolve(key string) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[strings.ToLower(key)]
	return id, ok
}

// KeyFor returns the primary descriptor key for a cluster ID.
func (r *Registry) KeyFor(id uint16) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.clusters[id]
	if c == nil || c.Key == "" {
		return "", false
	}
	return c.Key, true
}

// All returns all registered cluster definitions ordered by ID.
// Each entry is a deep copy; callers may modify them safely.
func (r *Registry) All() []ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]ClusterDef, 0, len(r.clusters))
	for _, c := range r.clusters {
		result = append(result, *c.DeepCopy())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
