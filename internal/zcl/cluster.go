package zcl

import "strings"

// ClusterDef describes a ZCL cluster as it is referenced by driver descriptors.
type ClusterDef struct {
	ID      uint16   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Key     string   `json:"key" yaml:"key"`                             // descriptor key, e.g. "genOnOff"
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"` // alternative keys, e.g. "msTemperatureMeasurement"
}

// Matches reports whether key names this cluster, ignoring case.
func (c *ClusterDef) Matches(key string) bool {
	if strings.EqualFold(c.Key, key) {
		return true
	}
	for _, a := range c.Aliases {
		if strings.EqualFold(a, key) {
			return true
		}
	}
	return false
}

// DeepCopy returns a deep copy of the cluster definition.
func (c *ClusterDef) DeepCopy() *ClusterDef {
	cp := *c
	if c.Aliases != nil {
		cp.Aliases = make([]string, len(c.Aliases))
		copy(cp.Aliases, c.Aliases)
	}
	return &cp
}

// Merge adds aliases from another definition and fills an empty name or key.
func (c *ClusterDef) Merge(other *ClusterDef) {
	if c.Name == "" {
		c.Name = other.Name
	}
	if c.Key == "" {
		c.Key = other.Key
	}
	for _, a := range other.Aliases {
		if !c.Matches(a) {
			c.Aliases = append(c.Aliases, a)
		}
	}
	if other.Key != "" && !c.Matches(other.Key) {
		c.Aliases = append(c.Aliases, other.Key)
	}
}
