//go:build !no_mqtt

package mqtt

import "strings"

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is an HA sensor discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	Device            haDevice `json:"device"`
}

// summarySensor is one run summary value exposed to Home Assistant.
type summarySensor struct {
	key  string // field of the summary object
	name string
	unit string
	icon string
}

var summarySensors = []summarySensor{
	{key: "total_count", name: "Drivers", icon: "mdi:folder-multiple"},
	{key: "valid_count", name: "Valid drivers", icon: "mdi:check-circle"},
	{key: "complete_count", name: "Complete drivers", icon: "mdi:star-circle"},
	{key: "average_score", name: "Average score", unit: "%", icon: "mdi:gauge"},
	{key: "valid_percent", name: "Valid drivers share", unit: "%", icon: "mdi:percent"},
}

// nodeID derives the HA node id from the topic prefix.
func nodeID(prefix string) string {
	id := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, strings.ToLower(prefix))
	return "driverkit_" + id
}

// buildDiscovery generates HA discovery messages for the run summary
// published on the report topic.
func buildDiscovery(prefix string) []message {
	node := nodeID(prefix)
	dev := haDevice{
		Identifiers:  []string{node},
		Manufacturer: "homey-driverkit",
		Model:        "driver maintenance",
		Name:         "Driverkit " + prefix,
	}
	msgs := make([]message, 0, len(summarySensors))
	for _, s := range summarySensors {
		msgs = append(msgs, message{
			Topic: "homeassistant/sensor/" + node + "/" + s.key + "/config",
			Payload: mustJSON(haDiscovery{
				Name:              s.name,
				UniqueID:          node + "_" + s.key,
				StateTopic:        reportTopic(prefix),
				AvailabilityTopic: stateTopic(prefix),
				ValueTemplate:     "{{ value_json.summary." + s.key + " }}",
				UnitOfMeasurement: s.unit,
				StateClass:        "measurement",
				Icon:              s.icon,
				Device:            dev,
			}),
			Retained: true,
		})
	}
	return msgs
}
