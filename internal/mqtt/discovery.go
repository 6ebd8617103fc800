package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"codeberg.org/mutker/cyclewatch/internal/appliance"
)

// DeviceClass is the Home Assistant sensor device class.
type DeviceClass int64

const (
	None DeviceClass = iota
	Power
	Energy
	Monetary
	Duration
	Running
)

func (s DeviceClass) String() string {
	switch s {
	case Power:
		return "power"
	case Energy:
		return "energy"
	case Monetary:
		return "monetary"
	case Duration:
		return "duration"
	case Running:
		return "running"
	case None:
		return ""
	}
	return "unknown"
}

func (s DeviceClass) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Unit is the Home Assistant unit of measurement.
type Unit int64

const (
	NoUnit Unit = iota
	W
	KWh
	Seconds
)

func (s Unit) String() string {
	switch s {
	case W:
		return "W"
	case KWh:
		return "kWh"
	case Seconds:
		return "s"
	case NoUnit:
		return ""
	}
	return "unknown"
}

func (s Unit) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

type Device struct {
	Identifiers []string `json:"identifiers"`
	Name        string   `json:"name"`
}

type ConfigurationItem struct {
	DeviceClass       DeviceClass `json:"device_class,omitempty"`
	UnitOfMeasurement Unit        `json:"unit_of_measurement,omitempty"`
	Device            Device      `json:"device"`
	StateClass        string      `json:"state_class,omitempty"`
	UniqueId          string      `json:"unique_id"`
	Name              string      `json:"name"`
	StateTopic        string      `json:"state_topic,omitempty"`
	CommandTopic      string      `json:"command_topic,omitempty"`
	ValueTemplate     string      `json:"value_template,omitempty"`
	PayloadOn         string      `json:"payload_on,omitempty"`
	PayloadOff        string      `json:"payload_off,omitempty"`
	PayloadPress      string      `json:"payload_press,omitempty"`
}

// discoveryItems maps each metric kind of one appliance onto the Home
// Assistant sensor entities derived from its state topic. The kinds carry no
// logic of their own; everything reads from the same retained state message.
func discoveryItems(name, stateTopic string, costTracked bool) []ConfigurationItem {
	device := Device{
		Identifiers: []string{"cyclewatch_" + slug(name)},
		Name:        name,
	}

	items := make([]ConfigurationItem, 0, 8)
	for _, kind := range appliance.MetricKinds(costTracked) {
		switch kind {
		case appliance.MetricPower:
			items = append(items, ConfigurationItem{
				Name:              name + " Power",
				DeviceClass:       Power,
				UnitOfMeasurement: W,
				StateClass:        "measurement",
				ValueTemplate:     "{{ value_json.power_w }}",
				Device:            device,
			})
		case appliance.MetricEnergy:
			items = append(items, ConfigurationItem{
				Name:              name + " Cycle Energy",
				DeviceClass:       Energy,
				UnitOfMeasurement: KWh,
				StateClass:        "measurement",
				ValueTemplate:     "{{ value_json.cycle.energy_kwh }}",
				Device:            device,
			}, ConfigurationItem{
				Name:              name + " Lifetime Energy",
				DeviceClass:       Energy,
				UnitOfMeasurement: KWh,
				StateClass:        "total_increasing",
				ValueTemplate:     "{{ value_json.totals.lifetime_kwh }}",
				Device:            device,
			})
		case appliance.MetricCost:
			items = append(items, ConfigurationItem{
				Name:          name + " Cycle Cost",
				DeviceClass:   Monetary,
				ValueTemplate: "{{ value_json.cycle.cost }}",
				Device:        device,
			})
		case appliance.MetricDuration:
			items = append(items, ConfigurationItem{
				Name:              name + " Cycle Duration",
				DeviceClass:       Duration,
				UnitOfMeasurement: Seconds,
				ValueTemplate:     "{{ value_json.cycle.duration_s }}",
				Device:            device,
			})
		case appliance.MetricCycles:
			items = append(items, ConfigurationItem{
				Name:          name + " Cycle Count",
				StateClass:    "total_increasing",
				ValueTemplate: "{{ value_json.service.cycle_count }}",
				Device:        device,
			})
		case appliance.MetricService:
			items = append(items, ConfigurationItem{
				Name:          name + " Service",
				ValueTemplate: "{{ value_json.service.status }}",
				Device:        device,
			})
		}
	}

	for i := range items {
		items[i].StateTopic = stateTopic
		items[i].UniqueId = "cyclewatch_" + slug(items[i].Name)
	}

	return items
}

// runningItem is the binary sensor mirroring the detector state.
func runningItem(name, stateTopic string) ConfigurationItem {
	return ConfigurationItem{
		Name:          name + " Running",
		DeviceClass:   Running,
		StateTopic:    stateTopic,
		ValueTemplate: "{{ value_json.running }}",
		PayloadOn:     "True",
		PayloadOff:    "False",
		UniqueId:      "cyclewatch_" + slug(name) + "_running",
		Device: Device{
			Identifiers: []string{"cyclewatch_" + slug(name)},
			Name:        name,
		},
	}
}

// serviceButton lets Home Assistant reset the maintenance counter after the
// appliance has been serviced.
func serviceButton(name, commandTopic string) ConfigurationItem {
	return ConfigurationItem{
		Name:         name + " Service Performed",
		CommandTopic: commandTopic,
		PayloadPress: "service_performed",
		UniqueId:     "cyclewatch_" + slug(name) + "_service_performed",
		Device: Device{
			Identifiers: []string{"cyclewatch_" + slug(name)},
			Name:        name,
		},
	}
}

func (c ConfigurationItem) marshal() ([]byte, error) {
	return json.Marshal(c)
}

func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

func discoveryTopic(prefix, component, uniqueID string) string {
	return fmt.Sprintf("%s/%s/%s/config", prefix, component, uniqueID)
}
