package appliance

// Profiles are starting points for common appliance types. Thresholds are
// rough mains-power figures; users are expected to tune them per device.
var profiles = map[string]Config{
	"dishwasher": {
		StartWatts:            1200,
		StopWatts:             100,
		DeadZoneWatts:         50,
		ServiceEnabled:        true,
		ServiceCycleThreshold: 30,
		ServiceMessage:        "Time to clean the filter and check for debris",
	},
	"washing machine": {
		StartWatts:            500,
		StopWatts:             50,
		DeadZoneWatts:         25,
		ServiceEnabled:        true,
		ServiceCycleThreshold: 30,
		ServiceMessage:        "Time to clean the filter and check for debris",
	},
	"dryer": {
		StartWatts:            3000,
		StopWatts:             100,
		DeadZoneWatts:         50,
		ServiceEnabled:        true,
		ServiceCycleThreshold: 2,
		ServiceMessage:        "Time to clean the lint trap",
	},
	"refrigerator": {
		StartWatts:            150,
		StopWatts:             50,
		DeadZoneWatts:         25,
		ServiceEnabled:        true,
		ServiceCycleThreshold: 90,
		ServiceMessage:        "Time to clean the coils and check seals",
	},
	"freezer": {
		StartWatts:            150,
		StopWatts:             50,
		DeadZoneWatts:         25,
		ServiceEnabled:        true,
		ServiceCycleThreshold: 90,
		ServiceMessage:        "Time to defrost and clean",
	},
	"oven": {
		StartWatts:            2400,
		StopWatts:             100,
		DeadZoneWatts:         50,
		ServiceEnabled:        true,
		ServiceCycleThreshold: 20,
		ServiceMessage:        "Time to clean the oven",
	},
	"microwave": {
		StartWatts:            1000,
		StopWatts:             50,
		DeadZoneWatts:         25,
		ServiceEnabled:        true,
		ServiceCycleThreshold: 50,
		ServiceMessage:        "Time to clean the microwave",
	},
	"air conditioner": {
		StartWatts:            1500,
		StopWatts:             100,
		DeadZoneWatts:         50,
		ServiceEnabled:        true,
		ServiceCycleThreshold: 90,
		ServiceMessage:        "Time to clean the filter and check refrigerant",
	},
	"heater": {
		StartWatts:            1500,
		StopWatts:             100,
		DeadZoneWatts:         50,
		ServiceEnabled:        true,
		ServiceCycleThreshold: 90,
		ServiceMessage:        "Time to clean the filter and check for debris",
	},
	"heat pump": {
		StartWatts:            1500,
		StopWatts:             100,
		DeadZoneWatts:         50,
		ServiceEnabled:        true,
		ServiceCycleThreshold: 90,
		ServiceMessage:        "Time to clean the filter and check refrigerant",
	},
	"water heater": {
		StartWatts:            4500,
		StopWatts:             100,
		DeadZoneWatts:         50,
		ServiceEnabled:        true,
		ServiceCycleThreshold: 180,
		ServiceMessage:        "Time to flush the tank and check anode rod",
	},
}

// Profile returns the named profile with timing defaults filled in,
// or false if the name is unknown.
func Profile(name string) (Config, bool) {
	cfg, ok := profiles[name]
	if !ok {
		return Config{}, false
	}

	cfg.StartDebounce = DefaultStartDebounce
	cfg.EndDebounce = DefaultEndDebounce
	cfg.StaleAfter = DefaultStaleAfter

	return cfg, true
}

// ProfileNames lists the known profile names.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}

	return names
}
