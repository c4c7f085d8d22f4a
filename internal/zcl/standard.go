package zcl

// Standard lists the clusters referenced by Homey/Tuya driver descriptors.
// Keys follow the names used in driver.compose.json files; aliases cover
// the zigbee-herdsman spellings seen in older descriptors.
var Standard = []ClusterDef{
	// General (0x0000–0x00FF)
	{ID: 0x0000, Name: "Basic", Key: "genBasic", Aliases: []string{"basic"}},
	{ID: 0x0001, Name: "Power Configuration", Key: "genPowerCfg", Aliases: []string{"powerConfiguration"}},
	{ID: 0x0002, Name: "Device Temperature Configuration", Key: "genDeviceTempCfg"},
	{ID: 0x0003, Name: "Identify", Key: "genIdentify", Aliases: []string{"identify"}},
	{ID: 0x0004, Name: "Groups", Key: "genGroups", Aliases: []string{"groups"}},
	{ID: 0x0005, Name: "Scenes", Key: "genScenes", Aliases: []string{"scenes"}},
	{ID: 0x0006, Name: "On/Off", Key: "genOnOff", Aliases: []string{"onOff"}},
	{ID: 0x0007, Name: "On/Off Switch Configuration", Key: "genOnOffSwitchCfg"},
	{ID: 0x0008, Name: "Level Control", Key: "genLevelCtrl", Aliases: []string{"levelControl"}},
	{ID: 0x0009, Name: "Alarms", Key: "genAlarms", Aliases: []string{"alarms"}},
	{ID: 0x000A, Name: "Time", Key: "genTime", Aliases: []string{"time"}},
	{ID: 0x000C, Name: "Analog Input", Key: "genAnalogInput"},
	{ID: 0x000F, Name: "Binary Input", Key: "genBinaryInput"},
	{ID: 0x0012, Name: "Multistate Input", Key: "genMultistateInput"},
	{ID: 0x0019, Name: "OTA Upgrade", Key: "genOta", Aliases: []string{"ota"}},
	{ID: 0x0020, Name: "Poll Control", Key: "genPollCtrl", Aliases: []string{"pollControl"}},

	// Closures (0x0100–0x01FF)
	{ID: 0x0101, Name: "Door Lock", Key: "genDoorLock", Aliases: []string{"closuresDoorLock", "doorLock"}},
	{ID: 0x0102, Name: "Window Covering", Key: "genWindowCovering", Aliases: []string{"closuresWindowCovering", "windowCovering"}},

	// HVAC (0x0200–0x02FF)
	{ID: 0x0201, Name: "Thermostat", Key: "genThermostat", Aliases: []string{"hvacThermostat", "thermostat"}},
	{ID: 0x0202, Name: "Fan Control", Key: "genFanControl", Aliases: []string{"hvacFanCtrl", "fanControl"}},

	// Lighting (0x0300–0x03FF)
	{ID: 0x0300, Name: "Color Control", Key: "genColorCtrl", Aliases: []string{"lightingColorCtrl", "colorControl"}},

	// Measurement & Sensing (0x0400–0x04FF)
	{ID: 0x0400, Name: "Illuminance Measurement", Key: "genIlluminanceMeasurement", Aliases: []string{"msIlluminanceMeasurement", "illuminanceMeasurement"}},
	{ID: 0x0402, Name: "Temperature Measurement", Key: "genTemperatureMeasurement", Aliases: []string{"msTemperatureMeasurement", "temperatureMeasurement"}},
	{ID: 0x0403, Name: "Pressure Measurement", Key: "genPressureMeasurement", Aliases: []string{"msPressureMeasurement"}},
	{ID: 0x0405, Name: "Relative Humidity", Key: "genHumidityMeasurement", Aliases: []string{"msRelativeHumidity", "relativeHumidity"}},
	{ID: 0x0406, Name: "Occupancy Sensing", Key: "genOccupancySensing", Aliases: []string{"msOccupancySensing", "occupancySensing"}},
	{ID: 0x040D, Name: "Carbon Dioxide", Key: "msCO2"},
	{ID: 0x042A, Name: "PM2.5 Measurement", Key: "pm25Measurement"},

	// Security & Safety (0x0500–0x05FF)
	{ID: 0x0500, Name: "IAS Zone", Key: "ssIasZone", Aliases: []string{"iasZone"}},
	{ID: 0x0501, Name: "IAS ACE", Key: "ssIasAce", Aliases: []string{"iasAce"}},
	{ID: 0x0502, Name: "IAS WD", Key: "ssIasWd", Aliases: []string{"iasWd"}},

	// Smart Energy
	{ID: 0x0702, Name: "Metering", Key: "genMetering", Aliases: []string{"seMetering", "metering"}},

	// Home Automation
	{ID: 0x0B04, Name: "Electrical Measurement", Key: "genElectricalMeasurement", Aliases: []string{"haElectricalMeasurement", "electricalMeasurement"}},
	{ID: 0x0B05, Name: "Diagnostics", Key: "haDiagnostic", Aliases: []string{"diagnostics"}},

	// Manufacturer specific
	{ID: 0xEF00, Name: "Tuya Private", Key: "manuSpecificTuya", Aliases: []string{"tuya"}},
}
