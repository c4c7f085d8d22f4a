// Package scaffold generates the driver.js, device.js and placeholder icon
// files that accompany a driver descriptor.
package scaffold

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"

	"homey-driverkit/internal/descriptor"
	"homey-driverkit/internal/zcl"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// capabilityClusters maps a Homey capability to the cluster that serves it.
var capabilityClusters = map[string]string{
	"onoff":                 "genOnOff",
	"dim":                   "genLevelCtrl",
	"measure_power":         "genElectricalMeasurement",
	"measure_voltage":       "genElectricalMeasurement",
	"measure_current":       "genElectricalMeasurement",
	"meter_power":           "genMetering",
	"measure_temperature":   "genTemperatureMeasurement",
	"measure_humidity":      "genHumidityMeasurement",
	"measure_luminance":     "genIlluminanceMeasurement",
	"measure_pressure":      "genPressureMeasurement",
	"measure_co2":           "msCO2",
	"measure_pm25":          "pm25Measurement",
	"measure_presence":      "genOccupancySensing",
	"alarm_motion":          "genOccupancySensing",
	"alarm_contact":         "ssIasZone",
	"alarm_water":           "ssIasZone",
	"alarm_smoke":           "ssIasZone",
	"alarm_gas":             "ssIasZone",
	"alarm_vibration":       "ssIasZone",
	"alarm_tamper":          "ssIasZone",
	"measure_battery":       "genPowerCfg",
	"alarm_battery":         "genPowerCfg",
	"light_hue":             "genColorCtrl",
	"light_saturation":      "genColorCtrl",
	"light_temperature":     "genColorCtrl",
	"light_mode":            "genColorCtrl",
	"target_temperature":    "genThermostat",
	"thermostat_mode":       "genThermostat",
	"windowcoverings_state": "genWindowCovering",
	"windowcoverings_set":   "genWindowCovering",
	"locked":                "genDoorLock",
	"lock":                  "genDoorLock",
	"fan_speed":             "genFanControl",
}

// iconColors picks an icon background per device class.
var iconColors = map[string]string{
	"socket":     "#4CAF50",
	"switch":     "#2196F3",
	"sensor":     "#9C27B0",
	"light":      "#FFC107",
	"thermostat": "#FF5722",
	"cover":      "#795548",
	"lock":       "#607D8B",
	"fan":        "#00BCD4",
	"climate":    "#03A9F4",
	"remote":     "#3F51B5",
}

const defaultIconColor = "#9E9E9E"

// Icon sizes written to assets/.
const (
	SmallIcon = 75
	LargeIcon = 500
)

// Binding is one registerCapability line of device.js.
type Binding struct {
	Capability string
	Cluster    string
	ClusterID  uint16
	Known      bool
}

// Driver is the data rendered into the driver files.
type Driver struct {
	Name         string // directory name, e.g. "plugs-TS011F"
	ClassName    string
	Class        string
	Capabilities []string
	Bindings     []Binding
}

type iconData struct {
	Size  int
	Color string
	Glyph string
	Label string
}

// Scaffolder renders and writes driver files. It is safe for concurrent use.
type Scaffolder struct {
	registry *zcl.Registry
	tmpl     *template.Template
	logger   *slog.Logger
}

// New parses the embedded templates.
func New(registry *zcl.Registry, logger *slog.Logger) (*Scaffolder, error) {
	tmpl, err := template.New("scaffold").
		Funcs(template.FuncMap{"xml": html.EscapeString}).
		ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Scaffolder{
		registry: registry,
		tmpl:     tmpl,
		logger:   logger.With("component", "scaffold"),
	}, nil
}

// DriverFor builds the render data of a driver from its descriptor.
func (s *Scaffolder) DriverFor(name string, rec *descriptor.Record) Driver {
	d := Driver{
		Name:         name,
		ClassName:    ClassName(name),
		Class:        rec.Class,
		Capabilities: append([]string(nil), rec.Capabilities...),
	}
	for _, c := range rec.Capabilities {
		b := Binding{Capability: c, Cluster: capabilityClusters[c]}
		if b.Cluster != "" {
			b.ClusterID, b.Known = s.registry.Resolve(b.Cluster)
		}
		d.Bindings = append(d.Bindings, b)
	}
	return d
}

// RenderDevice returns the device.js source of d.
func (s *Scaffolder) RenderDevice(d Driver) (string, error) {
	return s.render("device.js.tmpl", d)
}

// RenderDriver returns the driver.js source of d.
func (s *Scaffolder) RenderDriver(d Driver) (string, error) {
	return s.render("driver.js.tmpl", d)
}

// RenderIcon returns a size x size placeholder SVG for d.
func (s *Scaffolder) RenderIcon(d Driver, size int) (string, error) {
	color, ok := iconColors[d.Class]
	if !ok {
		color = defaultIconColor
	}
	glyph := "?"
	if d.Class != "" {
		glyph = strings.ToUpper(d.Class[:1])
	}
	label := d.Name
	if _, product, ok := strings.Cut(d.Name, "-"); ok && product != "" {
		label = product
	}
	return s.render("icon.svg.tmpl", iconData{Size: size, Color: color, Glyph: glyph, Label: label})
}

func (s *Scaffolder) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Write creates device.js, driver.js and the two icons inside dir. Files
// that already exist are left alone. It returns the paths it created,
// relative to dir.
func (s *Scaffolder) Write(dir string, d Driver) ([]string, error) {
	device, err := s.RenderDevice(d)
	if err != nil {
		return nil, err
	}
	driver, err := s.RenderDriver(d)
	if err != nil {
		return nil, err
	}
	small, err := s.RenderIcon(d, SmallIcon)
	if err != nil {
		return nil, err
	}
	large, err := s.RenderIcon(d, LargeIcon)
	if err != nil {
		return nil, err
	}
	files := []struct {
		path    string
		content string
	}{
		{"device.js", device},
		{"driver.js", driver},
		{filepath.Join(descriptor.AssetsDir, "small.svg"), small},
		{filepath.Join(descriptor.AssetsDir, "large.svg"), large},
	}

	if err := os.MkdirAll(filepath.Join(dir, descriptor.AssetsDir), 0755); err != nil {
		return nil, fmt.Errorf("scaffold %s: %w", d.Name, err)
	}
	var created []string
	for _, f := range files {
		ok, err := writeNew(filepath.Join(dir, f.path), f.content)
		if err != nil {
			return created, fmt.Errorf("scaffold %s: %w", d.Name, err)
		}
		if ok {
			created = append(created, f.path)
		}
	}
	if len(created) > 0 {
		s.logger.Info("driver scaffolded", "driver", d.Name, "files", created)
	}
	return created, nil
}

// writeNew writes content to path unless the file exists.
func writeNew(path, content string) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return false, err
	}
	return true, f.Close()
}

// ClassName turns a driver directory name into a JavaScript identifier:
// "plugs-TS011F" -> "PlugsTS011F", "2gang_switch" -> "Driver2gangSwitch".
func ClassName(name string) string {
	var b strings.Builder
	upper := true
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) || r > unicode.MaxASCII {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" || unicode.IsDigit(rune(out[0])) {
		out = "Driver" + out
	}
	return out
}
