package scaffold

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"homey-driverkit/internal/descriptor"
	"homey-driverkit/internal/zcl"
)

func newTestScaffolder(t *testing.T) *Scaffolder {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := New(zcl.NewStandardRegistry(logger), logger)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestClassName(t *testing.T) {
	ident := regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	tests := []struct {
		in, want string
	}{
		{"plugs-TS011F", "PlugsTS011F"},
		{"sensors-TS0601_motion", "SensorsTS0601Motion"},
		{"2gang_switch", "Driver2gangSwitch"},
		{"---", "Driver"},
		{"", "Driver"},
		{"café-plug", "CafPlug"},
	}
	for _, tt := range tests {
		got := ClassName(tt.in)
		if got != tt.want {
			t.Errorf("ClassName(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if !ident.MatchString(got) {
			t.Errorf("ClassName(%q) = %q is not an identifier", tt.in, got)
		}
	}
}

func TestRenderDevice(t *testing.T) {
	s := newTestScaffolder(t)
	rec := &descriptor.Record{Class: "socket", Capabilities: []string{"onoff", "meter_power", "button"}}
	out, err := s.RenderDevice(s.DriverFor("plugs-TS011F", rec))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"class PlugsTS011FDevice extends ZigBeeDevice",
		"this.registerCapability('onoff', 6); // genOnOff",
		"this.registerCapability('meter_power', 1794); // genMetering",
		"// button: no cluster mapping",
		"module.exports = PlugsTS011FDevice;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("device.js missing %q:\n%s", want, out)
		}
	}
}

func TestRenderIconEscapes(t *testing.T) {
	s := newTestScaffolder(t)
	out, err := s.RenderIcon(Driver{Name: "x-A&B", Class: "light"}, SmallIcon)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "A&amp;B") || !strings.Contains(out, `width="75"`) {
		t.Errorf("icon = %s", out)
	}
	if !strings.Contains(out, "#FFC107") {
		t.Error("light color not used")
	}
}

func TestWriteKeepsExistingFiles(t *testing.T) {
	s := newTestScaffolder(t)
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "device.js"), []byte("// hand written\n"), 0644)

	d := s.DriverFor("switches-TS0001", &descriptor.Record{Class: "switch", Capabilities: []string{"onoff"}})
	created, err := s.Write(dir, d)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 3 {
		t.Errorf("created = %v, want driver.js and two icons", created)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "device.js"))
	if string(data) != "// hand written\n" {
		t.Error("existing device.js overwritten")
	}
	if _, err := os.Stat(filepath.Join(dir, descriptor.AssetsDir, "large.svg")); err != nil {
		t.Error("large icon missing")
	}

	again, err := s.Write(dir, d)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("second write created %v", again)
	}
}
