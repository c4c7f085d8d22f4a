package descriptor

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileName is the descriptor file inside each driver directory.
const FileName = "driver.compose.json"

// AssetsDir is the per-driver directory holding icons.
const AssetsDir = "assets"

var (
	// ErrNotFound is returned when a driver has no descriptor file.
	ErrNotFound = errors.New("descriptor not found")
	// ErrMalformed is returned when a descriptor file is not valid JSON or
	// does not have the descriptor shape.
	ErrMalformed = errors.New("malformed descriptor")
)

// Repository reads and writes descriptors below a drivers root directory,
// one driver per subdirectory.
type Repository struct {
	root   string
	logger *slog.Logger
}

// NewRepository returns a repository rooted at root.
func NewRepository(root string, logger *slog.Logger) *Repository {
	return &Repository{root: root, logger: logger.With("component", "descriptor")}
}

// Root returns the drivers directory.
func (r *Repository) Root() string { return r.root }

// Dir returns the directory of a driver.
func (r *Repository) Dir(driver string) string {
	return filepath.Join(r.root, driver)
}

// Path returns the descriptor path of a driver.
func (r *Repository) Path(driver string) string {
	return filepath.Join(r.root, driver, FileName)
}

// Scan lists driver directories one level deep, sorted by name. Hidden
// directories and plain files are skipped.
func (r *Repository) Scan() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("scan drivers dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	r.logger.Debug("scanned drivers", "dir", r.root, "count", len(names))
	return names, nil
}

// Exists reports whether the driver directory exists.
func (r *Repository) Exists(driver string) bool {
	info, err := os.Stat(r.Dir(driver))
	return err == nil && info.IsDir()
}

// Read loads the descriptor of a driver.
func (r *Repository) Read(driver string) (*Record, error) {
	data, err := os.ReadFile(r.Path(driver))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", driver, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", driver, err)
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", driver, ErrMalformed, err)
	}
	return rec, nil
}

// Write stores the descriptor of an existing driver directory. The file is
// written to a temporary sibling and renamed into place.
func (r *Repository) Write(driver string, rec *Record) error {
	data, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", driver, err)
	}
	path := r.Path(driver)
	tmp, err := os.CreateTemp(r.Dir(driver), "."+FileName+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", driver, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", driver, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", driver, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", driver, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", driver, err)
	}
	r.logger.Debug("descriptor written", "driver", driver, "bytes", len(data))
	return nil
}

// Create makes the driver directory with its assets directory and writes
// the descriptor. It fails if a descriptor already exists.
func (r *Repository) Create(driver string, rec *Record) error {
	if err := os.MkdirAll(filepath.Join(r.Dir(driver), AssetsDir), 0755); err != nil {
		return fmt.Errorf("create %s: %w", driver, err)
	}
	if _, err := os.Stat(r.Path(driver)); err == nil {
		return fmt.Errorf("create %s: %w", driver, fs.ErrExist)
	}
	return r.Write(driver, rec)
}
