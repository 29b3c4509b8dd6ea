// Package manifest handles paltry.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file.
const FileName = "paltry.toml"

// Manifest represents a paltry.toml configuration.
type Manifest struct {
	Session SessionConfig `toml:"session"`
	Log     LogConfig     `toml:"log"`
	Server  ServerConfig  `toml:"server"`

	// Dir is the directory containing the paltry.toml file (set at load time).
	Dir string `toml:"-"`
}

// SessionConfig configures the JIT session.
type SessionConfig struct {
	ShowIR  bool     `toml:"show-ir"`
	Prelude []string `toml:"prelude"`
	Journal string   `toml:"journal"` // SQLite evaluation journal, empty = off
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// ServerConfig configures the eval server listeners.
type ServerConfig struct {
	Addr     string `toml:"addr"`
	GRPCAddr string `toml:"grpc-addr"`
}

// Default returns the configuration used when no paltry.toml exists.
func Default() *Manifest {
	return &Manifest{
		Server: ServerConfig{Addr: ":4567"},
	}
}

// Load parses a paltry.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a paltry.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// PreludePaths returns absolute paths for the configured prelude files.
func (m *Manifest) PreludePaths() []string {
	var paths []string
	for _, p := range m.Session.Prelude {
		paths = append(paths, m.resolve(p))
	}
	return paths
}

// JournalPath returns the journal database path, or "" when journaling is
// off.
func (m *Manifest) JournalPath() string {
	return m.resolve(m.Session.Journal)
}

// LogPath returns the log file path, or nil to log to stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.resolve(m.Log.File)
	return &path
}

// resolve makes a configured path relative to the manifest directory.
func (m *Manifest) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.Dir, path)
}
