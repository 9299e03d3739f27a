package room

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.daarion.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".daarion")
}

// Dir returns the room-specific directory.
func Dir(slug string) string {
	return filepath.Join(BaseDir(), "rooms", slug)
}

// LockPath returns the lock file path for a room.
func LockPath(slug string) string {
	return filepath.Join(Dir(slug), "LOCK")
}

// LogDir returns the log directory for a room.
func LogDir(slug string) string {
	return filepath.Join(Dir(slug), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(slug string) string {
	return filepath.Join(LogDir(slug), "roomsyncd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the room directory tree with proper permissions.
func EnsureDir(slug string) error {
	dirs := []string{
		Dir(slug),
		LogDir(slug),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
