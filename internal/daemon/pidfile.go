// Package daemon tracks a running `civic serve` through a state file.
package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Info describes a running server.
type Info struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	Store     string    `json:"store"` // driver and location, e.g. "sqlite:/path/civic.db"
	StartedAt time.Time `json:"started_at"`
}

// Addr returns the local URL the server listens on.
func (i Info) Addr() string { return fmt.Sprintf("http://localhost:%d", i.Port) }

// PIDFile manages the state file of the server process.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write records the current process listening on port.
func (p *PIDFile) Write(port int, store string) error {
	return p.WriteInfo(Info{PID: os.Getpid(), Port: port, Store: store, StartedAt: time.Now().UTC()})
}

// WriteInfo writes info to the file, creating its directory.
func (p *PIDFile) WriteInfo(info Info) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create PID file directory: %w", err)
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(p.Path, append(data, '\n'), 0o644)
}

// ReadInfo reads the recorded server state.
func (p *PIDFile) ReadInfo() (Info, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("invalid PID file content: %w", err)
	}
	if info.PID <= 0 {
		return Info{}, fmt.Errorf("invalid PID file content: pid %d", info.PID)
	}
	return info, nil
}

// Read returns the recorded PID.
func (p *PIDFile) Read() (int, error) {
	info, err := p.ReadInfo()
	if err != nil {
		return 0, err
	}
	return info.PID, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}
