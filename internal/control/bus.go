// Package control is the operator command bus: pause, reset and mode change
// requests that the supervisor polls.
package control

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/your-org/trigger-trader/internal/event"
)

// Bus is polled by the supervisor. The consumer clears a mode request once
// it has read it and a reset once it has been carried out, so a repeated
// request is seen again.
type Bus interface {
	Paused() (bool, error)
	ModeRequest() (event.Mode, bool, error)
	ClearModeRequest() error
	ResetRequested() (bool, error)
	ClearReset() error
}

// Writer is the operator side of the bus.
type Writer interface {
	SetPaused(paused bool) error
	RequestMode(m event.Mode) error
	RequestReset() error
}

const (
	pauseFile = "pause.flag"
	modeFile  = "mode.request"
	resetFile = "reset.request"
)

// FileBus keeps each request as a file in a runtime directory.
type FileBus struct {
	dir string
}

// NewFileBus creates the directory if needed.
func NewFileBus(dir string) (*FileBus, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create runtime dir: %w", err)
	}
	return &FileBus{dir: dir}, nil
}

// Dir returns the runtime directory.
func (b *FileBus) Dir() string {
	return b.dir
}

func (b *FileBus) path(name string) string {
	return filepath.Join(b.dir, name)
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Paused reports whether the pause flag is present.
func (b *FileBus) Paused() (bool, error) {
	return exists(b.path(pauseFile))
}

// ModeRequest returns the requested mode. Unknown or partially written
// content is ignored until the next poll.
func (b *FileBus) ModeRequest() (event.Mode, bool, error) {
	data, err := os.ReadFile(b.path(modeFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	m, ok := event.ParseMode(string(data))
	return m, ok, nil
}

// ClearModeRequest consumes the pending mode request.
func (b *FileBus) ClearModeRequest() error {
	return removeIfExists(b.path(modeFile))
}

// ResetRequested reports whether a reset is pending.
func (b *FileBus) ResetRequested() (bool, error) {
	return exists(b.path(resetFile))
}

// ClearReset marks the pending reset as done.
func (b *FileBus) ClearReset() error {
	return removeIfExists(b.path(resetFile))
}

// SetPaused creates or removes the pause flag.
func (b *FileBus) SetPaused(paused bool) error {
	if !paused {
		return removeIfExists(b.path(pauseFile))
	}
	return os.WriteFile(b.path(pauseFile), []byte("paused"), 0o644)
}

// RequestMode writes a mode change request.
func (b *FileBus) RequestMode(m event.Mode) error {
	return os.WriteFile(b.path(modeFile), []byte(string(m)), 0o644)
}

// RequestReset asks for a flatten and reset.
func (b *FileBus) RequestReset() error {
	return os.WriteFile(b.path(resetFile), []byte("reset"), 0o644)
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
