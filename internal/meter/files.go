package meter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// Restorer repopulates an empty data directory, e.g. from a backup.
type Restorer interface {
	Restore(ctx context.Context, dir string) (int, error)
}

// Files persists meter outputs. Daily snapshots go to DailyDir, everything
// else to MainDir, which is also the data endpoint's base directory.
type Files struct {
	MainDir  string
	DailyDir string
}

// Prepare makes sure both directories exist. A missing MainDir is restored
// through restorer when one is given.
func (f Files) Prepare(ctx context.Context, restorer Restorer, logger *log.Logger) error {
	if _, err := os.Stat(f.MainDir); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(f.MainDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		if restorer != nil {
			n, err := restorer.Restore(ctx, f.MainDir)
			if err != nil {
				return fmt.Errorf("restore data dir: %w", err)
			}
			logger.Info("restored data dir", "dir", f.MainDir, "files", n)
		} else {
			logger.Info("created data dir", "dir", f.MainDir)
		}
	} else if err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}

	if err := os.MkdirAll(f.DailyDir, 0o755); err != nil {
		return fmt.Errorf("create daily dir: %w", err)
	}
	return nil
}

// Load restores the meter from the main data set, or starts a new one when
// none was written yet.
func (f Files) Load(now time.Time, logger *log.Logger) (*Meter, error) {
	data, err := os.ReadFile(f.path(KindMain, MainSet))
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("no previous data file found, starting empty data set")
		return New(now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	m, err := Restore(data)
	if err != nil {
		return nil, err
	}
	logger.Info("using data from file", "timestamp", *m.state.Timestamp)
	return m, nil
}

// Write encodes out and replaces its file atomically so readers never see
// a partial document. It returns the path and the encoded bytes.
func (f Files) Write(out Output) (string, []byte, error) {
	data, err := json.Marshal(out.Value)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", out.Name, err)
	}
	path := f.path(out.Kind, out.Name)
	if err := writeFileAtomic(path, data); err != nil {
		return "", nil, err
	}
	return path, data, nil
}

func (f Files) path(kind Kind, name string) string {
	dir := f.MainDir
	if kind == KindDaily {
		dir = f.DailyDir
	}
	return filepath.Join(dir, name+".json")
}

func writeFileAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
