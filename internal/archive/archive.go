// Package archive keeps copies of the data files outside the (usually
// volatile) data directory and restores them after a reboot.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("archive object not found")

// Store saves data files under a key and restores the top-level ones into a
// directory. Keys are slash separated, e.g. "data_1_5.json" or
// "daily/data_2024_01_15.json".
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Restore(ctx context.Context, dir string) (int, error)
}

// Key returns the archive key for a data set file.
func Key(name string, daily bool) string {
	if daily {
		return "daily/" + name + ".json"
	}
	return name + ".json"
}

// Multi fans saves out to every store and restores from the first store
// that has anything.
type Multi []Store

func (m Multi) Save(ctx context.Context, key string, data []byte) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, key, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Restore(ctx context.Context, dir string) (int, error) {
	var errs []error
	for _, s := range m {
		n, err := s.Restore(ctx, dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n > 0 {
			return n, nil
		}
	}
	return 0, errors.Join(errs...)
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid archive key %q", key)
	}
	return nil
}
