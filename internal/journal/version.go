package journal

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// CheckVersion reports whether a journal written by engine version written
// can be resumed by engine version current. Versions are compatible when
// their major versions match and written is not newer than current.
func CheckVersion(written, current string) error {
	w, err := semver.NewVersion(written)
	if err != nil {
		return fmt.Errorf("journal engine version %q: %w", written, err)
	}
	c, err := semver.NewVersion(current)
	if err != nil {
		return fmt.Errorf("engine version %q: %w", current, err)
	}
	if w.Major() != c.Major() {
		return fmt.Errorf("journal written by engine %s cannot be resumed by engine %s: major version differs", w, c)
	}
	if w.GreaterThan(c) {
		return fmt.Errorf("journal written by newer engine %s than %s", w, c)
	}
	return nil
}
