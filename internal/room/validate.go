package room

import (
	"fmt"
	"regexp"
)

var slugRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateSlug checks that slug conforms to room naming rules.
func ValidateSlug(slug string) error {
	if !slugRegexp.MatchString(slug) {
		return fmt.Errorf("invalid room slug %q: must match ^[a-z0-9_-]{1,64}$", slug)
	}
	return nil
}
