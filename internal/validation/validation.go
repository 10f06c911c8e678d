// Package validation checks identifiers that end up in resource urls and
// settings keys.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// safeNameRegex matches safe name components (alphanumeric, dash, underscore, dot, space)
	safeNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_. -]+$`)
)

// ValidateUUID checks if the string is a valid UUID
func ValidateUUID(id string) error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}
	if !uuidRegex.MatchString(id) {
		return fmt.Errorf("invalid UUID format: %s", id)
	}
	return nil
}

// SettingsKey validates a project settings namespace such as "tk-multi-loader2"
func SettingsKey(key string) error {
	if key == "" {
		return fmt.Errorf("settings key cannot be empty")
	}
	if len(key) > 128 {
		return fmt.Errorf("settings key too long: %d characters", len(key))
	}
	if !safeNameRegex.MatchString(key) || strings.TrimSpace(key) != key {
		return fmt.Errorf("unsafe settings key: %q", key)
	}
	return nil
}

// ResourceDestination validates a resource shelf destination. Empty means
// the default destination. Nested destinations use '/' separators.
func ResourceDestination(dest string) error {
	if dest == "" {
		return nil
	}
	if strings.HasPrefix(dest, "/") {
		return fmt.Errorf("destination must be relative: %s", dest)
	}
	for _, part := range strings.Split(dest, "/") {
		if part == "" {
			return fmt.Errorf("empty destination component: %s", dest)
		}
		if part == "." || part == ".." {
			return fmt.Errorf("path traversal detected: %s", dest)
		}
		if !safeNameRegex.MatchString(part) {
			return fmt.Errorf("unsafe destination component: %q", part)
		}
	}
	return nil
}
