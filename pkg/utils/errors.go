package utils

import "fmt"

// Wrap prefixes err with message context while preserving the original
// error for errors.Is/As. A nil err returns nil, so call sites can wrap
// unconditionally.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
