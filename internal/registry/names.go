package registry

import (
	"fmt"
	"regexp"

	"github.com/mkb23/overcode/internal/overerr"
)

var validNameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateName rejects empty, >64 char, shell-metacharacter-bearing, or
// path-traversal-bearing names. Only `[A-Za-z0-9._-]+` passes.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", overerr.ErrInvalidInput)
	}
	if len(name) > 64 {
		return fmt.Errorf("%w: name %q exceeds 64 characters", overerr.ErrInvalidInput, name)
	}
	if !validNameRe.MatchString(name) {
		return fmt.Errorf("%w: name %q contains disallowed characters", overerr.ErrInvalidInput, name)
	}
	return nil
}
