package manifest

import (
	"github.com/git-pkgs/spdx"
)

// ValidateLicense reports whether expr parses as a valid SPDX license
// expression. It never rewrites or normalizes the expression: the
// manifest's license field is informational metadata, so a parse failure
// is surfaced to the caller as a warning candidate, never as a hard
// install error.
func ValidateLicense(expr string) error {
	_, err := spdx.Parse(expr)
	return err
}
