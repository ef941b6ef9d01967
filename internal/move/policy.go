package move

import (
	"fmt"
	"strings"

	"github.com/franz/music-shelver/internal/util"
)

// Policy decides what happens when a destination is already occupied
type Policy string

const (
	// PolicyAbort refuses to proceed
	PolicyAbort Policy = "abort"
	// PolicySkip leaves the file where it is
	PolicySkip Policy = "skip"
	// PolicyBackup renames the occupant aside first
	PolicyBackup Policy = "backup"
)

// Policies lists the accepted policy names
var Policies = []Policy{PolicyAbort, PolicySkip, PolicyBackup}

// ParsePolicy parses a policy name; empty selects abort
func ParsePolicy(s string) (Policy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PolicyAbort, nil
	}
	for _, p := range Policies {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown collision policy %q (want abort, skip or backup)", util.ErrValidation, s)
}
