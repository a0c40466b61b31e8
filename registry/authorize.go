package registry

import (
	"fmt"
	"strings"

	"github.com/ruteri/certificate-registry/interfaces"
)

// Authorize succeeds if caller holds any of the required roles in state.
// It has no side effects and reads nothing but its arguments.
func Authorize(caller interfaces.Identity, required []interfaces.Role, state interfaces.State) error {
	for _, role := range required {
		if state.HasRole(caller, role) {
			return nil
		}
	}

	names := make([]string, 0, len(required))
	for _, role := range required {
		names = append(names, role.String())
	}
	return fmt.Errorf("%w: %s is not %s", interfaces.ErrUnauthorized, caller, strings.Join(names, " or "))
}
