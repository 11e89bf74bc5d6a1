package gsk

import (
	"fmt"
	"os"
	"strings"
)

// envMainLoopType is the environment variable used to pin a reactor's
// backend, overriding autoconf.
const envMainLoopType = "GSK_MAIN_LOOP_TYPE"

// backendFactory constructs one named backend. Only entries that exist for
// the current build's GOOS are present in backendFactories.
type backendFactory = func() (Backend, error)

// chooseBackend builds the Backend for a reactor: an explicit name (from
// WithBackend or, failing that, GSK_MAIN_LOOP_TYPE) is tried first; an
// unsupported or failing name logs a warning and falls through to the
// platform's autoconf-ordered list, rather than failing the reactor's
// construction outright. Only when every candidate in that list also fails
// does New return ErrConfigInvalidBackend.
func chooseBackend(explicit string) (Backend, error) {
	name := strings.TrimSpace(explicit)
	if name == "" {
		name = strings.TrimSpace(os.Getenv(envMainLoopType))
	}

	if name != "" {
		if factory, ok := backendFactories[name]; ok {
			b, err := factory()
			if err == nil {
				return b, nil
			}
			SError("backend", "named backend failed to initialize, falling back to autoconf", err, map[string]interface{}{
				"backend": name,
			})
		} else {
			SWarn("backend", "unsupported backend name, falling back to autoconf", map[string]interface{}{
				"backend": name,
			})
		}
	}

	var lastErr error
	for _, candidate := range autoconfOrder {
		factory, ok := backendFactories[candidate]
		if !ok {
			continue
		}
		b, err := factory()
		if err == nil {
			return b, nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalidBackend, lastErr)
	}
	return nil, ErrConfigInvalidBackend
}
