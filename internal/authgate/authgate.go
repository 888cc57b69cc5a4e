// Package authgate implements the trusted-gateway identity check: a fixed
// shared-secret header plus UUID validation of the caller-supplied
// user_id/project_id pair. There is no end-user authentication here; that
// is the front-end's job. This is the boundary check against a trusted
// internal caller.
package authgate

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// HeaderName is the fixed header the trusted gateway must set.
const HeaderName = "X-Internal-Secret"

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ErrUnauthorized is returned when the shared secret is missing or wrong.
var ErrUnauthorized = errors.New("unauthorized")

// Gate holds the process-scoped shared secret.
type Gate struct {
	secret string
}

// New builds a Gate. An empty secret means the gate can never open; a
// missing server secret must fail closed rather than open.
func New(secret string) *Gate {
	return &Gate{secret: strings.TrimSpace(secret)}
}

// Check verifies the request carries the correct shared secret.
func (g *Gate) Check(r *http.Request) error {
	if g.secret == "" {
		return ErrUnauthorized
	}
	got := r.Header.Get(HeaderName)
	if got == "" || got != g.secret {
		return ErrUnauthorized
	}
	return nil
}

// ValidateUUID checks that v is a canonical 8-4-4-4-12 hex UUID, returning
// the fixed error message format callers rely on for request validation
// responses.
func ValidateUUID(field, v string) error {
	v = strings.TrimSpace(v)
	if !uuidPattern.MatchString(v) {
		return fmt.Errorf("Invalid %s: must be UUID format", field)
	}
	return nil
}

// ParsedUUID returns the canonicalized (lowercase) form, assuming the value
// already passed ValidateUUID.
func ParsedUUID(v string) string {
	id, err := uuid.Parse(strings.TrimSpace(v))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return id.String()
}
