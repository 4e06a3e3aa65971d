package catalog

import (
	"fmt"
	"strings"
	"time"
)

// StateMetadata describes one stored DataTableState snapshot
type StateMetadata struct {
	Identifier  StateIdentifier `json:"identifier"`
	Compression string          `json:"compression"`
	SizeBytes   int64           `json:"size_bytes"`
	Entries     int             `json:"entries"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// StateIdentifier uniquely identifies a snapshot
type StateIdentifier struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// ParseStateIdentifier parses a snapshot identifier string
// Supports formats: name, namespace.name
func ParseStateIdentifier(identifier string, defaultNamespace string) StateIdentifier {
	parts := strings.SplitN(identifier, ".", 2)
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return StateIdentifier{Namespace: parts[0], Name: parts[1]}
	}
	return StateIdentifier{Namespace: defaultNamespace, Name: identifier}
}

// String returns the fully qualified snapshot name
func (si StateIdentifier) String() string {
	return fmt.Sprintf("%s.%s", si.Namespace, si.Name)
}

// Validate rejects identifiers that cannot name a file
func (si StateIdentifier) Validate() error {
	for _, part := range []string{si.Namespace, si.Name} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, si.String())
		}
	}
	return nil
}

// Errors
var (
	ErrStateNotFound      = fmt.Errorf("state not found")
	ErrInvalidIdentifier  = fmt.Errorf("invalid state identifier")
	ErrStoreClosed        = fmt.Errorf("state store is closed")
	ErrUnknownStoreType   = fmt.Errorf("unknown state store type")
	ErrMissingStoreConfig = fmt.Errorf("missing state store configuration")
)
