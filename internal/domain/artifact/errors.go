package artifact

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Every error returned by Load matches ErrArtifactLoad;
// the narrower kinds say why.
var (
	ErrArtifactLoad   = errors.New("artifact load failed")
	ErrCorrupt        = errors.New("artifact unreadable")
	ErrInvalid        = errors.New("artifact invalid")
	ErrSchemaMismatch = errors.New("artifact schema mismatch")
)

// Artifact names used in LoadError.
const (
	NameFeatures = "features"
	NameEncoder  = "encoder"
	NameScaler   = "scaler"
	NameModel    = "model"
	NameBundle   = "bundle"
)

// LoadError reports which artifact failed to load and why.
type LoadError struct {
	Artifact string
	Path     string
	Err      error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load %s artifact: %v", e.Artifact, e.Err)
	}
	return fmt.Sprintf("load %s artifact %q: %v", e.Artifact, e.Path, e.Err)
}

// Unwrap exposes both ErrArtifactLoad and the underlying cause.
func (e *LoadError) Unwrap() []error {
	return []error{ErrArtifactLoad, e.Err}
}

func loadErr(artifact, path string, kind error, format string, args ...any) error {
	return &LoadError{
		Artifact: artifact,
		Path:     path,
		Err:      fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...)),
	}
}
