package analyzer

import (
	"fmt"

	"github.com/aaronromeo/mailpulse/internal/analytics"
	"github.com/pkg/errors"
)

// ErrRetrieval is matched by every failure to obtain messages for a period.
var ErrRetrieval = errors.New("message retrieval failed")

// RetrievalError wraps a MessageSource failure for one folder.
type RetrievalError struct {
	Folder analytics.Folder
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("%s: %s folder: %v", ErrRetrieval, e.Folder, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrRetrieval.
func (e *RetrievalError) Is(target error) bool {
	return target == ErrRetrieval
}
