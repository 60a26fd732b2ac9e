package extract

import (
	"errors"
	"fmt"
)

// ErrExtractionFailed is matched by every *ExtractionError
var ErrExtractionFailed = errors.New("tile extraction failed")

// ExtractionError reports the tile that could not be produced. Tiles
// delivered before it stay valid; Produced says how many there were.
type ExtractionError struct {
	Index    int
	Op       string // allocate, read, encode, deliver or yield
	Produced int
	Total    int
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("tile %d: %s failed after %d of %d tiles: %v", e.Index, e.Op, e.Produced, e.Total, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtractionFailed, e.Err}
}
