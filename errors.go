package sheetsync

import "errors"

var (
	ErrMissingConfig    = errors.New("missing required configuration")
	ErrIDColumnMissing  = errors.New("id column not present in header")
	ErrFilteredDelete   = errors.New("delete tracking requires a complete, unfiltered source")
	ErrFetchAborted     = errors.New("fetch aborted")
	ErrPartialFetch     = errors.New("fetch stopped early")
	ErrPartiallyApplied = errors.New("plan partially applied")
	ErrMalformedPage    = errors.New("malformed page")
)
