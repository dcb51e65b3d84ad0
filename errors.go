package quantum

import (
	"errors"

	"vimagination.zapto.org/quantum/internal/ids"
	"vimagination.zapto.org/quantum/internal/rewrite"
)

// Errors.
var (
	ErrMissingFullPath    = ids.ErrMissingFullPath
	ErrHashCollision      = ids.ErrHashCollision
	ErrDuplicateID        = ids.ErrDuplicateID
	ErrMalformedStatement = rewrite.ErrMalformedStatement
	ErrUnknownTarget      = rewrite.ErrUnknownTarget
	ErrContainedAPI       = errors.New("a contained API cannot span more than one bundle")
	ErrNoBundles          = errors.New("no bundles")
	ErrInvalidSplit       = errors.New("split must be given as name=entry")
)
