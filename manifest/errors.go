package manifest

import "errors"

// Manifest errors
var (
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
	ErrUnknownKind       = errors.New("unknown module kind")
	ErrEmptyManifest     = errors.New("manifest declares no modules")
	ErrInvalidParam      = errors.New("invalid module parameter")
)
