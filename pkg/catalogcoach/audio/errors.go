package audio

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidAudio      = errors.New("invalid audio data")
	ErrInvalidFormat     = errors.New("invalid target format")
	ErrConversionFailed  = errors.New("audio conversion failed")
)
