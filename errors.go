package kittiscale

import (
	"errors"
	"fmt"
)

// Annotation validation errors. Every annotation line that fails validation is reported with one
// of these, wrapped in a *LineError.
var (
	ErrInvalidClassName      = errors.New("missing class name")
	ErrAmbiguousClassName    = errors.New("invalid class name")
	ErrMalformedBox          = errors.New("expected 14 numeric fields")
	ErrLeadingFieldsNonZero  = errors.New("only bounding boxes are permitted (leading fields)")
	ErrDegenerateBox         = errors.New("invalid bounding box")
	ErrTrailingFieldsNonZero = errors.New("only bounding boxes are permitted (trailing fields)")
)

// ErrDivisionByZero is returned when scaling against an image with a non-positive dimension.
var ErrDivisionByZero = errors.New("source image dimensions must be positive")

// Dataset layout errors.
var (
	ErrNoSuchPath     = errors.New("path does not exist")
	ErrNotADirectory  = errors.New("path is not a directory")
	ErrLayout         = errors.New("directory structure does not follow the KITTI layout")
	ErrEmptyFolder    = errors.New("data unavailable")
	ErrFileExtension  = errors.New("wrong file extension")
	ErrUnmatchedFiles = errors.New("no one-to-one match between image and annotation names")
)

// LineError reports an invalid line in an annotation file.
type LineError struct {
	Path string // May be empty if the annotations were not read from a file.
	Line int    // 1-based.
	Text string
	Err  error
}

func (e *LineError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("%s:%d %q: %v", e.Path, e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is caused by an invalid annotation file, as opposed to an
// I/O or image decoding failure.
func IsValidationError(err error) bool {
	for _, target := range []error{ErrInvalidClassName, ErrAmbiguousClassName, ErrMalformedBox,
		ErrLeadingFieldsNonZero, ErrDegenerateBox, ErrTrailingFieldsNonZero, ErrDivisionByZero} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
