package kittiscale

// KITTI annotation line parsing and validation.

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// NumFields is the number of numeric values following the class name on a KITTI line.
const NumFields = 14

// The bounding box occupies Fields[boxStart:boxEnd]. All other fields must be zero.
const (
	boxStart = 3
	boxEnd   = 7
)

// Box is an axis-aligned bounding box: x_min, y_min, x_max, y_max.
type Box [4]float64

// Annotation is a single validated line of a KITTI annotation file. Only bounding box annotations
// are supported, so every field outside the box is zero.
type Annotation struct {
	Label  string
	Fields [NumFields]float64

	// The numeric fields as they appeared in the source, so that fields which are not rescaled are
	// written back unchanged.
	tokens [NumFields]string
}

// NewAnnotation validates label and fields and returns the corresponding annotation.
func NewAnnotation(label string, fields [NumFields]float64) (Annotation, error) {
	switch {
	case label == "":
		return Annotation{}, ErrInvalidClassName
	case !isAlpha(label):
		return Annotation{}, ErrAmbiguousClassName
	}
	if err := validateFields(&fields); err != nil {
		return Annotation{}, err
	}

	a := Annotation{Label: label, Fields: fields}
	for i, v := range fields {
		a.tokens[i] = formatCoord(v)
	}
	return a, nil
}

// ParseAnnotation parses and validates a single annotation line of the form
// "<class> <f0> <f1> ... <f13>".
//
// Each whitespace-separated token is classified as either the class name (letters only) or a
// numeric field. Numeric fields are taken in order of appearance.
func ParseAnnotation(line string) (Annotation, error) {
	a := Annotation{}

	var labels, numFields int
	mixed, malformed := false, false
	for _, tok := range strings.Fields(line) {
		switch {
		case isAlpha(tok):
			labels++
			a.Label = tok
		case isNumeric(tok):
			if numFields < NumFields {
				a.tokens[numFields] = tok
			}
			numFields++
		case strings.IndexFunc(tok, unicode.IsLetter) >= 0:
			// Letters glued to digits or punctuation, e.g. "hel3met".
			mixed = true
		default:
			malformed = true
		}
	}

	if labels > 1 || mixed {
		return Annotation{}, ErrAmbiguousClassName
	} else if labels == 0 {
		return Annotation{}, ErrInvalidClassName
	}
	if malformed {
		return Annotation{}, fmt.Errorf("%w: unexpected non-numeric token", ErrMalformedBox)
	} else if numFields != NumFields {
		return Annotation{}, fmt.Errorf("%w, found %d", ErrMalformedBox, numFields)
	}

	for i, tok := range a.tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return Annotation{}, fmt.Errorf("%w: field %d: %v", ErrMalformedBox, i, err)
		}
		a.Fields[i] = v
	}
	if err := validateFields(&a.Fields); err != nil {
		return Annotation{}, err
	}

	return a, nil
}

// validateFields checks that only the bounding box carries data.
func validateFields(fields *[NumFields]float64) error {
	for _, v := range fields[:boxStart] {
		if v != 0 {
			return ErrLeadingFieldsNonZero
		}
	}

	// The box coordinates must not sum to zero.
	var sum float64
	for _, v := range fields[boxStart:boxEnd] {
		sum += v
	}
	if sum == 0 {
		return ErrDegenerateBox
	}

	for _, v := range fields[boxEnd:] {
		if v != 0 {
			return ErrTrailingFieldsNonZero
		}
	}
	return nil
}

// Box returns the bounding box of a.
func (a Annotation) Box() Box {
	var b Box
	copy(b[:], a.Fields[boxStart:boxEnd])
	return b
}

// String renders a as a KITTI annotation line.
func (a Annotation) String() string {
	return renderLine(a.Label, a.tokens[:])
}

// withBox renders a as a KITTI annotation line, with the bounding box replaced by box.
func (a Annotation) withBox(box Box) string {
	tokens := a.tokens
	for i, v := range box {
		tokens[boxStart+i] = formatCoord(v)
	}
	return renderLine(a.Label, tokens[:])
}

func renderLine(label string, fields []string) string {
	var sb strings.Builder
	sb.WriteString(label)
	for _, f := range fields {
		sb.WriteByte(' ')
		sb.WriteString(f)
	}
	return sb.String()
}

// isAlpha reports whether s is a non-empty run of letters.
func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// isNumeric reports whether s is an optionally negative decimal number: -?[0-9]+(\.[0-9]*)?
func isNumeric(s string) bool {
	s = strings.TrimPrefix(s, "-")
	digits := 0
	for digits < len(s) && '0' <= s[digits] && s[digits] <= '9' {
		digits++
	}
	if digits == 0 {
		return false
	}
	s = s[digits:]
	if s == "" {
		return true
	}
	if s[0] != '.' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
