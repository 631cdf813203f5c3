package kittiscale

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// AnnotationSet holds the validated annotations of a single KITTI annotation file, in file order.
type AnnotationSet struct {
	path        string
	annotations []Annotation
}

// ParseAnnotations reads and validates one annotation per line from r. The first invalid line
// aborts parsing with a *LineError.
func ParseAnnotations(r io.Reader) (*AnnotationSet, error) {
	return parseAnnotations(r, "")
}

// LoadAnnotations reads and validates the annotation file at path.
func LoadAnnotations(path string) (set *AnnotationSet, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read file %q: %w", path, err)
	}
	defer closeWithErrCheck(file, &err)

	return parseAnnotations(file, path)
}

func parseAnnotations(r io.Reader, path string) (*AnnotationSet, error) {
	set := &AnnotationSet{path: path}

	scanner := bufio.NewScanner(r)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := scanner.Text()
		a, err := ParseAnnotation(line)
		if err != nil {
			return nil, &LineError{Path: path, Line: lineNum, Text: line, Err: err}
		}
		set.annotations = append(set.annotations, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %q as lines: %w", path, err)
	}

	return set, nil
}

// Path is the file the annotations were loaded from, if any.
func (s *AnnotationSet) Path() string {
	return s.path
}

// Len is the number of annotations.
func (s *AnnotationSet) Len() int {
	return len(s.annotations)
}

// Annotations returns a copy of the annotations.
func (s *AnnotationSet) Annotations() []Annotation {
	return append([]Annotation(nil), s.annotations...)
}

// Lines renders the annotations unchanged.
func (s *AnnotationSet) Lines() []string {
	lines := make([]string, len(s.annotations))
	for i, a := range s.annotations {
		lines[i] = a.String()
	}
	return lines
}

// Scale rescales all bounding boxes from an image of size src to an image of size dst and returns
// the rendered annotation lines, in order. The class names and the zero fields are left untouched.
//
// The set itself is not modified.
func (s *AnnotationSet) Scale(src, dst Size) ([]string, error) {
	if err := checkSource(src); err != nil {
		return nil, err
	}

	lines := make([]string, len(s.annotations))
	for i, a := range s.annotations {
		box, err := ScaleBox(a.Box(), src, dst, DefaultDecimals)
		if err != nil {
			return nil, err
		}
		lines[i] = a.withBox(box)
	}
	return lines, nil
}

// WriteLines writes lines to a new file at path, each terminated by a newline.
func WriteLines(path string, lines []string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return w.Flush()
}
