package kittiscale

// Scaling of image and annotation pairs.

import (
	"context"
	"fmt"
	"log"

	"github.com/disintegration/imaging"
)

// Options configure how a dataset is scaled.
type Options struct {
	Target           Size   // The output image size.
	DownsampleFilter string // The filter name used when the image area shrinks.
	UpsampleFilter   string // The filter name used otherwise.
	JPEGQuality      int    // [1, 100]

	// Skip pairs with invalid annotations instead of aborting. Skipped pairs are reported, not
	// written.
	SkipInvalid bool
}

// DefaultOptions returns the options used when nothing else is configured.
func DefaultOptions() Options {
	return Options{
		Target:           Size{Width: 284, Height: 284},
		DownsampleFilter: "box",
		UpsampleFilter:   "linear",
		JPEGQuality:      90,
	}
}

// Report summarises a ScaleDataset run.
type Report struct {
	Output  OutputDirs
	Scaled  []string         // The names of the scaled pairs, in processing order.
	Skipped map[string]error // Pairs skipped because of invalid annotations, by name.
}

type scaler struct {
	opts       Options
	downsample imaging.ResampleFilter
	upsample   imaging.ResampleFilter
}

func newScaler(opts Options) (*scaler, error) {
	if opts.Target.Width <= 0 || opts.Target.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %v", opts.Target)
	}
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		return nil, fmt.Errorf("invalid JPEG quality %d, must be in [1, 100]", opts.JPEGQuality)
	}

	s := &scaler{opts: opts}
	var err error
	if s.downsample, err = ParseFilter(opts.DownsampleFilter); err != nil {
		return nil, err
	}
	if s.upsample, err = ParseFilter(opts.UpsampleFilter); err != nil {
		return nil, err
	}
	return s, nil
}

// ScalePair scales the image and annotations of p to opts.Target and writes them to imageOut and
// annotationOut. Nothing is written if the annotations are invalid.
func ScalePair(p Pair, imageOut, annotationOut string, opts Options) error {
	s, err := newScaler(opts)
	if err != nil {
		return err
	}
	return s.scalePair(p, imageOut, annotationOut)
}

func (s *scaler) scalePair(p Pair, imageOut, annotationOut string) error {
	set, err := LoadAnnotations(p.AnnotationPath)
	if err != nil {
		return err
	}

	// Rescale the annotations before decoding the image, so invalid data fails early.
	src, err := ImageSize(p.ImagePath)
	if err != nil {
		return err
	}
	lines, err := set.Scale(src, s.opts.Target)
	if err != nil {
		return fmt.Errorf("image %q: %w", p.ImagePath, err)
	}

	img, err := loadImage(p.ImagePath)
	if err != nil {
		return err
	}
	resized := resizeImage(img, s.opts.Target, s.downsample, s.upsample)
	if err := saveImage(imageOut, resized, s.opts.JPEGQuality); err != nil {
		return fmt.Errorf("cannot write image %q: %w", imageOut, err)
	}

	if err := WriteLines(annotationOut, lines); err != nil {
		return fmt.Errorf("cannot write annotations %q: %w", annotationOut, err)
	}
	return nil
}

// ScaleDataset scales every pair in ds, one after the other, and writes the results to out.
//
// By default the first failure aborts the run. With opts.SkipInvalid, pairs with invalid
// annotations are logged and recorded in the report instead; other errors still abort.
func ScaleDataset(ctx context.Context, ds *Dataset, out OutputDirs, opts Options) (Report, error) {
	report := Report{Output: out, Skipped: make(map[string]error)}

	s, err := newScaler(opts)
	if err != nil {
		return report, err
	}

	pairs := ds.Pairs()
	log.Printf("Scaling %d files to %v", len(pairs), opts.Target)
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		imageOut, annotationOut := out.Paths(p)
		if err := s.scalePair(p, imageOut, annotationOut); err != nil {
			if opts.SkipInvalid && IsValidationError(err) {
				log.Printf("Invalid annotations, skipping %q: %v", p.Name, err)
				report.Skipped[p.Name] = err
				continue
			}
			return report, fmt.Errorf("failed to scale %q: %w", p.Name, err)
		}

		report.Scaled = append(report.Scaled, p.Name)
		log.Printf("Scaled %q", p.Name)
	}

	log.Printf("Scaled %d files, skipped %d, output in %s", len(report.Scaled),
		len(report.Skipped), out.Root)
	return report, nil
}
