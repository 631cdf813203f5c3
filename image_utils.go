package kittiscale

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
)

// ParseFilter returns the resampling filter with the given name.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	switch name {
	case "nearest":
		return imaging.NearestNeighbor, nil
	case "box":
		return imaging.Box, nil
	case "linear":
		return imaging.Linear, nil
	case "catmullrom":
		return imaging.CatmullRom, nil
	case "gaussian":
		return imaging.Gaussian, nil
	case "lanczos":
		return imaging.Lanczos, nil
	}
	return imaging.ResampleFilter{}, fmt.Errorf("unknown resampling filter %q", name)
}

// resizeImage resamples img to exactly dst, without preserving the aspect ratio.
func resizeImage(img image.Image, dst Size, downsamplingFilter,
		upsamplingFilter imaging.ResampleFilter) *image.NRGBA {

	bounds := img.Bounds()

	// Select the filter based on the direction of the rescaling operation.
	filter := upsamplingFilter
	if dst.Width*dst.Height < bounds.Dx()*bounds.Dy() {
		filter = downsamplingFilter
	}

	return imaging.Resize(img, dst.Width, dst.Height, filter)
}

// ImageSize reads the dimensions of the image at path without decoding the pixel data.
func ImageSize(path string) (Size, error) {
	config, _, err := decodeImageConfig(path)
	if err != nil {
		return Size{}, fmt.Errorf("failed to decode the image metadata of %q: %w", path, err)
	}
	return Size{Width: config.Width, Height: config.Height}, nil
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// loadImage reads and decodes the image at path.
func loadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", path, err)
	}
	return img, nil
}

// saveImage encodes img in the format given by the file extension of path.
func saveImage(path string, img image.Image, jpegQuality int) error {
	return imaging.Save(img, path, imaging.JPEGQuality(jpegQuality))
}
