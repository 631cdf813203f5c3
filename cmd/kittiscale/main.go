// Scales the images and bounding box annotations of a KITTI dataset to a fixed resolution.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/sensorable/kittiscale"
)

var (
	dataDirPath   string // The dataset root with one image and one annotation folder.
	outputDirPath string // The directory in which the output folder is created.

	targetWidth  int // The output image width.
	targetHeight int // The output image height.

	imageDownsamplingFilter string // The algorithm to use when downsampling.
	imageUpsamplingFilter   string // The algorithm to use when upsampling.
	imageJPEGQuality        int    // The JPEG quality for JPEG outputs.

	skipInvalid bool // Skip files with invalid annotations instead of aborting.
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  -data <dir> [-out <dir>] [-width <px>] [-height <px>]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	defaults := kittiscale.DefaultOptions()

	// Path arguments.
	flag.StringVar(&dataDirPath, "data", dataDirPath,
		"The `path` to the dataset root, containing one image and one annotation folder")
	flag.StringVar(&outputDirPath, "out", outputDirPath,
		"The `path` to the directory in which the output folder is created (defaults to -data)")

	// Image processing arguments.
	flag.IntVar(&targetWidth, "width", defaults.Target.Width, "The target image width in `pixels`")
	flag.IntVar(&targetHeight, "height", defaults.Target.Height,
		"The target image height in `pixels`")
	flag.StringVar(&imageDownsamplingFilter, "downsample-filter", defaults.DownsampleFilter,
		"The filter to use when downsampling an image"+
				" {nearest, box, linear, catmullrom, gaussian, lanczos}")
	flag.StringVar(&imageUpsamplingFilter, "upsample-filter", defaults.UpsampleFilter,
		"The filter to use when upsampling an image"+
				" {nearest, box, linear, catmullrom, gaussian, lanczos}")
	flag.IntVar(&imageJPEGQuality, "jpeg-quality", defaults.JPEGQuality,
		"The quality to use when encoding JPEGs [1, 100]")

	flag.BoolVar(&skipInvalid, "skip-invalid", skipInvalid,
		"Skip files with invalid annotations instead of aborting")

	// Parse and validate flags.
	flag.Parse()

	if dataDirPath == "" {
		printUsageAndExit("Missing dataset path argument")
	}
	if targetWidth <= 0 || targetHeight <= 0 {
		printUsageAndExit("Invalid target size")
	}
	for _, name := range []string{imageDownsamplingFilter, imageUpsamplingFilter} {
		if _, err := kittiscale.ParseFilter(name); err != nil {
			printUsageAndExit(err)
		}
	}
	if imageJPEGQuality < 1 || imageJPEGQuality > 100 {
		imageJPEGQuality = defaults.JPEGQuality
		log.Print("Invalid JPEG quality, setting it to ", imageJPEGQuality)
	}

	// Clean path arguments.
	dataDirPath = filepath.Clean(dataDirPath)
	if outputDirPath == "" {
		outputDirPath = dataDirPath
	}
	outputDirPath = filepath.Clean(outputDirPath)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Validate the input and prepare the output.
	ds, err := kittiscale.OpenDataset(dataDirPath)
	if err != nil {
		log.Fatal("Invalid dataset: ", err)
	}
	log.Printf("Dataset %s is consistent with the KITTI layout", dataDirPath)

	out, err := kittiscale.PrepareOutput(outputDirPath)
	if err != nil {
		log.Fatal("Failed to prepare the output folders: ", err)
	}

	opts := kittiscale.Options{
		Target:           kittiscale.Size{Width: targetWidth, Height: targetHeight},
		DownsampleFilter: imageDownsamplingFilter,
		UpsampleFilter:   imageUpsamplingFilter,
		JPEGQuality:      imageJPEGQuality,
		SkipInvalid:      skipInvalid,
	}
	report, err := kittiscale.ScaleDataset(ctx, ds, out, opts)
	if err != nil {
		log.Fatal("Scaling failed: ", err)
	}

	if len(report.Skipped) > 0 {
		log.Printf("Skipped %d files with invalid annotations", len(report.Skipped))
	}
	log.Printf("Successfully scaled %d files to %s", len(report.Scaled), out.Root)
}
