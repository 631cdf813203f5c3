package kittiscale

// Dataset layout: a root directory with one folder of images and one folder of annotation files,
// matched by base file name.

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Names of the output folders.
const (
	ImagesFolder      = "images"
	AnnotationsFolder = "annotations"
)

const annotationExt = "txt"

// outputPrefix names the output folders created by PrepareOutput. OpenDataset ignores them, so a
// dataset can be scaled again with its previous output in place.
const outputPrefix = "output-"

// Supported image file extensions, lower case and without the dot.
var imageExts = map[string]bool{"jpg": true, "jpeg": true, "png": true}

// Pair is an image with its annotation file.
type Pair struct {
	Name           string // The shared base name without extension.
	ImagePath      string
	AnnotationPath string
}

// Dataset is a validated dataset root.
type Dataset struct {
	Root          string
	ImageDir      string
	AnnotationDir string

	pairs []Pair
}

// OpenDataset validates the layout of the dataset at root and pairs up images and annotations.
//
// The root must contain exactly two directories, not counting output folders from earlier runs:
// one with only images and one with only .txt annotation files. Every image must have an annotation file with the same base name and vice
// versa.
func OpenDataset(root string) (*Dataset, error) {
	if err := checkDir(root); err != nil {
		return nil, err
	}
	all, err := subdirectories(root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, dir := range all {
		if !strings.HasPrefix(filepath.Base(dir), outputPrefix) {
			dirs = append(dirs, dir)
		}
	}
	if len(dirs) != 2 {
		return nil, fmt.Errorf("%w: found %d folders in %q, expected 2", ErrLayout, len(dirs), root)
	}

	ds := &Dataset{Root: root}
	var imageFiles, annotationFiles []string
	for _, dir := range dirs {
		files, err := filesByExtInDir(dir, "")
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("%w: %q is empty", ErrEmptyFolder, dir)
		}

		isImageDir, err := classifyFolder(files)
		if err != nil {
			return nil, err
		}
		if isImageDir && ds.ImageDir == "" {
			ds.ImageDir, imageFiles = dir, files
		} else if !isImageDir && ds.AnnotationDir == "" {
			ds.AnnotationDir, annotationFiles = dir, files
		} else {
			return nil, fmt.Errorf("%w: expected one image and one annotation folder in %q",
				ErrLayout, root)
		}
	}

	// Match images to annotations by name.
	imageNamesToExt := mapFileNamesToExtensions(imageFiles)
	if len(imageNamesToExt) != len(imageFiles) {
		return nil, fmt.Errorf("%w: duplicate image names in %q", ErrUnmatchedFiles, ds.ImageDir)
	}
	annotationNames := mapFileNamesToExtensions(annotationFiles)
	if len(annotationNames) != len(imageNamesToExt) {
		return nil, fmt.Errorf("%w: %d images, %d annotation files", ErrUnmatchedFiles,
			len(imageNamesToExt), len(annotationNames))
	}

	ds.pairs = make([]Pair, 0, len(annotationNames))
	for name, ext := range annotationNames {
		imageExt, found := imageNamesToExt[name]
		if !found {
			return nil, fmt.Errorf("%w: no image for %q", ErrUnmatchedFiles, name+"."+ext)
		}
		ds.pairs = append(ds.pairs, Pair{
			Name:           name,
			ImagePath:      filepath.Join(ds.ImageDir, name+"."+imageExt),
			AnnotationPath: filepath.Join(ds.AnnotationDir, name+"."+ext),
		})
	}
	sort.Slice(ds.pairs, func(i, j int) bool { return ds.pairs[i].Name < ds.pairs[j].Name })

	return ds, nil
}

// classifyFolder reports whether files are all images (true) or all annotation files (false).
func classifyFolder(files []string) (isImageDir bool, err error) {
	for i, path := range files {
		_, _, ext, err := splitPath(path)
		if err != nil {
			return false, err
		}
		ext = strings.ToLower(ext)

		var isImage bool
		switch {
		case imageExts[ext]:
			isImage = true
		case ext == annotationExt:
			isImage = false
		default:
			return false, fmt.Errorf("%w: %q, images must be .jpg or .png and annotations .txt",
				ErrFileExtension, path)
		}

		if i == 0 {
			isImageDir = isImage
		} else if isImage != isImageDir {
			return false, fmt.Errorf("%w: images and annotations mixed in %q", ErrLayout,
				filepath.Dir(path))
		}
	}
	return isImageDir, nil
}

// Pairs returns the image and annotation pairs, sorted by name.
func (ds *Dataset) Pairs() []Pair {
	return append([]Pair(nil), ds.pairs...)
}

// OutputDirs are the folders scaled data is written to.
type OutputDirs struct {
	Root          string
	ImageDir      string
	AnnotationDir string
}

// PrepareOutput creates a new, uniquely named output folder with the KITTI layout in the existing
// directory root.
func PrepareOutput(root string) (OutputDirs, error) {
	if err := checkDir(root); err != nil {
		return OutputDirs{}, err
	}

	id, err := uuid.NewUUID()
	if err != nil {
		return OutputDirs{}, err
	}
	target := filepath.Join(root, outputPrefix+strings.ReplaceAll(id.String(), "-", ""))
	out := OutputDirs{
		Root:          target,
		ImageDir:      filepath.Join(target, ImagesFolder),
		AnnotationDir: filepath.Join(target, AnnotationsFolder),
	}
	for _, dir := range []string{out.Root, out.ImageDir, out.AnnotationDir} {
		if err := os.Mkdir(dir, 0755); err != nil {
			return OutputDirs{}, err
		}
	}

	return out, nil
}

// Paths returns the output paths for the scaled image and annotation file of p. The image keeps
// its file extension.
func (o OutputDirs) Paths(p Pair) (imagePath, annotationPath string) {
	return filepath.Join(o.ImageDir, filepath.Base(p.ImagePath)),
		filepath.Join(o.AnnotationDir, p.Name+"."+annotationExt)
}
