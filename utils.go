package kittiscale

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// filesByExtInDir retuns all regular files with file extension ext found directly in directory
// dirPath, sorted by name. All files are returned if extension is empty. Hidden files are ignored.
func filesByExtInDir(dirPath, ext string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %q: %w", dirPath, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		// Must be a regular file or a symlink and have the requested extension/suffix.
		if (!entry.Type().IsRegular() && entry.Type()&os.ModeSymlink == 0) ||
				strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		files = append(files, filepath.Join(dirPath, name))
	}

	return files, nil
}

// subdirectories returns the directories found directly in dirPath, sorted by name.
func subdirectories(dirPath string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %q: %w", dirPath, err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(dirPath, entry.Name()))
		}
	}
	return dirs, nil
}

// checkDir returns ErrNoSuchPath or ErrNotADirectory unless path is an existing directory.
func checkDir(path string) error {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %q", ErrNoSuchPath, path)
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%w: %q", ErrNotADirectory, path)
	}
	return nil
}

// splitPath splits the given file path into the dir name, the base name without extension and the
// extension (without the dot).
func splitPath(path string) (dir, baseNoExt, ext string, err error) {
	dir, file := filepath.Split(path)
	ext = filepath.Ext(file)
	if ext == "" {
		return "", "", "", fmt.Errorf("%w: missing file extension in %q", ErrFileExtension, path)
	}

	dir = strings.TrimSuffix(dir, string(os.PathSeparator))
	baseNoExt = file[0 : len(file)-len(ext)]
	ext = ext[1:]

	return dir, baseNoExt, ext, nil
}

// mapFileNamesToExtensions maps the base names of the given file paths, with the file type
// extensions stripped off, to the file extension (without the dot).
func mapFileNamesToExtensions(filePaths []string) map[string]string {
	mapping := make(map[string]string, len(filePaths))
	for _, path := range filePaths {
		_, baseNoExt, ext, err := splitPath(path)
		if err != nil {
			log.Print(err)
			continue
		}
		mapping[baseNoExt] = ext
	}

	return mapping
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
