package files

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/meetcreator/roomdrop/internal/transfer"
)

// FileInfo holds information about a file to be sent
type FileInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	// Size is the file size in bytes
	Size int64

	// Type is the MIME type detected from the file's content
	Type string
}

// Validate checks that path is a readable regular file and returns its info.
// Empty files are allowed; they transfer as a bare meta frame.
func Validate(path string) (FileInfo, error) {
	if path == "" {
		return FileInfo{}, fmt.Errorf("no file specified")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}

	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s: is a directory (send one file at a time)", path)
	}
	if !stat.Mode().IsRegular() {
		return FileInfo{}, fmt.Errorf("%s: not a regular file", path)
	}

	// Detection reads the file header, so it doubles as the readability check.
	mtype, err := mimetype.DetectFile(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot read file (check permissions): %w", path, err)
	}

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: mtype.String(),
	}, nil
}

// Open opens the file as a transfer source. The caller closes the returned
// closer once the transfer ends.
func (f FileInfo) Open() (transfer.Source, io.Closer, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return transfer.Source{}, nil, transfer.NewFileError("open", f.Name, err)
	}
	return transfer.Source{
		Name:     f.Name,
		Size:     f.Size,
		MimeType: f.Type,
		Reader:   file,
	}, file, nil
}
