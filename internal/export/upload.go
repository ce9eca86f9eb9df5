package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/scout/internal/errors"
)

// MaxUploadBytes is the largest spreadsheet the backend accepts.
const MaxUploadBytes int64 = 10 * 1024 * 1024

// Upload is a spreadsheet opened for sending.
type Upload struct {
	File *os.File
	Name string
	Size int64
}

// Close releases the file.
func (u *Upload) Close() error {
	return u.File.Close()
}

// CheckUploadName validates the extension of a spreadsheet to upload.
func CheckUploadName(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.NewInvalidRequest("file path is required")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls":
		return nil
	default:
		return errors.NewInvalidRequest("only Excel files (.xlsx, .xls) can be analyzed")
	}
}

// OpenUpload opens a spreadsheet for upload. The file must exist, must not
// be a symlink, must have an Excel extension and must not exceed MaxUploadBytes.
func OpenUpload(path string) (*Upload, error) {
	if err := CheckUploadName(path); err != nil {
		return nil, err
	}

	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("file must not be a symlink")
	}
	if !info.Mode().IsRegular() {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("%s is not a regular file", path))
	}
	if info.Size() > MaxUploadBytes {
		return nil, errors.NewFileTooLarge(MaxUploadBytes, info.Size())
	}

	f, err := openFileNoFollowRead(path)
	if err != nil {
		if _, ok := err.(*errors.ScoutError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(err)
	}
	return &Upload{File: f, Name: filepath.Base(path), Size: info.Size()}, nil
}
