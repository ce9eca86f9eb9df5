package export

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hpungsan/scout/internal/errors"
)

// writeAtomic writes through a temp file in the destination directory and
// renames it over path only after write succeeds, so an existing file is
// preserved on failure.
func writeAtomic(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if err := write(file); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to write export: %w", err))
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("export path is a symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}
