package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var ErrTooLarge = errors.New("input exceeds size limit")

// LocalSource reads CSV inputs for the CLI. Relative paths resolve against BaseDir.
type LocalSource struct {
	BaseDir  string
	MaxBytes int64
}

func NewLocalSource(baseDir string, maxBytes int64) *LocalSource {
	if baseDir == "" {
		baseDir = "."
	}
	return &LocalSource{BaseDir: baseDir, MaxBytes: maxBytes}
}

func (s *LocalSource) resolve(sourcePath string) string {
	if filepath.IsAbs(sourcePath) {
		return sourcePath
	}
	return filepath.Join(s.BaseDir, sourcePath)
}

// ReadAll loads the whole file, or "-" for stdin, refusing anything over MaxBytes.
func (s *LocalSource) ReadAll(ctx context.Context, sourcePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var r io.Reader
	name := sourcePath
	if sourcePath == "-" {
		r, name = os.Stdin, "stdin"
	} else {
		name = s.resolve(sourcePath)
		f, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("open file %s: %w", name, err)
		}
		defer f.Close()
		r = f
	}

	return ReadLimited(r, s.MaxBytes, name)
}

// ReadLimited reads r fully; limit <= 0 means unbounded.
func ReadLimited(r io.Reader, limit int64, name string) ([]byte, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if limit > 0 && int64(len(raw)) > limit {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, name, limit)
	}
	return raw, nil
}
