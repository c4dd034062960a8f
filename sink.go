package metricsink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Sink persists a flushed table. Metrics arrive sorted by name.
type Sink interface {
	WriteMetrics(metrics []Metric) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(metrics []Metric) error

// WriteMetrics implements Sink interface
func (f SinkFunc) WriteMetrics(metrics []Metric) error {
	return f(metrics)
}

// FileSink replaces a file with the CSV encoding of each flushed table
type FileSink struct {
	path   string
	logger *zap.Logger
}

// NewFileSink creates a sink writing to path
func NewFileSink(path string, logger *zap.Logger) *FileSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{path: path, logger: logger}
}

// Path returns the destination file
func (s *FileSink) Path() string {
	return s.path
}

// WriteMetrics implements Sink interface. Symlinks are followed and an
// existing file keeps its mode. The table is written to a temporary file
// next to the real destination and renamed over it, so a failed flush leaves
// the previous contents untouched. When that directory does not allow new
// files the destination is truncated and rewritten in place instead.
func (s *FileSink) WriteMetrics(metrics []Metric) error {
	target, err := resolveTarget(s.path)
	if err != nil {
		return err
	}

	var (
		perm   os.FileMode = 0o666
		exists bool
	)
	if fi, err := os.Stat(target); err == nil {
		perm, exists = fi.Mode().Perm(), true
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat metrics file: %w", err)
	}

	err = replaceFile(target, perm, exists, metrics)
	if errors.Is(err, errNoTempFile) && exists {
		s.logger.Debug("Rewriting metrics file in place",
			zap.String("path", target), zap.Error(err))
		err = overwriteFile(target, metrics)
	}
	if err != nil {
		return err
	}

	s.logger.Debug("Wrote metrics file",
		zap.String("path", target), zap.Int("metrics", len(metrics)))
	return nil
}

var errNoTempFile = errors.New("cannot create temporary metrics file")

// resolveTarget follows symlinks at path. A path that does not exist yet is
// returned unchanged; a dangling symlink resolves to the file it points at.
func resolveTarget(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to resolve metrics path: %w", err)
	}

	fi, lerr := os.Lstat(path)
	if lerr != nil || fi.Mode()&os.ModeSymlink == 0 {
		return path, nil
	}
	link, err := os.Readlink(path)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics symlink: %w", err)
	}
	if !filepath.IsAbs(link) {
		link = filepath.Join(filepath.Dir(path), link)
	}
	return resolveTarget(link)
}

func replaceFile(target string, perm os.FileMode, exists bool, metrics []Metric) error {
	tmp, err := createTemp(target, perm)
	if err != nil {
		return fmt.Errorf("%w: %w", errNoTempFile, err)
	}
	tmpPath := tmp.Name()

	abort := func(err error) error {
		return multierr.Combine(err, tmp.Close(), os.Remove(tmpPath))
	}

	if err := EncodeCSV(tmp, metrics); err != nil {
		return abort(fmt.Errorf("failed to encode metrics: %w", err))
	}
	if exists {
		// The creation mode went through the umask; an existing file keeps its own.
		if err := tmp.Chmod(perm); err != nil {
			return abort(fmt.Errorf("failed to set metrics file mode: %w", err))
		}
	}
	if err := tmp.Sync(); err != nil {
		return abort(fmt.Errorf("failed to sync metrics file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		err = fmt.Errorf("failed to close metrics file: %w", err)
		return multierr.Append(err, os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, target); err != nil {
		err = fmt.Errorf("failed to replace metrics file: %w", err)
		return multierr.Append(err, os.Remove(tmpPath))
	}
	return nil
}

// createTemp creates a uniquely named file next to target. Unlike
// os.CreateTemp the mode is perm filtered by the umask, not 0600.
func createTemp(target string, perm os.FileMode) (*os.File, error) {
	dir, base := filepath.Split(target)
	if dir == "" {
		dir = "."
	}

	for i := 0; i < 10000; i++ {
		name := filepath.Join(dir, "."+base+".tmp-"+strconv.FormatUint(uint64(rand.Uint32()), 10))
		f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
		if os.IsExist(err) {
			continue
		}
		return f, err
	}
	return nil, &os.PathError{Op: "createtemp", Path: filepath.Join(dir, "."+base+".tmp-*"), Err: os.ErrExist}
}

func overwriteFile(target string, metrics []Metric) error {
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return fmt.Errorf("failed to open metrics file: %w", err)
	}
	if err := EncodeCSV(f, metrics); err != nil {
		return multierr.Append(fmt.Errorf("failed to encode metrics: %w", err), f.Close())
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close metrics file: %w", err)
	}
	return nil
}

// EncodeCSV writes one "name,value" line per metric, in the order given.
func EncodeCSV(w io.Writer, metrics []Metric) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 64)
	for _, m := range metrics {
		buf = append(buf[:0], m.Name...)
		buf = append(buf, ',')
		buf = strconv.AppendUint(buf, m.Value, 10)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}
