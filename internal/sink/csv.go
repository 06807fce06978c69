package sink

import (
	"context"
	"os"
	"strconv"
	"sync"

	"codeberg.org/mutker/perfcollector/internal/errors"
	"codeberg.org/mutker/perfcollector/internal/sampler"
)

const (
	defaultFilePerm = 0o644

	// Header is the first line of every output file
	Header = "timestamp,cycles,instructions,cache_misses,branch_misses,cpi"

	// CPI uses six significant digits, shortest form
	cpiPrecision = 6
)

// CSV writes samples as lines of a truncated text file and syncs each line
// to disk before returning.
type CSV struct {
	path string
	file *os.File
	buf  []byte
	mu   sync.Mutex
}

// OpenCSV creates or truncates path.
func OpenCSV(path string) (*CSV, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return nil, errors.New().Wrap(ErrCreateFile, err).WithData(struct {
			Path  string
			Error string
		}{
			Path:  path,
			Error: err.Error(),
		})
	}

	return &CSV{
		path: path,
		file: f,
		buf:  make([]byte, 0, 128),
	}, nil
}

func (c *CSV) Path() string {
	return c.path
}

func (c *CSV) WriteHeader() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.writeLine(append(c.buf[:0], Header+"\n"...))
}

func (c *CSV) Write(_ context.Context, s sampler.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.writeLine(AppendRecord(c.buf[:0], s))
}

func (c *CSV) writeLine(line []byte) error {
	errFactory := errors.New()

	if c.file == nil {
		return errFactory.New(ErrClosed)
	}
	if _, err := c.file.Write(line); err != nil {
		return errFactory.Wrap(ErrWriteRecord, err)
	}
	if err := c.file.Sync(); err != nil {
		return errFactory.Wrap(ErrSyncRecord, err)
	}
	c.buf = line[:0]

	return nil
}

func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	if err != nil {
		return errors.New().Wrap(errors.ErrSinkClose, err)
	}

	return nil
}

// AppendRecord appends the CSV line for s, newline included, to dst.
func AppendRecord(dst []byte, s sampler.Sample) []byte {
	dst = strconv.AppendInt(dst, s.TimestampMillis(), 10)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, s.Cycles, 10)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, s.Instructions, 10)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, s.CacheMisses, 10)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, s.BranchMisses, 10)
	dst = append(dst, ',')
	dst = AppendCPI(dst, s.CPI)

	return append(dst, '\n')
}

// AppendCPI formats cpi like a default-precision C++ stream: 2, 0, 1.33333.
func AppendCPI(dst []byte, cpi float64) []byte {
	return strconv.AppendFloat(dst, cpi, 'g', cpiPrecision, 64)
}
