// Package linereader streams a large text file as batches of complete lines
// bounded by a caller-supplied byte budget.
//
// The algorithm deliberately avoids bufio.Scanner's growable-buffer model:
// callers of this package size the raw archive's per-day files in the tens
// of gigabytes, and the contract requires knowing the exact memory ceiling of
// each iteration ahead of time rather than letting the reader grow its
// buffer reactively.
package linereader

import (
	"fmt"
	"os"
	"strings"
)

// ErrOversizeLine is returned when a single line in the source file exceeds
// the reader's per-iteration read budget. The caller should retry with a
// larger MaximumBufferSizeInBytes.
type ErrOversizeLine struct {
	FilePath string
	Offset   int64
}

func (e *ErrOversizeLine) Error() string {
	return fmt.Sprintf(
		"linereader: line at offset %d of %q exceeds the buffer size; increase MaximumBufferSizeInBytes",
		e.Offset, e.FilePath,
	)
}

// Reader lazily reads a text file into RAM using buffers of a bounded size.
//
// One call to Next performs exactly one bounded disk read and returns the
// whole lines decoded from it. The union of all batches returned before
// Next reports io.EOF-equivalent (via the done return) equals the line
// split of the entire file.
type Reader struct {
	filePath           string
	maximumBufferBytes int
	readSizeBytes      int
	totalFileSizeBytes int64
	offset             int64
}

// New constructs a Reader over filePath. maximumBufferSizeInBytes is the
// theoretical peak RAM the caller is willing to dedicate to one iteration;
// the actual per-read size is one third of that, reserving headroom for the
// decoded string and its line-split slice to coexist with the raw bytes.
func New(filePath string, maximumBufferSizeInBytes int) (*Reader, error) {
	if maximumBufferSizeInBytes < 1 {
		return nil, fmt.Errorf("linereader: maximumBufferSizeInBytes must be positive, got %d", maximumBufferSizeInBytes)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("linereader: stat %q: %w", filePath, err)
	}

	return &Reader{
		filePath:           filePath,
		maximumBufferBytes: maximumBufferSizeInBytes,
		readSizeBytes:      maximumBufferSizeInBytes / 3,
		totalFileSizeBytes: info.Size(),
		offset:             0,
	}, nil
}

// NumBatches returns an estimate of the number of batches in the file (its
// size divided by the read size, plus one), useful for sizing a progress bar
// before iteration begins. The real count can be higher, since a partial
// trailing line is re-read at the start of the next batch.
func (r *Reader) NumBatches() int {
	if r.readSizeBytes == 0 {
		return 1
	}
	return int(r.totalFileSizeBytes/int64(r.readSizeBytes)) + 1
}

// Done reports whether the file has been fully consumed.
func (r *Reader) Done() bool {
	return r.offset >= r.totalFileSizeBytes
}

// Next returns the next batch of whole lines, or done=true once the file is
// exhausted. It is not safe for concurrent use by multiple goroutines on the
// same Reader.
func (r *Reader) Next() (lines []string, done bool, err error) {
	if r.Done() {
		return nil, true, nil
	}

	file, err := os.OpenFile(r.filePath, os.O_RDONLY, 0)
	if err != nil {
		return nil, false, fmt.Errorf("linereader: open %q: %w", r.filePath, err)
	}
	defer file.Close()

	if _, err := file.Seek(r.offset, 0); err != nil {
		return nil, false, fmt.Errorf("linereader: seek %q: %w", r.filePath, err)
	}

	raw := make([]byte, r.readSizeBytes)
	n, err := readFull(file, raw)
	if err != nil {
		return nil, false, fmt.Errorf("linereader: read %q: %w", r.filePath, err)
	}
	raw = raw[:n]

	decoded := string(raw)
	split := splitLines(decoded)

	if n < r.readSizeBytes {
		// Final read: everything decoded belongs to the result, including a
		// trailing partial piece if the file doesn't end in a newline.
		r.offset = r.totalFileSizeBytes
		return split, false, nil
	}

	if len(split) == 0 {
		r.offset += int64(r.readSizeBytes)
		return nil, false, nil
	}

	if strings.HasSuffix(decoded, "\n") || strings.HasSuffix(decoded, "\r") {
		// The read ended exactly on a line boundary, so every piece is a
		// whole line.
		r.offset += int64(r.readSizeBytes)
		return split, false, nil
	}

	batch := split[:len(split)-1]
	lastPiece := split[len(split)-1]

	if len(batch) == 0 && lastPiece != "" {
		return nil, false, &ErrOversizeLine{FilePath: r.filePath, Offset: r.offset}
	}

	r.offset += int64(r.readSizeBytes) - int64(len(lastPiece))

	return batch, false, nil
}

// ReadAll drains the reader, invoking visit once per non-empty batch. It is
// how reduce.File iterates over a raw log file.
func ReadAll(filePath string, maximumBufferSizeInBytes int, visit func(lines []string) error) error {
	reader, err := New(filePath, maximumBufferSizeInBytes)
	if err != nil {
		return err
	}

	for {
		lines, done, err := reader.Next()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if len(lines) == 0 {
			continue
		}
		if err := visit(lines); err != nil {
			return err
		}
	}
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			if total > 0 {
				return total, nil
			}
			if isEOF(err) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

func isEOF(err error) bool {
	return err != nil && err.Error() == "EOF"
}

// splitLines mirrors Python's str.splitlines(): it splits on \n, \r\n, and a
// bare \r, and a trailing line terminator produces no terminal empty element.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	var lines []string
	start := 0
	i := 0
	for i < len(s) {
		switch s[i] {
		case '\n':
			lines = append(lines, s[start:i])
			i++
			start = i
		case '\r':
			lines = append(lines, s[start:i])
			i++
			if i < len(s) && s[i] == '\n' {
				i++
			}
			start = i
		default:
			i++
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
