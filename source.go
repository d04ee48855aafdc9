package ddns

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// openListFile opens a list file and returns a reader that
// transparently decompresses it based on the file extension. Supported
// compression formats are gzip (.gz), bzip2 (.bz2) and xz (.xz); any
// other extension is read as-is.
func openListFile(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		reader, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("gzip error: %v", err)
		}
		// gzip.Reader.Close does not close the underlying file
		return &gzipListFile{Reader: reader, file: file}, nil
	case ".bz2":
		// bzip2 readers have no Close method of their own
		return struct {
			io.Reader
			io.Closer
		}{
			Reader: bzip2.NewReader(file),
			Closer: file,
		}, nil
	case ".xz":
		reader, err := xz.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("xz error: %v", err)
		}
		return struct {
			io.Reader
			io.Closer
		}{
			Reader: reader,
			Closer: file,
		}, nil
	default:
		return file, nil
	}
}

// gzipListFile closes both the decompressor and the file beneath it.
type gzipListFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipListFile) Close() error {
	err := g.Reader.Close()
	if cerr := g.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// readListLines reads a list file and returns its non-empty,
// non-comment lines in order. Lines starting with '#' are comments.
func readListLines(path string) ([]string, error) {
	reader, err := openListFile(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var lines []string
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
