// Package intake reads the applied-jobs stream produced by the scraper.
package intake

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatJSON  Format = "json"
	FormatURLs  Format = "txt"

	// Stdin is the input path that selects standard input.
	Stdin = "-"

	maxLineSize = 1 << 20
)

// Record is one raw entry of the stream. Err is set when the entry itself is
// unreadable; such entries are per-record defects, not run failures.
type Record struct {
	Line int
	Raw  map[string]any
	Err  error
}

var stdin io.Reader = os.Stdin

// DetectFormat picks the format from the file extension. Stdin and unknown
// extensions are read as JSON lines.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".txt", ".urls":
		return FormatURLs
	default:
		return FormatJSONL
	}
}

// Load reads every record from path. An error means the stream as a whole
// could not be read.
func Load(path string) ([]Record, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("input path is required")
	}

	if path == Stdin {
		return Read(stdin, FormatJSONL)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	return Read(file, DetectFormat(path))
}

func Read(r io.Reader, format Format) ([]Record, error) {
	switch format {
	case FormatJSON:
		return readArray(r)
	case FormatURLs:
		return readLines(r, func(line string) (map[string]any, error) {
			return map[string]any{"url": line}, nil
		})
	case FormatJSONL:
		return readLines(r, func(line string) (map[string]any, error) {
			var raw map[string]any
			if err := json.Unmarshal([]byte(line), &raw); err != nil {
				return nil, err
			}
			return raw, nil
		})
	default:
		return nil, fmt.Errorf("unsupported input format %q", format)
	}
}

func readArray(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode input array: %w", err)
	}

	records := make([]Record, 0, len(items))
	for idx, item := range items {
		rec := Record{Line: idx + 1}
		if err := json.Unmarshal(item, &rec.Raw); err != nil {
			rec.Err = &outreach.MalformedRecord{Reason: fmt.Sprintf("item %d: %v", idx+1, err)}
		}
		records = append(records, rec)
	}

	return records, nil
}

func readLines(r io.Reader, parse func(line string) (map[string]any, error)) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var records []Record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rec := Record{Line: lineNo}
		raw, err := parse(line)
		if err != nil {
			rec.Err = &outreach.MalformedRecord{Reason: fmt.Sprintf("line %d: %v", lineNo, err)}
		} else {
			rec.Raw = raw
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	return records, nil
}
