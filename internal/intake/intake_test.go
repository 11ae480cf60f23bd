package intake

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

func TestReadJSONLines(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"J1","company":"Acme","title":"SWE"}`,
		``,
		`# comment`,
		`{broken`,
		`{"id":"J2"}`,
	}, "\n")

	records, err := Read(strings.NewReader(input), FormatJSONL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	if records[0].Raw["id"] != "J1" || records[0].Line != 1 {
		t.Fatalf("unexpected first record: %+v", records[0])
	}

	var malformed *outreach.MalformedRecord
	if !errors.As(records[1].Err, &malformed) {
		t.Fatalf("expected malformed record on line 4, got %v", records[1].Err)
	}
	if records[1].Line != 4 {
		t.Fatalf("expected line 4, got %d", records[1].Line)
	}

	if records[2].Raw["id"] != "J2" {
		t.Fatalf("unexpected last record: %+v", records[2])
	}
}

func TestReadArray(t *testing.T) {
	records, err := Read(strings.NewReader(`[{"id":"J1"}, 5, {"id":"J2"}]`), FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[1].Err == nil {
		t.Fatalf("expected non-object item to be malformed")
	}

	if _, err := Read(strings.NewReader(`{"id":"J1"}`), FormatJSON); err == nil {
		t.Fatalf("expected error for a non-array document")
	}
}

func TestReadURLList(t *testing.T) {
	records, err := Read(strings.NewReader("https://jobright.ai/jobs/info/a1\n\nhttps://jobright.ai/jobs/info/b2\n"), FormatURLs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 || records[1].Raw["url"] != "https://jobright.ai/jobs/info/b2" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "applied.txt")
	if err := os.WriteFile(path, []byte("https://example.com/jobs/1\n"), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}

	records, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	if _, err := Load(filepath.Join(dir, "missing.jsonl")); err == nil {
		t.Fatalf("expected error for missing input")
	}
}

func TestLoadStdin(t *testing.T) {
	original := stdin
	stdin = strings.NewReader(`{"id":"J9"}` + "\n")
	defer func() { stdin = original }()

	records, err := Load(Stdin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].Raw["id"] != "J9" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"jobs.json":  FormatJSON,
		"jobs.JSONL": FormatJSONL,
		"urls.txt":   FormatURLs,
		"jobs":       FormatJSONL,
	}
	for path, want := range cases {
		if got := DetectFormat(path); got != want {
			t.Fatalf("%s: expected %s, got %s", path, want, got)
		}
	}
}
