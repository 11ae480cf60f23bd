package lookup

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spigell/recruiter-outreach/internal/utils"
)

// DirectoryEntry is one known recruiter.
type DirectoryEntry struct {
	Company string   `yaml:"company"`
	Name    string   `yaml:"name"`
	Contact string   `yaml:"contact"`
	Titles  []string `yaml:"titles"`
}

type directoryFile struct {
	Recruiters []DirectoryEntry `yaml:"recruiters"`
}

// Directory answers from a local YAML file of known recruiters.
type Directory struct {
	name    string
	entries map[string][]DirectoryEntry
}

// LoadDirectory reads a YAML directory file:
//
//	recruiters:
//	  - company: Acme
//	    name: Jane Doe
//	    contact: jane@acme.com
//	    titles: [engineer, analyst]
func LoadDirectory(name, path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recruiter directory: %w", err)
	}

	var file directoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse recruiter directory %q: %w", path, err)
	}

	return NewDirectory(name, file.Recruiters), nil
}

func NewDirectory(name string, entries []DirectoryEntry) *Directory {
	if name == "" {
		name = "directory"
	}

	d := &Directory{name: name, entries: make(map[string][]DirectoryEntry)}
	for _, e := range entries {
		key := companyKey(e.Company)
		if key == "" || strings.TrimSpace(e.Contact) == "" {
			continue
		}
		d.entries[key] = append(d.entries[key], e)
	}

	return d
}

func (d *Directory) Name() string { return d.name }

// Lookup prefers an entry matching the recruiter hint, then one matching the
// title, then a company-wide entry without titles.
func (d *Directory) Lookup(_ context.Context, q Query) (Result, error) {
	candidates := d.entries[companyKey(q.Company)]
	if len(candidates) == 0 {
		return NoData(), nil
	}

	if hint := strings.ToLower(utils.CleanText(q.RecruiterHint)); hint != "" {
		for _, c := range candidates {
			if strings.EqualFold(utils.CleanText(c.Name), hint) || strings.EqualFold(strings.TrimSpace(c.Contact), hint) {
				return FoundContact(c.Name, c.Contact), nil
			}
		}
	}

	title := strings.ToLower(q.Title)
	if title != "" {
		for _, c := range candidates {
			for _, t := range c.Titles {
				if t = strings.ToLower(strings.TrimSpace(t)); t != "" && strings.Contains(title, t) {
					return FoundContact(c.Name, c.Contact), nil
				}
			}
		}
	}

	for _, c := range candidates {
		if len(c.Titles) == 0 {
			return FoundContact(c.Name, c.Contact), nil
		}
	}

	return NoData(), nil
}

func companyKey(company string) string {
	return strings.ToLower(utils.CleanText(company))
}
