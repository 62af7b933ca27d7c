package homepage

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/hometab/internal/domain"
)

var templateVar = regexp.MustCompile(`\{\{[^}]+\}\}`)

// Source is a pair of gethomepage config files. Either path may be empty.
type Source struct {
	ServicesPath  string
	BookmarksPath string
}

// Paths returns the configured files.
func (s Source) Paths() []string {
	var out []string
	for _, p := range []string{s.ServicesPath, s.BookmarksPath} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads both files and returns the records they describe, services
// first. Records carry no id; the importer assigns one.
func (s Source) Load() ([]domain.BookmarkRecord, error) {
	var records []domain.BookmarkRecord

	if s.ServicesPath != "" {
		cfg, err := LoadServices(s.ServicesPath)
		if err != nil {
			return nil, err
		}
		records = append(records, MapServices(cfg)...)
	}
	if s.BookmarksPath != "" {
		cfg, err := LoadBookmarks(s.BookmarksPath)
		if err != nil {
			return nil, err
		}
		records = append(records, MapBookmarks(cfg)...)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no valid entries found in homepage config")
	}
	return records, nil
}

// LoadServices reads and parses a services.yaml file
func LoadServices(path string) (ServicesConfig, error) {
	var config ServicesConfig
	if err := loadYAML(path, &config); err != nil {
		return nil, fmt.Errorf("failed to load services file: %w", err)
	}
	return config, nil
}

// LoadBookmarks reads and parses a bookmarks.yaml file
func LoadBookmarks(path string) (BookmarksConfig, error) {
	var config BookmarksConfig
	if err := loadYAML(path, &config); err != nil {
		return nil, fmt.Errorf("failed to load bookmarks file: %w", err)
	}
	return config, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Strip Homepage template variables ({{HOMEPAGE_VAR_...}})
	data = stripTemplateVariables(data)

	return yaml.Unmarshal(data, out)
}

// stripTemplateVariables removes Homepage template variables from YAML
// Example: {{HOMEPAGE_VAR_ADGUARD_USER}} -> ""
func stripTemplateVariables(data []byte) []byte {
	return templateVar.ReplaceAll(data, []byte(`""`))
}
