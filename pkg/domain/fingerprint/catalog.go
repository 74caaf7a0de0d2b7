package fingerprint

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/a11yscan/grid/pkg/domain/shared"
)

// Catalog holds the curated inputs the generator draws from. User
// agents carry their device signal in the string itself; timezones and
// languages are picked independently.
type Catalog struct {
	UserAgents []string `yaml:"user_agents"`
	Timezones  []string `yaml:"timezones"`
	Languages  []string `yaml:"languages"`
}

// DefaultCatalog returns the built-in catalog. Entries are a small
// rotation of current mainstream browsers; anything exotic is more
// fingerprintable, not less.
func DefaultCatalog() Catalog {
	return Catalog{
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
			"Mozilla/5.0 (Linux; Android 13; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Mobile Safari/537.36",
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
			"Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
		},
		Timezones: []string{
			"America/New_York",
			"America/Chicago",
			"America/Denver",
			"America/Los_Angeles",
			"Europe/London",
			"Europe/Berlin",
			"Australia/Sydney",
		},
		Languages: []string{
			"en-US",
			"en-GB",
			"en-CA",
			"de-DE",
			"fr-FR",
			"es-ES",
		},
	}
}

// Validate checks that every catalog list is non-empty, which keeps
// generation total.
func (c Catalog) Validate() error {
	if len(c.UserAgents) == 0 {
		return shared.NewDomainError("VALIDATION", "catalog needs at least one user agent", shared.ErrValidation)
	}
	if len(c.Timezones) == 0 {
		return shared.NewDomainError("VALIDATION", "catalog needs at least one timezone", shared.ErrValidation)
	}
	if len(c.Languages) == 0 {
		return shared.NewDomainError("VALIDATION", "catalog needs at least one language", shared.ErrValidation)
	}
	return nil
}

// LoadCatalog reads a catalog from a YAML file. Missing lists fall back
// to the built-in defaults so a partial override file is valid.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read fingerprint catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse fingerprint catalog: %w", err)
	}

	defaults := DefaultCatalog()
	if len(c.UserAgents) == 0 {
		c.UserAgents = defaults.UserAgents
	}
	if len(c.Timezones) == 0 {
		c.Timezones = defaults.Timezones
	}
	if len(c.Languages) == 0 {
		c.Languages = defaults.Languages
	}
	return c, nil
}
