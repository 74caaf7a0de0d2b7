package egress

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the YAML shape of an egress seed list:
//
//	identities:
//	  - address: 10.1.0.4
//	    port: 8080
//	    region: us-east
//	    carrier: broadband
type seedFile struct {
	Identities []Identity `yaml:"identities"`
}

// LoadSeed reads an egress identity seed list from a YAML file.
func LoadSeed(path string) ([]Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read egress seed: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse egress seed: %w", err)
	}

	for i, id := range f.Identities {
		if err := id.Validate(); err != nil {
			return nil, fmt.Errorf("egress seed entry %d: %w", i, err)
		}
	}
	return f.Identities, nil
}
