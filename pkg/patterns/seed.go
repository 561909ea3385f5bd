package patterns

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// seedFile is the schema of one YAML seed file.
type seedFile struct {
	Signatures []SignatureSpec `yaml:"signatures"`
}

// loadSeedDir reads every .yaml/.yml file in dir and returns the signature
// specs they declare. Files are processed in lexical order so catalog
// construction is deterministic. A missing directory is an error; an empty
// one is fine.
func loadSeedDir(dir string) ([]SignatureSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read seed dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var specs []SignatureSpec
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read seed file %s: %w", path, err)
		}
		var f seedFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse seed file %s: %w", path, err)
		}
		specs = append(specs, f.Signatures...)
	}
	return specs, nil
}
