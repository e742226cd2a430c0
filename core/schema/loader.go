package schema

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrConfig marks declarative configuration problems (missing fields,
// dangling references). Callers skip the affected object and continue.
var ErrConfig = errors.New("invalid configuration")

// clusterDoc is the subset of the cluster configuration document this
// package cares about. Dataset definitions live in the same file and are
// parsed by the datasets package.
type clusterDoc struct {
	Databases []DatabaseSpec `yaml:"databases"`
}

// LoadDatabases reads the declarative cluster configuration file and
// returns the validated database specs.
func LoadDatabases(path string) ([]DatabaseSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster config: %w", err)
	}

	var doc clusterDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse cluster config %s: %w", path, err)
	}

	for _, db := range doc.Databases {
		if err := validateDatabase(db); err != nil {
			return nil, err
		}
	}

	return doc.Databases, nil
}

func validateDatabase(db DatabaseSpec) error {
	if db.Name == "" {
		return fmt.Errorf("%w: database without a name", ErrConfig)
	}
	if db.File == "" {
		return fmt.Errorf("%w: database %s has no file", ErrConfig, db.Name)
	}

	for _, t := range db.Tables {
		if t.Name == "" {
			return fmt.Errorf("%w: database %s declares a table without a name", ErrConfig, db.Name)
		}
		if len(t.Columns) == 0 {
			return fmt.Errorf("%w: table %s has no columns", ErrConfig, t.Name)
		}
		for _, c := range t.Columns {
			if c.Name == "" || c.SQLType == "" {
				return fmt.Errorf("%w: table %s declares a column without name or type", ErrConfig, t.Name)
			}
		}
		// Index columns must reference declared columns.
		for i, idx := range t.Indexes {
			for _, col := range idx.Columns {
				if _, ok := t.Column(col); !ok {
					return fmt.Errorf("%w: index %s references unknown column %s",
						ErrConfig, t.IndexName(i), col)
				}
			}
		}
	}

	return nil
}
