package datasets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"data-manager/core/schema"

	"gopkg.in/yaml.v3"
)

// Error taxonomy for dataset processing. ErrConfig aborts only the
// affected dataset; the rest of the configuration keeps processing.
var (
	ErrOutputIO       = errors.New("output I/O failure")
	ErrFormatMismatch = errors.New("format mismatch")
)

// Output formats.
const (
	FormatCSV = "csv"
	FormatDAT = "dat"
)

// Renewal policies.
const (
	RenewFull  = "full"
	RenewDelta = "delta"
)

// TimeModeSpan selects rows from tiered-resolution history tables without
// double-counting the same time range at multiple resolutions.
const TimeModeSpan = "span"

// Projection names reserved for internal use; the loader rejects them.
var reservedColumns = map[string]bool{
	"dataset": true,
	"ukey":    true,
	"status":  true,
}

// ColumnRef is one entry of a dataset's projection list.
type ColumnRef struct {
	// Name is the source column or expression. Plain identifiers are
	// canonicalized and re-quoted; anything containing an expression
	// character passes through verbatim.
	Name string `yaml:"name"`
	// Table optionally names the source table in a multi-table dataset.
	// Defaults to the first source table.
	Table string `yaml:"table"`
	// Alias renames the projected column in the output.
	Alias string `yaml:"alias"`
	// Convert names a registered column converter applied before
	// formatting.
	Convert string `yaml:"convert"`
}

// OrderRef is one entry of an explicit ordering.
type OrderRef struct {
	Column string `yaml:"column"`
	// Dir is asc or desc; empty means asc.
	Dir string `yaml:"dir"`
}

// Spec is one declarative dataset definition. It is owned by the
// configuration loader and treated as read-only here.
type Spec struct {
	Name     string `yaml:"name"`
	Database string `yaml:"database"`

	// Tables are the source tables. More than one requires Join.
	Tables []string `yaml:"tables"`
	// Join is the shared key column for multi-table datasets.
	Join string `yaml:"join"`
	// Filter is an optional raw WHERE conjunct.
	Filter string `yaml:"filter"`

	Columns []ColumnRef `yaml:"columns"`

	// Format is csv or dat.
	Format string `yaml:"format"`
	// FormatStr overrides the generated per-row format string.
	FormatStr string `yaml:"format_str"`
	// Header overrides the generated header line.
	Header string `yaml:"header"`
	// Delimiter overrides the format's default field delimiter.
	Delimiter string `yaml:"delimiter"`

	// Output is the destination path. With a fan-out column it is a
	// pattern whose %s placeholder receives the fan-out value.
	Output string `yaml:"output"`
	// FileColumn routes rows to different output files by value.
	FileColumn string `yaml:"file_column"`
	// FileTable optionally names a per-file status table joined on the
	// fan-out column; its FilePathColumn provides the destination path.
	FileTable      string `yaml:"file_table"`
	FilePathColumn string `yaml:"file_path_column"`

	// Renew is full or delta.
	Renew string `yaml:"renew"`

	Order []OrderRef `yaml:"order"`

	// TimeColumn is the dataset's timestamp column. Required unless an
	// explicit order is configured.
	TimeColumn string `yaml:"time_column"`
	// TimeMode is empty or span.
	TimeMode string `yaml:"time_mode"`
	// ResolutionColumn discriminates resolution tiers in span mode.
	ResolutionColumn string `yaml:"resolution_column"`
}

// Delim returns the effective field delimiter.
func (s Spec) Delim() string {
	if s.Delimiter != "" {
		return s.Delimiter
	}
	if s.Format == FormatDAT {
		return " "
	}
	return ","
}

// IsFanOut reports whether rows route to more than one output file.
func (s Spec) IsFanOut() bool {
	return s.FileColumn != ""
}

// IsDelta reports whether only rows past the watermark are exported.
func (s Spec) IsDelta() bool {
	return s.Renew == RenewDelta
}

// OutputName returns the canonical alias of the i-th projected column.
func (s Spec) OutputName(i int) string {
	c := s.Columns[i]
	if c.Alias != "" {
		return schema.Canonical(c.Alias)
	}
	return schema.Canonical(c.Name)
}

type datasetDoc struct {
	Datasets []Spec `yaml:"datasets"`
}

// LoadDatasets reads the dataset definitions from the cluster
// configuration file. Database specs live in the same document and are
// parsed by the schema package.
func LoadDatasets(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster config: %w", err)
	}

	var doc datasetDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse cluster config %s: %w", path, err)
	}

	for _, ds := range doc.Datasets {
		if err := Validate(ds); err != nil {
			return nil, err
		}
	}

	return doc.Datasets, nil
}

// Validate checks a dataset definition for configuration errors that are
// independent of any database state.
func Validate(s Spec) error {
	if s.Name == "" {
		return fmt.Errorf("%w: dataset without a name", schema.ErrConfig)
	}
	if len(s.Tables) == 0 {
		return fmt.Errorf("%w: dataset %s has no source table", schema.ErrConfig, s.Name)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: dataset %s has no columns", schema.ErrConfig, s.Name)
	}
	if s.Output == "" {
		return fmt.Errorf("%w: dataset %s has no output path", schema.ErrConfig, s.Name)
	}

	switch s.Format {
	case FormatCSV, FormatDAT:
	default:
		return fmt.Errorf("%w: dataset %s has unknown format %q", schema.ErrConfig, s.Name, s.Format)
	}

	switch s.Renew {
	case "", RenewFull, RenewDelta:
	default:
		return fmt.Errorf("%w: dataset %s has unknown renewal policy %q", schema.ErrConfig, s.Name, s.Renew)
	}

	switch s.TimeMode {
	case "", TimeModeSpan:
	default:
		return fmt.Errorf("%w: dataset %s has unknown time mode %q", schema.ErrConfig, s.Name, s.TimeMode)
	}
	if s.TimeMode == TimeModeSpan && s.ResolutionColumn == "" {
		return fmt.Errorf("%w: dataset %s uses span mode without a resolution column", schema.ErrConfig, s.Name)
	}

	for i, c := range s.Columns {
		alias := schema.Canonical(c.Alias)
		if reservedColumns[alias] {
			return fmt.Errorf("%w: dataset %s column %d uses reserved name %q", schema.ErrConfig, s.Name, i, alias)
		}
		if c.Convert != "" {
			if _, ok := LookupConverter(c.Convert); !ok {
				return fmt.Errorf("%w: dataset %s references unknown converter %q", schema.ErrConfig, s.Name, c.Convert)
			}
		}
	}

	if s.IsFanOut() && !strings.Contains(s.Output, "%s") && s.FileTable == "" {
		return fmt.Errorf("%w: dataset %s fans out but output %q has no %%s placeholder", schema.ErrConfig, s.Name, s.Output)
	}

	return nil
}
