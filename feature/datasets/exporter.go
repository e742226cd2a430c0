package datasets

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"data-manager/core/database"
	"data-manager/core/utils"

	"go.uber.org/zap"
)

// ExportStats summarizes one export run for one dataset.
type ExportStats struct {
	// Rows counts formatted lines written across all output files.
	Rows int
	// Skipped counts rows rejected by the format/arity check.
	Skipped int
	// Filtered counts rows already covered by a file's watermark.
	Filtered int
	// Files counts distinct output files written.
	Files    int
	Duration time.Duration
}

// Exporter consumes a compiled query's row stream and writes formatted
// output files with watermark tracking. Rows are processed one at a time;
// the full result set is never materialized.
type Exporter struct {
	states *StateRegistry
	log    *zap.Logger
}

// NewExporter creates an exporter over a state registry. The registry and
// the open output handle are exclusively owned by the exporter while a
// dataset is being processed.
func NewExporter(states *StateRegistry, log *zap.Logger) *Exporter {
	return &Exporter{states: states, log: log}
}

// Export streams the compiled query through the backend and writes the
// dataset's output files. Format mismatches skip the offending row and
// continue; output I/O failures abort the dataset.
func (e *Exporter) Export(spec Spec, q *CompiledQuery, backend database.Backend) (*ExportStats, error) {
	start := time.Now()
	stats := &ExportStats{}
	log := e.log.With(zap.String("dataset", spec.Name))

	sess := newSession(e.states)
	defer sess.Close()

	placeholders := q.PlaceholderCount()
	filesSeen := make(map[string]bool)

	err := backend.Execute(q.SQL, q.Args, func(values []any) error {
		data := values
		path := spec.Output

		if q.HasFileColumn {
			if len(values) < 1 {
				return fmt.Errorf("%w: fan-out row carries no file column", ErrFormatMismatch)
			}
			fileVal := utils.ToString(values[0])
			data = values[1:]
			if spec.FileTable != "" {
				// The joined status table already provides the full path.
				path = fileVal
			} else {
				path = fmt.Sprintf(spec.Output, fileVal)
			}
		}

		state := e.states.Get(path)
		now := time.Now().Unix()

		// Watermark source: the row's timestamp column, or the processing
		// time for datasets without one.
		ts := now
		if q.TsIndex >= 0 && q.TsIndex < len(data) {
			ts = utils.ToInt64(data[q.TsIndex])
		}

		// A fan-out delta query is compiled against the smallest watermark
		// among its files; rows a specific file already has are re-filtered
		// here.
		if spec.IsDelta() && q.TsIndex >= 0 && state.Status == StatusExists && ts <= state.LastTsSaved {
			stats.Filtered++
			return nil
		}

		if len(data) != placeholders {
			log.Error("format placeholder count does not match projected columns, row skipped",
				zap.Int("placeholders", placeholders),
				zap.Int("columns", len(data)))
			stats.Skipped++
			return nil
		}

		line := e.formatRow(log, q, data)

		if err := sess.open(path, q.Header); err != nil {
			return err
		}
		if !filesSeen[path] {
			filesSeen[path] = true
			stats.Files++
		}
		if err := sess.writeLine(line); err != nil {
			return err
		}

		stats.Rows++
		if ts > state.LastTsSaved {
			state.LastTsSaved = ts
		}
		state.ModifiedTs = now
		state.Status = StatusExists
		return nil
	})

	if closeErr := sess.Close(); err == nil {
		err = closeErr
	}

	// Zero rows still touch a single-file dataset so a previously tracked
	// file's state is consistently re-evaluated.
	if stats.Rows == 0 && !spec.IsFanOut() {
		e.states.Touch(spec.Output)
	}

	stats.Duration = time.Since(start)
	log.Info("export finished",
		zap.Int("rows", stats.Rows),
		zap.Int("skipped", stats.Skipped),
		zap.Int("filtered", stats.Filtered),
		zap.Int("files", stats.Files),
		zap.Duration("duration", stats.Duration))

	return stats, err
}

var numericPattern = regexp.MustCompile(`^-?[0-9]*\.?[0-9]+([eE][-+]?[0-9]+)?$`)

// formatRow applies the per-column converters, validates numeric
// placeholders, escapes the delimiter inside field values and renders the
// output line.
func (e *Exporter) formatRow(log *zap.Logger, q *CompiledQuery, data []any) string {
	args := make([]any, len(data))
	for i, v := range data {
		col := q.Columns[i]
		if col.Convert != nil {
			v = col.Convert(v)
		}

		switch col.Verb {
		case 'd', 'b', 'o', 'x', 'X', 'U', 'c':
			if s := strings.TrimSpace(utils.ToString(v)); !numericPattern.MatchString(s) {
				// Logged but the row is still written.
				log.Warn("non-numeric value for numeric placeholder",
					zap.String("column", col.Name),
					zap.String("value", s))
			}
			args[i] = utils.ToInt64(v)
		case 'e', 'E', 'f', 'F', 'g', 'G':
			if s := strings.TrimSpace(utils.ToString(v)); !numericPattern.MatchString(s) {
				log.Warn("non-numeric value for numeric placeholder",
					zap.String("column", col.Name),
					zap.String("value", s))
			}
			args[i] = utils.ToFloat64(v)
		default:
			s := utils.ToString(v)
			args[i] = strings.ReplaceAll(s, q.Delimiter, `\`+q.Delimiter)
		}
	}
	return fmt.Sprintf(q.FormatStr, args...)
}
