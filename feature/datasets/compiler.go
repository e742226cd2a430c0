package datasets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"data-manager/core/database"
	"data-manager/core/schema"
	"data-manager/core/utils"

	"go.uber.org/zap"
)

// PlannedColumn is one projected column with its formatting plan.
type PlannedColumn struct {
	// Name is the output name: the alias when configured, otherwise the
	// canonical source name.
	Name string
	// Verb is the fmt verb this column feeds.
	Verb byte
	// Convert is applied to the value before formatting; nil when the
	// column has no converter.
	Convert Converter
}

// CompiledQuery is the result of compiling a dataset definition.
type CompiledQuery struct {
	SQL  string
	Args []any

	// Columns is the plan for the dataset's declared projection. When
	// HasFileColumn is true a leading file-identity value precedes these
	// in every result row.
	Columns       []PlannedColumn
	HasFileColumn bool

	// TsIndex is the position of the timestamp column within Columns,
	// -1 when the dataset projects no timestamp.
	TsIndex int

	FormatStr string
	Header    string
	Delimiter string
}

// Compiler builds SQL text from dataset definitions. Identifier names are
// canonicalized and re-quoted at every interpolation site; literal values
// flow through bound parameters.
type Compiler struct {
	backend database.Backend
	states  *StateRegistry
	log     *zap.Logger
}

// NewCompiler creates a compiler. backend is only consulted for span-mode
// preliminary queries; states provides delta watermarks.
func NewCompiler(backend database.Backend, states *StateRegistry, log *zap.Logger) *Compiler {
	return &Compiler{backend: backend, states: states, log: log}
}

// Compile turns a dataset definition into SQL text plus a column plan. A
// configuration error aborts only this dataset.
func (c *Compiler) Compile(spec Spec) (*CompiledQuery, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}

	multi := len(spec.Tables) > 1
	if multi && spec.Join == "" {
		return nil, fmt.Errorf("%w: dataset %s joins %d tables without a join column",
			schema.ErrConfig, spec.Name, len(spec.Tables))
	}

	q := &CompiledQuery{TsIndex: -1, Delimiter: spec.Delim()}
	var args []any

	// Projection.
	var proj []string
	if spec.IsFanOut() {
		q.HasFileColumn = true
		if spec.FileTable != "" {
			proj = append(proj, "DF."+schema.NewIdentifier(spec.FilePathColumn).Quoted())
		} else {
			proj = append(proj, c.columnExpr(spec, multi, ColumnRef{Name: spec.FileColumn}))
		}
	}
	for i, col := range spec.Columns {
		expr := c.columnExpr(spec, multi, col)
		if col.Alias != "" {
			expr += " AS " + schema.NewIdentifier(col.Alias).Quoted()
		}
		proj = append(proj, expr)

		plan := PlannedColumn{Name: spec.OutputName(i)}
		if col.Convert != "" {
			plan.Convert, _ = LookupConverter(col.Convert)
		}
		q.Columns = append(q.Columns, plan)

		if spec.TimeColumn != "" && q.TsIndex < 0 &&
			(schema.SameName(col.Name, spec.TimeColumn) || schema.SameName(col.Alias, spec.TimeColumn)) {
			q.TsIndex = i
		}
	}

	// FROM clause.
	var from []string
	for i, t := range spec.Tables {
		quoted := schema.NewIdentifier(t).Quoted()
		if multi {
			from = append(from, fmt.Sprintf("%s AS D%d", quoted, i+1))
		} else {
			from = append(from, quoted)
		}
	}
	if spec.IsFanOut() && spec.FileTable != "" {
		from = append(from, schema.NewIdentifier(spec.FileTable).Quoted()+" AS DF")
	}

	// WHERE conjuncts.
	var where []string
	if multi {
		join := schema.NewIdentifier(spec.Join).Quoted()
		for k := 2; k <= len(spec.Tables); k++ {
			where = append(where, fmt.Sprintf("D1.%s=D%d.%s", join, k, join))
		}
	}
	if spec.IsFanOut() && spec.FileTable != "" {
		fan := c.columnExpr(spec, multi, ColumnRef{Name: spec.FileColumn})
		where = append(where, fmt.Sprintf("DF.%s=%s", schema.NewIdentifier(spec.FileColumn).Quoted(), fan))
	}
	if spec.Filter != "" {
		where = append(where, "("+spec.Filter+")")
	}

	tsExpr := ""
	if spec.TimeColumn != "" {
		tsExpr = c.columnExpr(spec, multi, ColumnRef{Name: spec.TimeColumn})
	}

	if spec.IsDelta() {
		if tsExpr == "" {
			return nil, fmt.Errorf("%w: dataset %s uses delta renewal without a time column",
				schema.ErrConfig, spec.Name)
		}
		watermark := c.deltaWatermark(spec)
		where = append(where, tsExpr+" > ?")
		args = append(args, watermark)
	}

	if spec.TimeMode == TimeModeSpan {
		clause, spanArgs, err := c.spanClause(spec, multi, tsExpr)
		if err != nil {
			return nil, err
		}
		if clause != "" {
			where = append(where, clause)
			args = append(args, spanArgs...)
		}
	}

	// Ordering. Fan-out requires the query ordered by file column first,
	// then timestamp, so handle switching works.
	order, err := c.orderClause(spec, multi, tsExpr)
	if err != nil {
		return nil, err
	}

	sql := "SELECT " + strings.Join(proj, ",") + " FROM " + strings.Join(from, ",")
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	if order != "" {
		sql += " ORDER BY " + order
	}

	q.SQL = sql
	q.Args = args

	if err := c.plformat(spec, q); err != nil {
		return nil, err
	}

	return q, nil
}

// columnExpr renders one source column reference. Plain identifiers are
// canonicalized and re-quoted; expressions pass through verbatim. A column
// matching the join key is always qualified against the first table.
func (c *Compiler) columnExpr(spec Spec, multi bool, col ColumnRef) string {
	if strings.ContainsAny(col.Name, "( )*+/") {
		return col.Name
	}

	quoted := schema.NewIdentifier(col.Name).Quoted()
	if !multi {
		return quoted
	}

	if schema.SameName(col.Name, spec.Join) {
		return "D1." + quoted
	}
	prefix := "D1"
	if col.Table != "" {
		for i, t := range spec.Tables {
			if schema.SameName(t, col.Table) {
				prefix = fmt.Sprintf("D%d", i+1)
				break
			}
		}
	}
	return prefix + "." + quoted
}

// deltaWatermark picks the watermark restricting a delta query. A fan-out
// dataset uses the smallest watermark among its files so the file furthest
// behind misses nothing; the exporter re-filters per file.
func (c *Compiler) deltaWatermark(spec Spec) int64 {
	if spec.IsFanOut() {
		return c.states.MinWatermark(spec.Output)
	}
	return c.states.Watermark(spec.Output)
}

// spanClause builds the WHERE disjunction for tiered-resolution history.
// A preliminary query returns the minimum timestamp per resolution; each
// tier then only contributes rows strictly before the next-finer tier's
// minimum, which prevents counting the same time range twice.
func (c *Compiler) spanClause(spec Spec, multi bool, tsExpr string) (string, []any, error) {
	if tsExpr == "" {
		return "", nil, fmt.Errorf("%w: dataset %s uses span mode without a time column",
			schema.ErrConfig, spec.Name)
	}
	resExpr := c.columnExpr(spec, multi, ColumnRef{Name: spec.ResolutionColumn})

	prelim := fmt.Sprintf("SELECT %s AS res,MIN(%s) AS mints FROM %s GROUP BY %s",
		schema.NewIdentifier(spec.ResolutionColumn).Quoted(),
		schema.NewIdentifier(spec.TimeColumn).Quoted(),
		schema.NewIdentifier(spec.Tables[0]).Quoted(),
		schema.NewIdentifier(spec.ResolutionColumn).Quoted())

	mins, err := c.backend.ExecuteScalarMap(prelim, "res", "mints")
	if err != nil {
		return "", nil, err
	}
	if len(mins) == 0 {
		return "", nil, nil
	}

	// Finest resolution first.
	tiers := make([]string, 0, len(mins))
	for res := range mins {
		tiers = append(tiers, res)
	}
	sort.Slice(tiers, func(i, j int) bool {
		return utils.ToInt64(tiers[i]) < utils.ToInt64(tiers[j])
	})

	parts := make([]string, 0, len(tiers))
	var args []any
	for i, res := range tiers {
		if i == 0 {
			parts = append(parts, fmt.Sprintf("%s = ?", resExpr))
			args = append(args, utils.ToInt64(res))
			continue
		}
		parts = append(parts, fmt.Sprintf("(%s = ? AND %s < ?)", resExpr, tsExpr))
		args = append(args, utils.ToInt64(res), utils.ToInt64(mins[tiers[i-1]]))
	}

	return "(" + strings.Join(parts, " OR ") + ")", args, nil
}

// orderClause renders the ORDER BY list. Without an explicit order the
// dataset is ordered ascending by its timestamp column; a dataset with
// neither is a configuration error.
func (c *Compiler) orderClause(spec Spec, multi bool, tsExpr string) (string, error) {
	if spec.IsFanOut() {
		fan := c.columnExpr(spec, multi, ColumnRef{Name: spec.FileColumn})
		if tsExpr != "" {
			return fan + "," + tsExpr, nil
		}
		return fan, nil
	}

	if len(spec.Order) > 0 {
		parts := make([]string, 0, len(spec.Order))
		for _, o := range spec.Order {
			expr := c.columnExpr(spec, multi, ColumnRef{Name: o.Column})
			if strings.EqualFold(o.Dir, "desc") {
				expr += " DESC"
			}
			parts = append(parts, expr)
		}
		return strings.Join(parts, ","), nil
	}

	if tsExpr == "" {
		return "", fmt.Errorf("%w: dataset %s has neither a time column nor an explicit order",
			schema.ErrConfig, spec.Name)
	}
	return tsExpr, nil
}

var verbPattern = regexp.MustCompile(`%[-+ #0]*[0-9]*(\.[0-9]+)?[bcdeEfFgGoqstUvxX]`)

// plformat resolves the per-row format string and header.
func (c *Compiler) plformat(spec Spec, q *CompiledQuery) error {
	names := make([]string, len(q.Columns))
	for i, col := range q.Columns {
		names[i] = col.Name
	}

	q.FormatStr = spec.FormatStr
	if q.FormatStr == "" {
		fields := make([]string, len(q.Columns))
		for i := range fields {
			fields[i] = "%v"
		}
		q.FormatStr = strings.Join(fields, q.Delimiter)
	}

	q.Header = spec.Header
	if q.Header == "" {
		q.Header = strings.Join(names, q.Delimiter)
		if spec.Format == FormatDAT {
			q.Header = "#" + q.Header
		}
	}

	// Bind each placeholder verb to its column so the exporter can convert
	// driver values to the matching argument type.
	verbs := verbPattern.FindAllString(q.FormatStr, -1)
	for i, v := range verbs {
		if i < len(q.Columns) {
			q.Columns[i].Verb = v[len(v)-1]
		}
	}
	for i := range q.Columns {
		if q.Columns[i].Verb == 0 {
			q.Columns[i].Verb = 'v'
		}
	}

	return nil
}

// PlaceholderCount returns the number of format placeholders. The exporter
// checks it against the projected width of every row.
func (q *CompiledQuery) PlaceholderCount() int {
	return len(verbPattern.FindAllString(q.FormatStr, -1))
}
