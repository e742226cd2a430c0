package datasets

import (
	"fmt"
	"strings"
	"time"

	"data-manager/core/utils"
)

// Converter transforms one projected value just before formatting.
// Converters are resolved by name at compile time and applied by column
// index per row, never looked up per row.
type Converter func(any) any

var converters = map[string]Converter{
	// Unix timestamp to ISO date-time.
	"isodate": func(v any) any {
		return time.Unix(utils.ToInt64(v), 0).UTC().Format("2006-01-02 15:04:05")
	},
	// Unix timestamp to calendar date.
	"date": func(v any) any {
		return time.Unix(utils.ToInt64(v), 0).UTC().Format("2006-01-02")
	},
	// Bytes to mebibytes.
	"mb": func(v any) any {
		return utils.ToFloat64(v) / (1024 * 1024)
	},
	// Bytes to gibibytes.
	"gb": func(v any) any {
		return utils.ToFloat64(v) / (1024 * 1024 * 1024)
	},
	// Fraction to percentage.
	"percent": func(v any) any {
		return utils.ToFloat64(v) * 100
	},
	// Seconds to whole minutes.
	"minutes": func(v any) any {
		return utils.ToInt64(v) / 60
	},
	"round": func(v any) any {
		return fmt.Sprintf("%.2f", utils.ToFloat64(v))
	},
	"lower": func(v any) any {
		return strings.ToLower(utils.ToString(v))
	},
	"upper": func(v any) any {
		return strings.ToUpper(utils.ToString(v))
	},
}

// LookupConverter resolves a converter by its configured name.
func LookupConverter(name string) (Converter, bool) {
	c, ok := converters[name]
	return c, ok
}

// RegisterConverter installs a host-provided converter. Registering an
// existing name replaces it.
func RegisterConverter(name string, c Converter) {
	converters[name] = c
}
