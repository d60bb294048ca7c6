package helpers

import (
	"math"
	"strings"
	"time"

	"github.com/delaneyj/cdom/cdom"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.DateOnly,
	"2006/01/02",
	"01/02/2006",
}

var msPer = map[string]float64{
	"ms":      1,
	"seconds": 1000,
	"minutes": 60 * 1000,
	"hours":   60 * 60 * 1000,
	"days":    24 * 60 * 60 * 1000,
}

func init() {
	add("datediff", func(c *cdom.Call, args []any) (any, error) {
		unit := cdom.Stringify(argOr(args, 2, "days"))
		return dateDiff(arg(args, 0), arg(args, 1), unit), nil
	})
	add("datedif", func(c *cdom.Call, args []any) (any, error) {
		unit := strings.ToUpper(cdom.Stringify(argOr(args, 2, "D")))
		return dateDiff(arg(args, 0), arg(args, 1), unit), nil
	})
}

// dateDiff measures end minus start. Y and M count calendar boundaries,
// everything else is elapsed time in the named unit (days by default).
func dateDiff(startV, endV any, unit string) float64 {
	start, ok1 := parseDate(startV)
	end, ok2 := parseDate(endV)
	if !ok1 || !ok2 {
		return math.NaN()
	}
	switch unit {
	case "Y":
		return float64(end.Year() - start.Year())
	case "M":
		return float64((end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month()))
	case "D":
		unit = "days"
	}
	per, ok := msPer[unit]
	if !ok {
		per = msPer["days"]
	}
	return float64(end.Sub(start).Milliseconds()) / per
}

// parseDate accepts ISO-style strings and epoch milliseconds. Date-only
// strings are UTC.
func parseDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case float64:
		return time.UnixMilli(int64(x)).UTC(), true
	case string:
		x = strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
