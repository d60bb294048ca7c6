package helpers

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/delaneyj/cdom/cdom"
)

func init() {
	add("add", func(c *cdom.Call, args []any) (any, error) {
		if len(args) == 0 {
			return 0.0, nil
		}
		acc := arg(args, 0)
		for _, a := range args[1:] {
			acc = cdom.Add(acc, a)
		}
		return acc, nil
	})
	add("sum", func(c *cdom.Call, args []any) (any, error) {
		total := 0.0
		for _, v := range flatten(args) {
			total += numberOrZero(v)
		}
		return total, nil
	})
	add("subtract", func(c *cdom.Call, args []any) (any, error) {
		return fold(args, func(a, b float64) float64 { return a - b }, func(x float64) float64 { return -x }), nil
	})
	add("multiply", func(c *cdom.Call, args []any) (any, error) {
		total := 1.0
		for _, v := range flatten(args) {
			total *= numberOrZero(v)
		}
		return total, nil
	})
	add("divide", func(c *cdom.Call, args []any) (any, error) {
		return fold(args, func(a, b float64) float64 { return a / b }, func(x float64) float64 { return 1 / x }), nil
	})
	add("mod", func(c *cdom.Call, args []any) (any, error) {
		return cdom.Arith("%", arg(args, 0), arg(args, 1)), nil
	})
	add("abs", func(c *cdom.Call, args []any) (any, error) {
		return math.Abs(cdom.ToNumber(arg(args, 0))), nil
	})
	add("average", func(c *cdom.Call, args []any) (any, error) {
		flat := flatten(args)
		if len(flat) == 0 {
			return 0.0, nil
		}
		total := 0.0
		for _, v := range flat {
			total += numberOrZero(v)
		}
		return total / float64(len(flat)), nil
	})
	add("median", func(c *cdom.Call, args []any) (any, error) {
		nums := numbers(args)
		if len(nums) == 0 {
			return 0.0, nil
		}
		slices.Sort(nums)
		mid := len(nums) / 2
		if len(nums)%2 == 1 {
			return nums[mid], nil
		}
		return (nums[mid-1] + nums[mid]) / 2, nil
	})
	add("min", func(c *cdom.Call, args []any) (any, error) {
		out := math.Inf(1)
		for _, n := range numbers(args) {
			out = math.Min(out, n)
		}
		return out, nil
	})
	add("max", func(c *cdom.Call, args []any) (any, error) {
		out := math.Inf(-1)
		for _, n := range numbers(args) {
			out = math.Max(out, n)
		}
		return out, nil
	})
	add("variance", func(c *cdom.Call, args []any) (any, error) {
		return variance(numbers(args)), nil
	})
	add("stddev", func(c *cdom.Call, args []any) (any, error) {
		return math.Sqrt(variance(numbers(args))), nil
	})
	add("round", func(c *cdom.Call, args []any) (any, error) {
		v := arg(args, 0)
		n := cdom.ToNumber(v)
		if math.IsNaN(n) {
			return v, nil
		}
		decimals, _ := cdom.ToInt(argOr(args, 1, 2.0))
		return strconv.FormatFloat(n, 'f', max(decimals, 0), 64), nil
	})
	add("percent", func(c *cdom.Call, args []any) (any, error) {
		n := cdom.ToNumber(arg(args, 0))
		if math.IsNaN(n) {
			return "0%", nil
		}
		decimals, _ := cdom.ToInt(argOr(args, 1, 0.0))
		return strconv.FormatFloat(n*100, 'f', max(decimals, 0), 64) + "%", nil
	})
	add("currency", func(c *cdom.Call, args []any) (any, error) {
		locale := cdom.Stringify(argOr(args, 1, "en-US"))
		code := cdom.Stringify(argOr(args, 2, "USD"))
		n := cdom.ToNumber(arg(args, 0))
		if math.IsNaN(n) {
			n = 0
		}
		return formatCurrency(n, locale, code), nil
	})
}

func numbers(args []any) []float64 {
	var out []float64
	for _, v := range flatten(args) {
		if n := cdom.ToNumber(v); !math.IsNaN(n) {
			out = append(out, n)
		}
	}
	return out
}

// fold reduces the flattened arguments left to right. A single argument is
// passed through unary instead.
func fold(args []any, op func(a, b float64) float64, unary func(float64) float64) float64 {
	flat := flatten(args)
	switch len(flat) {
	case 0:
		return 0
	case 1:
		return unary(numberOrZero(flat[0]))
	}
	acc := numberOrZero(flat[0])
	for _, v := range flat[1:] {
		acc = op(acc, numberOrZero(v))
	}
	return acc
}

func variance(nums []float64) float64 {
	if len(nums) == 0 {
		return 0
	}
	mean := 0.0
	for _, n := range nums {
		mean += n
	}
	mean /= float64(len(nums))
	total := 0.0
	for _, n := range nums {
		total += (n - mean) * (n - mean)
	}
	return total / float64(len(nums))
}

var currencySymbols = map[string]string{
	"USD": "$", "EUR": "€", "GBP": "£", "JPY": "¥", "INR": "₹", "CNY": "CN¥",
	"CAD": "CA$", "AUD": "A$", "CHF": "CHF ",
}

// zero-decimal currencies
var wholeCurrencies = map[string]bool{"JPY": true, "KRW": true}

// formatCurrency covers the common locale conventions: en prefixes the
// symbol with comma grouping, most continental locales suffix it with dot
// grouping and a decimal comma.
func formatCurrency(n float64, locale, code string) string {
	code = strings.ToUpper(code)
	symbol, ok := currencySymbols[code]
	if !ok {
		symbol = code + " "
	}
	pattern := "#,###.##"
	suffix := false
	switch strings.ToLower(strings.SplitN(locale, "-", 2)[0]) {
	case "en", "ja", "zh", "ko", "hi":
	case "fr":
		pattern, suffix = "# ###,##", true
	default:
		pattern, suffix = "#.###,##", true
	}
	if wholeCurrencies[code] {
		pattern = pattern[:len(pattern)-2]
		n = math.Round(n)
	}
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	digits := humanize.FormatFloat(pattern, n)
	if suffix {
		return sign + digits + " " + strings.TrimSpace(symbol)
	}
	return sign + symbol + digits
}
