package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/delaneyj/cdom/cdom"
	"github.com/delaneyj/cdom/helpers"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

func main() {
	log.Print("Starting compile benchmark, please wait...")
	defer log.Print("Finished compile benchmark")

	cfgs := []benchmarkTestConfig{
		{
			name:        "arithmetic",
			expression:  "(/n + 1) * 2 - /n % 3",
			iterations:  200000,
			expectedSum: 200001 * 200000,
		},
		{
			name:       "helper calls",
			expression: "sum(/n, max(1, 2, 3), round(/n / 3, 2))",
			iterations: 100000,
		},
		{
			name:       "deep path",
			expression: "/app/user/profile/name",
			iterations: 200000,
		},
		{
			name:       "ternary and logic",
			expression: "/n > 10 && /n < 1000 ? 'mid' : 'edge'",
			iterations: 200000,
		},
		{
			name:       "template",
			expression: "Hello =(/app/user/profile/name), you have =(/n) items",
			template:   true,
			iterations: 100000,
		},
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"test", "mode", "nTimes", "time", "evalRate", "result",
	})

	testRepeats := 5
	for _, cfg := range cfgs {
		for _, mode := range []string{"cached", "cold"} {
			log.Printf("Running '%s' %s", cfg.name, mode)

			best := time.Hour
			var last any
			for i := 0; i < testRepeats; i++ {
				sys := newSystem()
				start := time.Now()
				last = run(sys, cfg, mode == "cold")
				if d := time.Since(start); d < best {
					best = d
				}
			}

			if cfg.expectedSum != 0 && mode == "cached" && cdom.ToNumber(last) != cfg.expectedSum {
				log.Fatalf("%s: got %v, want %v", cfg.name, last, cfg.expectedSum)
			}

			rate := float64(cfg.iterations) / (float64(best) / float64(time.Millisecond))
			table.Append([]string{
				cfg.name,
				mode,
				humanize.Comma(cfg.iterations),
				fmt.Sprint(best),
				humanize.Comma(int64(rate)) + "/ms",
				cdom.Stringify(last),
			})
		}
	}
	table.Render()
}

type benchmarkTestConfig struct {
	name        string  // friendly name, should be unique
	expression  string  // source evaluated every iteration
	template    bool    // interpolate instead of evaluating
	iterations  int64   // evaluations per run
	expectedSum float64 // sum of results when the run is cached, zero to skip
}

func newSystem() *cdom.System {
	sys := cdom.New(cdom.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	helpers.Register(sys)
	if _, err := sys.Signal(100000, cdom.WithName("n")); err != nil {
		log.Fatal(err)
	}
	if _, err := sys.State(map[string]any{
		"user": map[string]any{"profile": map[string]any{"name": "Ada"}},
	}, cdom.WithName("app")); err != nil {
		log.Fatal(err)
	}
	return sys
}

// run evaluates cfg.iterations times. Cold runs make every source unique so
// each one misses the compile cache. Numeric results are summed.
func run(sys *cdom.System, cfg benchmarkTestConfig, cold bool) any {
	var (
		last any
		sum  float64
	)
	for i := int64(0); i < cfg.iterations; i++ {
		src := cfg.expression
		if cold {
			src = fmt.Sprintf("%s%*s", src, int(i%64)+1, "")
			if i%64 == 0 {
				sys = newSystem()
			}
		}
		if cfg.template {
			last = sys.Interpolate(src, nil, nil)
		} else {
			last = sys.Eval(src, nil, nil)
		}
		if f, ok := last.(float64); ok {
			sum += f
		}
	}
	if sum != 0 {
		return sum
	}
	return last
}
