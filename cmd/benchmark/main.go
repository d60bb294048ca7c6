package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/delaneyj/cdom/cdom"
	"github.com/delaneyj/cdom/helpers"
	"github.com/delaneyj/cdom/render"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
)

var profile = flag.String("pgo", "default.pgo", "write a CPU profile here, empty to skip")

func main() {
	flag.Parse()

	if *profile != "" {
		f, err := os.Create(*profile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	log.Printf("warming up")
	benchmarkFanOut(false)

	benchmarkFanOut(true)
	benchmarkBatch(true)
}

var (
	ww    = []int{1, 10, 100, 1_000}
	hh    = []int{1, 10, 100}
	iters = 100
)

func quiet() *cdom.System {
	sys := cdom.New(cdom.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	helpers.Register(sys)
	return sys
}

func pass(any) {}

func newTable(title string) table.Writer {
	tbl := table.NewWriter()
	tbl.SetTitle(title)
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})
	return tbl
}

func appendCalc(tbl table.Writer, name string, tach *tachymeter.Tachymeter) {
	calc := tach.Calc()
	tbl.AppendRows([]table.Row{
		{
			name,
			calc.Time.Avg,
			calc.Time.Min,
			calc.Time.P75,
			calc.Time.P99,
			calc.Time.Max,
		},
	})
}

// benchmarkFanOut times one write to a signal read by w bound expressions,
// each h additions deep.
func benchmarkFanOut(shouldRender bool) {
	tbl := newTable("Expression fan-out")

	for _, w := range ww {
		for _, h := range hh {
			tach := tachymeter.New(&tachymeter.Config{Size: iters})

			sys := quiet()
			src, err := sys.Signal(1, cdom.WithName("src"))
			if err != nil {
				log.Fatal(err)
			}
			expr := "/src" + strings.Repeat(" + 1", h)
			for i := 0; i < w; i++ {
				if _, err := sys.BindExpression(expr, nil, pass); err != nil {
					log.Fatal(err)
				}
			}

			for i := 0; i < iters; i++ {
				start := time.Now()
				if err := src.Set(float64(i + 2)); err != nil {
					log.Fatal(err)
				}
				tach.AddTime(time.Since(start))
			}

			appendCalc(tbl, fmt.Sprintf("propagate: %d * %d", w, h), tach)
		}
	}

	if shouldRender {
		tbl.Render()
	}
}

// benchmarkBatch times an external tree edit followed by the coalesced pass
// over w mounted queries.
func benchmarkBatch(shouldRender bool) {
	tbl := newTable("Structural batch")

	for _, w := range ww {
		tach := tachymeter.New(&tachymeter.Config{Size: iters})

		sys := quiet()
		tree := render.New(sys)
		items := make([]any, 0, w)
		for i := 0; i < w; i++ {
			items = append(items, map[string]any{"li": map[string]any{
				"children": []any{map[string]any{"$": "#title"}},
			}})
		}
		if err := tree.Render([]any{
			map[string]any{"h1": map[string]any{"id": "title", "children": []any{"start"}}},
			map[string]any{"ul": map[string]any{"children": items}},
		}); err != nil {
			log.Fatal(err)
		}
		sys.Drain()
		title, err := tree.Find(tree.Root, "#title")
		if err != nil || len(title) == 0 {
			log.Fatalf("title missing: %v", err)
		}

		for i := 0; i < iters; i++ {
			start := time.Now()
			tree.SetText(title[0], fmt.Sprintf("title %d", i))
			sys.Drain()
			tach.AddTime(time.Since(start))
		}

		appendCalc(tbl, fmt.Sprintf("batch: %d queries", w), tach)
	}

	if shouldRender {
		tbl.Render()
	}
}
