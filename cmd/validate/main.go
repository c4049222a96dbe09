// Command validate decodes every mosaic file in a directory and checks it
// stage by stage: header, payload, grid invariants and the derived product
// summary. It exits non-zero if any file fails a stage.
//
// Usage:
//
//	go run ./cmd/validate -dir internal/mosaic/testdata
//	go run ./cmd/validate -dir /data/radar/ACHN -json > products.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/storm-mosaic-etl/internal/domain"
	"github.com/couchcryptid/storm-mosaic-etl/internal/mosaic"
	"github.com/jonboulle/clockwork"
)

// processedAt pins ProcessedAt so -json output is reproducible.
var processedAt = time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)

// phase tracks pass/fail for a validation phase across all files.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type report struct {
	header, payload, grid, product *phase
	files                          int
	classes                        map[string]int
	products                       []domain.MosaicProduct
}

func newReport() *report {
	return &report{
		header:  &phase{name: "Phase 1: Header parsing"},
		payload: &phase{name: "Phase 2: Payload decompression"},
		grid:    &phase{name: "Phase 3: Grid invariants"},
		product: &phase{name: "Phase 4: Product summary"},
		classes: map[string]int{},
	}
}

func (r *report) phases() []*phase {
	return []*phase{r.header, r.payload, r.grid, r.product}
}

func main() {
	dir := flag.String("dir", "", "directory containing .moc files")
	asJSON := flag.Bool("json", false, "print decoded product summaries as JSON on stdout")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir, *asJSON, os.Stdout, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

func run(dir string, asJSON bool, stdout, stderr io.Writer) int {
	domain.SetClock(clockwork.NewFakeClockAt(processedAt))
	defer domain.SetClock(nil)

	paths, err := mosaicFiles(dir)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: list %s: %v\n", dir, err)
		return 1
	}
	if len(paths) == 0 {
		fmt.Fprintf(stderr, "FATAL: no .moc files in %s\n", dir)
		return 1
	}

	// Human-readable output goes to stderr when stdout carries JSON.
	out := stdout
	if asJSON {
		out = stderr
	}

	fmt.Fprintln(out, "=== Radar Mosaic Validation ===")
	fmt.Fprintln(out)

	r := newReport()
	for _, path := range paths {
		r.files++
		validateFile(r, path)
	}

	allPassed := printReport(out, r)

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r.products); err != nil {
			fmt.Fprintf(stderr, "FATAL: encode products: %v\n", err)
			return 1
		}
	}

	if allPassed {
		return 0
	}
	return 1
}

func mosaicFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".moc") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// validateFile runs the decode stages one at a time so a failure is
// attributed to the stage that produced it.
func validateFile(r *report, path string) {
	name := filepath.Base(path)

	f, err := os.Open(path)
	if err != nil {
		r.header.errorf("%s: open: %v", name, err)
		r.classes["io"]++
		return
	}
	defer f.Close()

	buf := make([]byte, mosaic.HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		r.header.errorf("%s: read header: %v", name, err)
		r.classes["format"]++
		return
	}
	h, err := mosaic.ParseHeader(buf)
	if err != nil {
		r.header.errorf("%s: %v", name, err)
		r.classes[mosaic.ErrorClass(err)]++
		return
	}

	payload, err := mosaic.DecodePayload(f, h)
	if err != nil {
		r.payload.errorf("%s: %v", name, err)
		r.classes[mosaic.ErrorClass(err)]++
		return
	}

	g, err := mosaic.BuildGrid(payload, h)
	if err != nil {
		r.grid.errorf("%s: %v", name, err)
		r.classes[mosaic.ErrorClass(err)]++
		return
	}
	checkGrid(r.grid, name, g)

	p := domain.EnrichProduct(domain.NewProduct(g))
	p.SourceFile = name
	checkProduct(r.product, name, p)
	r.products = append(r.products, p)
}

func checkGrid(ph *phase, name string, g *mosaic.Grid) {
	rows, cols := g.Values.Dims()
	if rows != g.Rows() || cols != g.Cols() {
		ph.errorf("%s: values %dx%d but edges describe %dx%d", name, rows, cols, g.Rows(), g.Cols())
	}
	if len(g.Mask) != rows*cols {
		ph.errorf("%s: mask has %d cells, want %d", name, len(g.Mask), rows*cols)
		return
	}
	for i := 1; i < len(g.LonEdges); i++ {
		if g.LonEdges[i] <= g.LonEdges[i-1] {
			ph.errorf("%s: longitude edges not increasing at %d", name, i)
			break
		}
	}
	for i := 1; i < len(g.LatEdges); i++ {
		if g.LatEdges[i] >= g.LatEdges[i-1] {
			ph.errorf("%s: latitude edges not decreasing at %d", name, i)
			break
		}
	}
	for row := range rows {
		for col := range cols {
			v := g.Values.At(row, col)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				ph.errorf("%s: non-finite value at (%d,%d)", name, row, col)
				return
			}
			if g.Masked(row, col) != (v < mosaic.NoDataThreshold) {
				ph.errorf("%s: mask disagrees with value %.2f at (%d,%d)", name, v, row, col)
				return
			}
		}
	}
}

func checkProduct(ph *phase, name string, p domain.MosaicProduct) {
	if p.ID == "" {
		ph.errorf("%s: empty product ID", name)
	}
	if p.Coverage < 0 || p.Coverage > 1 {
		ph.errorf("%s: coverage %.3f outside [0,1]", name, p.Coverage)
	}
	if p.ValidCells > p.Cells {
		ph.errorf("%s: %d valid cells of %d", name, p.ValidCells, p.Cells)
	}
	if p.ValidCells > 0 && p.MaxAt == nil {
		ph.errorf("%s: valid cells but no maximum location", name)
	}
	if p.ObservedAt.IsZero() {
		ph.errorf("%s: missing observation time", name)
	}
	if _, err := domain.SerializeProduct(p); err != nil {
		ph.errorf("%s: %v", name, err)
	}
}

func printReport(w io.Writer, r *report) bool {
	allPassed := true
	for _, p := range r.phases() {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Files: %d checked, %d decoded\n", r.files, len(r.products))
	if len(r.classes) > 0 {
		classes := make([]string, 0, len(r.classes))
		for c, n := range r.classes {
			classes = append(classes, fmt.Sprintf("%s=%d", c, n))
		}
		sort.Strings(classes)
		fmt.Fprintf(w, "Failures by class: %s\n", strings.Join(classes, " "))
	}

	for _, p := range r.phases() {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return true
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return false
}
