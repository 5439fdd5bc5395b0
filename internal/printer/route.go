package printer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// ---------------------------------------------------------------------------
// Rendering fan-out and Output Router
//
// Rendering is a pure read over the immutable IR, so selected modules render
// concurrently.  Results keep container order; only stream output needs
// serializing, and that happens by draining results in order.
// ---------------------------------------------------------------------------

// Result is one module's rendered text, or the error that stopped it.
// A failed module never produces partial text.
type Result struct {
	Selected
	Text []byte
	Err  error
}

// Render renders every selected module concurrently and returns results in
// selection order.  Per-module failures land in Result.Err; they do not
// abort sibling modules.
func Render(sel []Selected, opts Options) []Result {
	results := make([]Result, len(sel))
	var wg sync.WaitGroup
	for i, s := range sel {
		wg.Add(1)
		go func(i int, s Selected) {
			defer wg.Done()
			results[i] = renderOne(s, opts)
		}(i, s)
	}
	wg.Wait()
	return results
}

func renderOne(s Selected, opts Options) Result {
	res := Result{Selected: s}
	p, err := New(s.Module, opts)
	if err != nil {
		res.Err = fmt.Errorf("module %d (%s): %w", s.Index, s.Module.Name, err)
		return res
	}
	var buf bytes.Buffer
	if err := p.Print(&buf); err != nil {
		res.Err = fmt.Errorf("module %d (%s): %w", s.Index, s.Module.Name, err)
		return res
	}
	res.Text = buf.Bytes()
	return res
}

// Errs collects the per-module errors of a render batch.
func Errs(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Output paths
// ---------------------------------------------------------------------------

// OutputPath maps a path template and a module index to the module's output
// file.  Module 0 takes the template unchanged; module i >= 1 appends i to
// the template's base name: "x.s" -> "x.s", "x1.s", "x2.s", ...
// Pure function; the numbering is a fixed contract.
func OutputPath(template string, index int) string {
	if index == 0 {
		return template
	}
	ext := filepath.Ext(template)
	return template[:len(template)-len(ext)] + strconv.Itoa(index) + ext
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

// RouteStream writes successful results to one stream in selection order.
// Returns the joined per-module render errors, if any.
func RouteStream(w io.Writer, results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		if _, err := w.Write(r.Text); err != nil {
			errs = append(errs, fmt.Errorf("writing module %d: %w", r.Index, err))
		}
	}
	return errors.Join(errs...)
}

// RouteFiles writes each successful result to OutputPath(template, index).
// progress, when non-nil, is called after each file is written.  Returns
// the joined per-module errors; a failed module writes no file.
func RouteFiles(template string, results []Result, progress func(path string)) (paths []string, err error) {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		path := OutputPath(template, r.Index)
		if werr := os.WriteFile(path, r.Text, 0o644); werr != nil {
			errs = append(errs, fmt.Errorf("module %d: cannot write %s: %w", r.Index, path, werr))
			continue
		}
		paths = append(paths, path)
		if progress != nil {
			progress(path)
		}
	}
	return paths, errors.Join(errs...)
}
