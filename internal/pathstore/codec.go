package pathstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/udisondev/autopilot/internal/model"
)

// ParseError reports a path file that yielded nothing usable.
type ParseError struct {
	File string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parsing %s line %d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("parsing %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errNoWaypoints = errors.New("no valid waypoints")

// Encode writes p in the path file format: for vendor paths the display name on the
// first line, then one "x,y,z" record per line.
func Encode(w io.Writer, p model.Path) error {
	bw := bufio.NewWriter(w)

	if p.Kind == model.PathVendor {
		name := strings.ReplaceAll(p.VendorName, "\n", " ")
		if _, err := bw.WriteString(name + "\n"); err != nil {
			return fmt.Errorf("writing vendor name: %w", err)
		}
	}
	for _, pt := range p.Points {
		if _, err := bw.WriteString(pt.String() + "\n"); err != nil {
			return fmt.Errorf("writing waypoint: %w", err)
		}
	}
	return bw.Flush()
}

// Decode reads the path file format. Malformed coordinate lines are skipped with a
// warning; a file without a single valid waypoint is a *ParseError. source names the
// file in log lines and errors.
func Decode(r io.Reader, kind model.PathKind, source string) (model.Path, error) {
	p := model.Path{Kind: kind}
	sc := bufio.NewScanner(r)

	lineNo := 0
	if kind == model.PathVendor {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return model.Path{}, fmt.Errorf("reading %s: %w", source, err)
			}
			return model.Path{}, &ParseError{File: source, Err: errors.New("missing vendor name line")}
		}
		lineNo++
		p.VendorName = strings.TrimSpace(sc.Text())
	}

	skipped := 0
	var lastErr *ParseError
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		pt, err := model.ParseVector3(line)
		if err != nil {
			skipped++
			lastErr = &ParseError{File: source, Line: lineNo, Err: err}
			slog.Warn("malformed waypoint skipped", "file", source, "line", lineNo, "error", err)
			continue
		}
		p.Points = append(p.Points, pt)
	}
	if err := sc.Err(); err != nil {
		return model.Path{}, fmt.Errorf("reading %s: %w", source, err)
	}

	if len(p.Points) == 0 {
		if lastErr != nil {
			return model.Path{}, lastErr
		}
		return model.Path{}, &ParseError{File: source, Err: errNoWaypoints}
	}
	if skipped > 0 {
		slog.Warn("path loaded with skipped lines", "file", source, "skipped", skipped, "points", len(p.Points))
	}
	return p, nil
}
