package document

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Font is the family and point size stored in the txtfont/nodefont
// attributes. The attribute keeps the comma-separated form written by the
// desktop toolkit ("Monospace,9,-1,5,50,0,0,0,0,0"); fields past the size are
// carried through untouched.
type Font struct {
	Family    string
	PointSize int
	rest      []string
}

// Default fonts for documents that carry no font attributes.
var (
	DefaultTextFont = Font{Family: "Monospace", PointSize: 9}
	DefaultNodeFont = Font{Family: "Sans Serif", PointSize: 9}
)

// ParseFont parses a font attribute value.
func ParseFont(s string) (Font, error) {
	fields := strings.Split(s, ",")
	if len(fields) < 2 || strings.TrimSpace(fields[0]) == "" {
		return Font{}, fmt.Errorf("document: bad font %q", s)
	}
	size, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return Font{}, fmt.Errorf("document: bad font size in %q: %w", s, err)
	}
	// Point sizes may be fractional; they are kept to the nearest point.
	pt := int(math.Round(size))
	if pt < 1 {
		return Font{}, fmt.Errorf("document: font size %v in %q is below 1 point", size, s)
	}
	f := Font{Family: fields[0], PointSize: pt}
	if len(fields) > 2 {
		f.rest = append([]string(nil), fields[2:]...)
	}
	return f, nil
}

// IsZero reports whether f is unset.
func (f Font) IsZero() bool { return f.Family == "" }

// Equal compares family and size.
func (f Font) Equal(o Font) bool {
	return f.Family == o.Family && f.PointSize == o.PointSize
}

// WithSize returns a copy of f at a new point size.
func (f Font) WithSize(pt int) Font {
	f.PointSize = pt
	return f
}

// String renders the attribute form.
func (f Font) String() string {
	if f.IsZero() {
		return ""
	}
	rest := f.rest
	if len(rest) == 0 {
		rest = []string{"-1", "5", "50", "0", "0", "0", "0", "0"}
	}
	return f.Family + "," + strconv.Itoa(f.PointSize) + "," + strings.Join(rest, ",")
}

// TabStopWidth approximates four space advances of f in device pixels.
func (f Font) TabStopWidth() float64 {
	pt := f.PointSize
	if pt <= 0 {
		pt = DefaultTextFont.PointSize
	}
	return 4 * float64(pt) * 0.6 * 96 / 72
}
