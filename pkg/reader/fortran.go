package reader

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
)

// ColumnType classifies what a fixed-width column parses to
type ColumnType int

const (
	ColumnFloat ColumnType = iota
	ColumnInt
	ColumnString
)

// ColumnSpec is one field of a fixed-width row, covering the byte range
// [Start, End) of the line
type ColumnSpec struct {
	Start int
	End   int
	Type  ColumnType
}

var (
	groupRepeatRe  = regexp.MustCompile(`^(\d+)\((.*)\)$`)
	inlineRepeatRe = regexp.MustCompile(`(?i)^(\d+)([A-Z]\d+(\.\d+)?)$`)
	floatFieldRe   = regexp.MustCompile(`(?i)^F(\d+)\.\d+$`)
	intFieldRe     = regexp.MustCompile(`(?i)^I(\d+)$`)
	skipFieldRe    = regexp.MustCompile(`(?i)^(\d+)X$`)
	stringFieldRe  = regexp.MustCompile(`(?i)^A(\d+)$`)
)

// ParseFortranFormat interprets a Fortran format statement such as
// (F10.5, 2I4, I6, 1X, 70(F12.3,a1)) and returns the column layout it
// describes. Skip fields (nX) advance the offset without producing a
// column.
func ParseFortranFormat(format string) ([]ColumnSpec, error) {
	format = strings.TrimSpace(format)
	if strings.HasPrefix(format, "(") && strings.HasSuffix(format, ")") {
		format = strings.TrimSpace(format[1 : len(format)-1])
	}
	p := &formatParser{}
	if err := p.parseList(format); err != nil {
		return nil, err
	}
	return p.specs, nil
}

type formatParser struct {
	specs  []ColumnSpec
	offset int
}

func (p *formatParser) add(width int, typ ColumnType) {
	p.specs = append(p.specs, ColumnSpec{Start: p.offset, End: p.offset + width, Type: typ})
	p.offset += width
}

// parseList splits on commas outside parentheses and parses each token
func (p *formatParser) parseList(format string) error {
	depth, start := 0, 0
	for i := 0; i < len(format); i++ {
		switch format[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				if err := p.parseToken(format[start:i]); err != nil {
					return err
				}
				start = i + 1
			}
		}
	}
	return p.parseToken(format[start:])
}

func (p *formatParser) parseToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	if m := groupRepeatRe.FindStringSubmatch(token); m != nil {
		n, _ := strconv.Atoi(m[1])
		inner := strings.TrimSpace(m[2])
		for i := 0; i < n; i++ {
			if err := p.parseList(inner); err != nil {
				return err
			}
		}
		return nil
	}
	if m := inlineRepeatRe.FindStringSubmatch(token); m != nil {
		n, _ := strconv.Atoi(m[1])
		for i := 0; i < n; i++ {
			if err := p.parseToken(m[2]); err != nil {
				return err
			}
		}
		return nil
	}
	if m := floatFieldRe.FindStringSubmatch(token); m != nil {
		w, _ := strconv.Atoi(m[1])
		p.add(w, ColumnFloat)
		return nil
	}
	if m := intFieldRe.FindStringSubmatch(token); m != nil {
		w, _ := strconv.Atoi(m[1])
		p.add(w, ColumnInt)
		return nil
	}
	if m := skipFieldRe.FindStringSubmatch(token); m != nil {
		w, _ := strconv.Atoi(m[1])
		p.offset += w
		return nil
	}
	if m := stringFieldRe.FindStringSubmatch(token); m != nil {
		w, _ := strconv.Atoi(m[1])
		p.add(w, ColumnString)
		return nil
	}
	if topLevelComma(token) {
		return p.parseList(token)
	}
	return pipeline.Errorf(pipeline.KindMalformedInput, pipeline.Unit{},
		"unrecognized format token %q", token)
}

func topLevelComma(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				return true
			}
		}
	}
	return false
}

// cells slices a fixed-width line into trimmed strings, one per column.
// Columns beyond the end of the line come back empty.
func cells(line string, specs []ColumnSpec) []string {
	out := make([]string, len(specs))
	for i, spec := range specs {
		start, end := spec.Start, spec.End
		if start > len(line) {
			start = len(line)
		}
		if end > len(line) {
			end = len(line)
		}
		out[i] = strings.TrimSpace(line[start:end])
	}
	return out
}
