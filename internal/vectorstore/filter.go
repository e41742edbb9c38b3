package vectorstore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// filterColumns maps filter field names to document columns. Only
// these fields are queryable; anything else makes the filter
// unparseable.
var filterColumns = map[string]string{
	"id":            "id",
	"relativePath":  "relative_path",
	"relative_path": "relative_path",
	"fileExtension": "file_extension",
	"fileextension": "file_extension",
	"startLine":     "start_line",
	"endLine":       "end_line",
}

var (
	eqPattern = regexp.MustCompile(`^\s*(\w+)\s*==\s*'((?:[^'\\]|\\.)*)'\s*$`)
	inPattern = regexp.MustCompile(`^\s*(\w+)\s+in\s+\[(.*)\]\s*$`)
	litPattern = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'`)
)

// parseFilter translates the minimal filter grammar into a SQL WHERE
// fragment with bind args:
//
//	field == 'literal'
//	field in ['a', 'b', ...]
//
// An empty filter matches everything. An unparseable filter produces
// a warning and matches everything rather than failing the query.
func parseFilter(filter string) (string, []any) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return "", nil
	}

	if m := eqPattern.FindStringSubmatch(filter); m != nil {
		col, ok := filterColumns[m[1]]
		if !ok {
			return warnUnparseable(filter, "unknown field "+m[1])
		}
		return col + " = ?", []any{unescape(m[2])}
	}

	if m := inPattern.FindStringSubmatch(filter); m != nil {
		col, ok := filterColumns[m[1]]
		if !ok {
			return warnUnparseable(filter, "unknown field "+m[1])
		}
		lits := litPattern.FindAllStringSubmatch(m[2], -1)
		if len(lits) == 0 {
			return warnUnparseable(filter, "empty list")
		}
		placeholders := make([]string, len(lits))
		args := make([]any, len(lits))
		for i, lit := range lits {
			placeholders[i] = "?"
			args[i] = unescape(lit[1])
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ",")), args
	}

	return warnUnparseable(filter, "unsupported expression")
}

func warnUnparseable(filter, reason string) (string, []any) {
	logrus.WithFields(logrus.Fields{
		"component": "vectorstore",
		"filter":    filter,
		"reason":    reason,
	}).Warn("unparseable filter, returning unfiltered results")
	return "", nil
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\'`, `'`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}
