// Package mapping resolves logical element names to location
// expressions through a plain-text mapping table: one
// "name <=> expression" pair per line.
package mapping

import (
	"fmt"
	"os"
	"strings"

	"github.com/devicelab-dev/uibridge/pkg/core"
)

// Separator splits a logical name from its expression.
const Separator = "<=>"

// Resolve looks up a logical name in the mapping table at path.
// Blank lines and lines without the separator are skipped. A line with
// the separator but an empty name or expression is malformed. The
// first matching line wins; surrounding quotes on the expression are
// stripped. A miss returns ok=false with no error so callers fall
// through to the next location strategy.
func Resolve(path, logicalName string) (expr string, ok bool, err error) {
	if logicalName == "" {
		return "", false, core.ErrInvalidArgument.WithMessage("logical name must not be empty")
	}
	if path == "" {
		return "", false, core.ErrInvalidArgument.WithMessage("mapping path is not set")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("read mapping file %q: %w", path, err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, Separator) {
			continue
		}
		parts := strings.SplitN(line, Separator, 2)
		name := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if name == "" || value == "" {
			return "", false, core.ErrMalformedMapping.WithMessage("malformed mapping line in %q: %q", path, line)
		}
		if name == logicalName {
			return unquote(value), true, nil
		}
	}
	return "", false, nil
}

// Dump returns the raw contents of the mapping table.
func Dump(path string) (string, error) {
	if path == "" {
		return "", core.ErrInvalidArgument.WithMessage("mapping path is not set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read mapping file %q: %w", path, err)
	}
	return string(data), nil
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
