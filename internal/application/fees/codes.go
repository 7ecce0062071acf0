package fees

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

var codeLine = regexp.MustCompile(`^(\S+)\s+(.*?)\s*$`)

// CodeTable maps a maintenance code to its description.
type CodeTable map[string]string

// Describe returns the description of code, or "" when unknown.
func (t CodeTable) Describe(code string) string {
	return t[code]
}

// ParseCodes reads "<code><whitespace><description>" lines. Blank lines and
// lines holding only a code are ignored.
func ParseCodes(r io.Reader) (CodeTable, error) {
	table := make(CodeTable)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		m := codeLine.FindStringSubmatch(text)
		if m == nil || m[2] == "" {
			continue
		}
		table[m[1]] = m[2]
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeParseFeeCodes, "read fee code table")
	}
	return table, nil
}
