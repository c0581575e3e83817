package timeparsing

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// nlpParser is shared; when parsers are stateless after rule registration.
var nlpParser = newNLPParser()

func newNLPParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseNaturalLanguage resolves an English time expression ("tomorrow",
// "next monday at 2pm", "3 days ago") against base. The whole input must
// be consumed: a match on an embedded fragment would silently reinterpret
// inputs meant for the absolute-date layer, so partial matches are
// rejected rather than trusted.
func ParseNaturalLanguage(s string, base time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	r, err := nlpParser.Parse(trimmed, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %q: %w", s, err)
	}
	if r == nil || strings.TrimSpace(r.Text) != trimmed {
		return time.Time{}, fmt.Errorf("unrecognized time expression %q", s)
	}
	return r.Time, nil
}
