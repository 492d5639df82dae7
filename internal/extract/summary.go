package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var summaryLineRe = regexp.MustCompile(`(?i)^\d[\d,]*\s+(records?|people|persons?|results?|matches)\b`)

// Summary is the parsed result-count line of a search page.
type Summary struct {
	Text    string
	Count   int
	Numeric bool
}

// ParseSummary reads the leading integer token of text. Thousands
// separators are accepted. A text with no leading number is not Numeric.
func ParseSummary(text string) Summary {
	text = strings.TrimSpace(text)
	s := Summary{Text: text}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return s
	}
	n, err := strconv.Atoi(strings.ReplaceAll(fields[0], ",", ""))
	if err != nil {
		return s
	}
	s.Count = n
	s.Numeric = true
	return s
}

// SummaryFromText finds the first line that looks like "3 records found".
func SummaryFromText(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if summaryLineRe.MatchString(line) {
			return line, true
		}
	}
	return "", false
}
