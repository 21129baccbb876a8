package intent

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/WessleyAI/congress-qa/engine/domain"
)

var (
	// billRe matches "hr 1234", "h.r. 1234", "s. 99" and "s 99". The prefix
	// group keeps possessives like "Biden's 2024" from reading as S 2024.
	billRe = regexp.MustCompile(`(?:^|[^\w'’])(h\.?\s?r\.?|s\.?)\s?(\d{1,5})\b`)
	yearRe = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	// stateCodeRe matches upper-case postal codes, optionally as the suffix
	// of a "R-TX" party label.
	stateCodeRe = regexp.MustCompile(`(?:^|[^A-Za-z])([DRI]-)?([A-Z]{2})\b`)
	titledRe    = regexp.MustCompile(`\b(?:Senator|Sen\.|Representative|Rep\.|Congressman|Congresswoman)\s+([A-Z][A-Za-z'\-]+(?:\s+[A-Z][A-Za-z'\-]+)?)`)
	capNameRe   = regexp.MustCompile(`\b([A-Z][a-z'\-]+)\s+([A-Z][a-z'\-]+)\b`)
	sinceRe     = regexp.MustCompile(`\b(since|after)\s+((?:19|20)\d{2})\b`)
	lastYearRe  = regexp.MustCompile(`\blast year\b`)
	thisYearRe  = regexp.MustCompile(`\bthis year\b`)
	gopRe       = regexp.MustCompile(`\bgop\b`)
)

// extractBills finds bill references in lower-cased text.
func extractBills(lower string) []domain.BillRef {
	var out []domain.BillRef
	seen := map[domain.BillRef]bool{}
	for _, m := range billRe.FindAllStringSubmatch(lower, -1) {
		n, err := strconv.Atoi(m[2])
		if err != nil || n == 0 {
			continue
		}
		typ := strings.NewReplacer(".", "", " ", "").Replace(m[1])
		ref := domain.BillRef{Type: typ, Number: n}
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	return out
}

// extractStateCodes finds postal codes written in upper case. Codes that are
// also English words only count inside a "R-OH" style label.
func extractStateCodes(raw string) []string {
	var out []string
	for _, m := range stateCodeRe.FindAllStringSubmatch(raw, -1) {
		code := m[2]
		if !stateCodes[code] {
			continue
		}
		if ambiguousCodes[code] && m[1] == "" {
			continue
		}
		out = append(out, code)
	}
	return out
}

// extractNames finds likely member names: words after a title, or a pair of
// capitalized words that is not a question opener or a known non-name.
func extractNames(raw string) []string {
	var out []string
	for _, m := range titledRe.FindAllStringSubmatch(raw, -1) {
		out = append(out, m[1])
	}
	for _, m := range capNameRe.FindAllStringSubmatch(raw, -1) {
		first, last := m[1], m[2]
		if questionWords[first] || nonNameWords[first] || nonNameWords[last] {
			continue
		}
		full := first + " " + last
		if _, isState := states[strings.ToLower(full)]; isState {
			continue
		}
		if _, isState := states[strings.ToLower(first)]; isState {
			continue
		}
		out = append(out, full)
	}
	return dedupe(out)
}

func (c *Classifier) extractEntities(q *query) domain.Entities {
	ents := domain.Entities{
		Bills: q.bills,
		Names: extractNames(q.raw),
	}

	var st []string
	for _, m := range stateRe.FindAllString(q.lower, -1) {
		st = append(st, states[m])
	}
	ents.States = dedupe(append(st, extractStateCodes(q.raw)...))

	if strings.Contains(q.lower, "democrat") {
		ents.Parties = append(ents.Parties, "D")
	}
	if strings.Contains(q.lower, "republican") || gopRe.MatchString(q.lower) {
		ents.Parties = append(ents.Parties, "R")
	}
	if strings.Contains(q.lower, "independent") {
		ents.Parties = append(ents.Parties, "I")
	}

	for _, t := range q.topics {
		ents.Topics = append(ents.Topics, t.Name)
		ents.Terms = append(ents.Terms, t.Terms...)
	}
	ents.Terms = dedupe(ents.Terms)

	ents.Since, ents.Until = c.dateRange(q)
	ents.Keywords = extractKeywords(q.lower)
	return ents
}

// dateRange derives [Since, Until) from explicit years and relative phrases.
func (c *Classifier) dateRange(q *query) (time.Time, time.Time) {
	year := func(y int) time.Time { return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC) }
	now := c.opts.Now()

	if m := sinceRe.FindStringSubmatch(q.lower); m != nil {
		y, _ := strconv.Atoi(m[2])
		return year(y), time.Time{}
	}
	if thisYearRe.MatchString(q.lower) {
		return year(now.Year()), year(now.Year() + 1)
	}
	if lastYearRe.MatchString(q.lower) {
		return year(now.Year() - 1), year(now.Year())
	}

	// Bill numbers are not years.
	text := billRe.ReplaceAllString(q.lower, " ")
	var years []int
	for _, m := range yearRe.FindAllStringSubmatch(text, -1) {
		y, _ := strconv.Atoi(m[1])
		years = append(years, y)
	}
	if len(years) == 0 {
		return time.Time{}, time.Time{}
	}
	sort.Ints(years)
	return year(years[0]), year(years[len(years)-1] + 1)
}

var keywordTrim = "?.,!;:'\"()[]{}’“”"

// extractKeywords splits on whitespace and drops short words, stop words and
// bare numbers.
func extractKeywords(lower string) []string {
	var keywords []string
	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, keywordTrim)
		w = strings.TrimSuffix(w, "'s")
		if len(w) <= 2 || stopWords[w] {
			continue
		}
		if _, err := strconv.Atoi(w); err == nil {
			continue
		}
		keywords = append(keywords, w)
	}
	return dedupe(keywords)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
