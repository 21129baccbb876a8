// Package intent classifies congressional questions with an ordered list of
// keyword and regex rules. The first matching rule decides the primary
// focus; scope hints are extracted independently.
package intent

import (
	"regexp"
	"strings"
	"time"

	"github.com/WessleyAI/congress-qa/engine/domain"
)

// Options configures the classifier.
type Options struct {
	Topics []Topic
	// RecentSince is the first year treated as recent when a question names
	// explicit years. Earlier years are historical.
	RecentSince int
	Now         func() time.Time
}

// DefaultOptions returns the built-in dictionary and thresholds.
func DefaultOptions() Options {
	return Options{Topics: DefaultTopics, RecentSince: 2024, Now: time.Now}
}

// Classifier turns question text into an IntentResult. It is safe for
// concurrent use.
type Classifier struct {
	opts   Options
	topics []compiledTopic
	rules  []rule
}

// New creates a Classifier. Zero option fields take their defaults.
func New(opts Options) *Classifier {
	def := DefaultOptions()
	if opts.Topics == nil {
		opts.Topics = def.Topics
	}
	if opts.RecentSince == 0 {
		opts.RecentSince = def.RecentSince
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	c := &Classifier{opts: opts, topics: compileTopics(opts.Topics)}
	c.rules = c.buildRules()
	return c
}

// query is the pre-processed form every rule sees.
type query struct {
	raw   string
	lower string
	// bills and topics are extracted once and shared by rules and entities.
	bills  []domain.BillRef
	topics []compiledTopic
}

func (c *Classifier) prepare(question string) *query {
	q := &query{raw: strings.TrimSpace(question)}
	q.lower = strings.ToLower(q.raw)
	q.bills = extractBills(q.lower)
	for _, t := range c.topics {
		if t.re.MatchString(q.lower) {
			q.topics = append(q.topics, t)
		}
	}
	return q
}

// rule is one entry of the ordered classification list.
type rule struct {
	name  string
	focus domain.Focus
	match func(*query) bool
}

func (c *Classifier) buildRules() []rule {
	return []rule{
		{"state", domain.FocusState, isStateQuestion},
		{"bill", domain.FocusBill, func(q *query) bool { return len(q.bills) > 0 }},
		{"member", domain.FocusMember, isMemberQuestion},
		{"party", domain.FocusParty, isPartyQuestion},
		{"trend", domain.FocusTrend, isTrendQuestion},
		{"statistics", domain.FocusStatistics, isStatisticsQuestion},
		{"topic", domain.FocusTopic, func(q *query) bool { return len(q.topics) > 0 }},
	}
}

// Categorize returns only the primary focus of question.
func (c *Classifier) Categorize(question string) domain.Focus {
	return c.categorize(c.prepare(question))
}

func (c *Classifier) categorize(q *query) domain.Focus {
	for _, r := range c.rules {
		if r.match(q) {
			return r.focus
		}
	}
	return domain.FocusGeneral
}

// Classify analyses question fully.
func (c *Classifier) Classify(question string) domain.IntentResult {
	q := c.prepare(question)
	focus := c.categorize(q)
	ents := c.extractEntities(q)
	return domain.IntentResult{
		PrimaryFocus:  focus,
		DataTypes:     dataTypes(q, focus),
		TemporalScope: c.temporalScope(q, ents),
		AnalysisType:  analysisType(q),
		Specificity:   specificity(q),
		Subjective:    subjectiveRe.MatchString(q.lower),
		Entities:      ents,
	}
}

var (
	stateWordRe     = regexp.MustCompile(`\bstates?\b`)
	representRe     = regexp.MustCompile(`\b(represent\w*|from)\b`)
	partyRe         = regexp.MustCompile(`\b(democrat\w*|republican\w*|gop|party|partisan|bipartisan)\b`)
	partyNameRe     = regexp.MustCompile(`\b(democrat\w*|republican\w*|gop)\b`)
	repsRe          = regexp.MustCompile(`\b(representatives|reps|senators|delegation)\b`)
	memberTitleRe   = regexp.MustCompile(`\b(senators?|representatives?|congress(wo)?man|congress(wo)?men|members?|lawmakers?|sponsors?)\b`)
	trendRe         = regexp.MustCompile(`\b(trends?|trending|recent(ly)?|lately|this year|popular|most)\b`)
	statisticsRe    = regexp.MustCompile(`\b(how many|statistics|stats|numbers?|count|total|percentage|average)\b`)
	recentRe        = regexp.MustCompile(`\b(recent(ly)?|latest|current(ly)?|this year|newest|nowadays|today)\b`)
	historicalRe    = regexp.MustCompile(`\b(historical(ly)?|history|past|previous(ly)?|former|old(er)?)\b`)
	specificRe      = regexp.MustCompile(`\b(specific|particular)\b`)
	comprehensiveRe = regexp.MustCompile(`\b(all|every|total|overall|entire)\b`)
	comparativeRe   = regexp.MustCompile(`\b(compare[ds]?|comparison|versus|vs\.?|difference|between)\b`)
	temporalRe      = regexp.MustCompile(`\b(trends?|over time|changed?|since|growth|history)\b`)
	subjectiveRe    = regexp.MustCompile(`\b(help(s|ed)?|hurts?|favou?rs?|oppose[sd]?|attacks?|defends?|good|bad|best|worst|harm(s|ful)?|unfair|biased)\b`)
	orderWordRe     = regexp.MustCompile(`\b(executive orders?|eos?)\b`)
	actionWordRe    = regexp.MustCompile(`\b(actions?|votes?|voted|status|passed|signed|vetoed)\b`)
	billWordRe      = regexp.MustCompile(`\b(bills?|legislation|acts?|laws?|resolutions?)\b`)
)

// isStateQuestion matches explicit state names, "state" with "represent" or
// "from", and party names paired with "representatives".
func isStateQuestion(q *query) bool {
	if stateRe.MatchString(q.lower) || len(extractStateCodes(q.raw)) > 0 {
		return true
	}
	if stateWordRe.MatchString(q.lower) && representRe.MatchString(q.lower) {
		return true
	}
	return partyNameRe.MatchString(q.lower) && repsRe.MatchString(q.lower)
}

func isMemberQuestion(q *query) bool {
	return memberTitleRe.MatchString(q.lower) || len(extractNames(q.raw)) > 0
}

func isPartyQuestion(q *query) bool { return partyRe.MatchString(q.lower) }

// isTrendQuestion never claims a state question: "most states" is about
// representation, not a trend.
func isTrendQuestion(q *query) bool {
	return !isStateQuestion(q) && trendRe.MatchString(q.lower)
}

func isStatisticsQuestion(q *query) bool { return statisticsRe.MatchString(q.lower) }

func (c *Classifier) temporalScope(q *query, ents domain.Entities) domain.TemporalScope {
	if recentRe.MatchString(q.lower) {
		return domain.ScopeRecent
	}
	if !ents.Since.IsZero() && ents.Since.Year() >= c.opts.RecentSince {
		return domain.ScopeRecent
	}
	if historicalRe.MatchString(q.lower) {
		return domain.ScopeHistorical
	}
	if !ents.Since.IsZero() {
		return domain.ScopeHistorical
	}
	return domain.ScopeCurrent
}

func specificity(q *query) domain.Specificity {
	switch {
	case len(q.bills) > 0 || specificRe.MatchString(q.lower):
		return domain.SpecificitySpecific
	case comprehensiveRe.MatchString(q.lower):
		return domain.SpecificityComprehensive
	}
	return domain.SpecificityGeneral
}

func analysisType(q *query) domain.AnalysisType {
	switch {
	case comparativeRe.MatchString(q.lower):
		return domain.AnalysisComparative
	case temporalRe.MatchString(q.lower):
		return domain.AnalysisTemporal
	case statisticsRe.MatchString(q.lower) || strings.Contains(q.lower, "most"):
		return domain.AnalysisQuantitative
	}
	return domain.AnalysisInformational
}

// dataTypes returns the entity types a question touches, in display order.
func dataTypes(q *query, focus domain.Focus) []domain.EntityType {
	want := map[domain.EntityType]bool{}
	switch focus {
	case domain.FocusState, domain.FocusMember, domain.FocusParty:
		want[domain.EntityMember] = true
		want[domain.EntityBill] = focus != domain.FocusState
	case domain.FocusBill:
		want[domain.EntityBill] = true
		want[domain.EntityAction] = true
	case domain.FocusStatistics, domain.FocusGeneral:
		want[domain.EntityBill] = true
		want[domain.EntityMember] = true
	default:
		want[domain.EntityBill] = true
	}
	if memberTitleRe.MatchString(q.lower) {
		want[domain.EntityMember] = true
	}
	if billWordRe.MatchString(q.lower) {
		want[domain.EntityBill] = true
	}
	if actionWordRe.MatchString(q.lower) {
		want[domain.EntityAction] = true
	}
	if orderWordRe.MatchString(q.lower) {
		want[domain.EntityOrder] = true
	}

	out := make([]domain.EntityType, 0, len(want))
	for _, t := range domain.EntityTypes {
		if want[t] {
			out = append(out, t)
		}
	}
	return out
}
