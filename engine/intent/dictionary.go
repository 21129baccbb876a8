package intent

import (
	"regexp"
	"sort"
	"strings"
)

// Topic is a curated subject with the words that detect it and the terms
// retrieval searches for once it is detected.
type Topic struct {
	Name     string
	Triggers []string
	Terms    []string
}

// DefaultTopics is the built-in topic dictionary.
var DefaultTopics = []Topic{
	{Name: "healthcare", Triggers: []string{"health", "healthcare", "health care", "medical", "medicare", "medicaid", "hospital", "hospitals", "obamacare", "affordable care", "prescription", "drug prices"},
		Terms: []string{"health", "healthcare", "medicare", "medicaid", "medical", "hospital", "affordable care", "prescription"}},
	{Name: "china", Triggers: []string{"china", "chinese", "beijing", "ccp", "prc", "xi jinping"},
		Terms: []string{"china", "chinese", "beijing", "people's republic"}},
	{Name: "immigration", Triggers: []string{"immigration", "immigrant", "immigrants", "border", "asylum", "migrant", "migrants", "daca", "visa", "visas", "deportation"},
		Terms: []string{"immigration", "border", "asylum", "migrant", "visa", "alien"}},
	{Name: "defense", Triggers: []string{"defense", "military", "army", "navy", "pentagon", "armed forces", "ndaa", "troops"},
		Terms: []string{"defense", "military", "armed forces", "national defense authorization"}},
	{Name: "veterans", Triggers: []string{"veteran", "veterans", "va benefits"},
		Terms: []string{"veteran", "veterans affairs"}},
	{Name: "energy", Triggers: []string{"energy", "oil", "gas", "pipeline", "nuclear", "solar", "renewable"},
		Terms: []string{"energy", "oil", "natural gas", "pipeline", "nuclear", "renewable", "solar"}},
	{Name: "climate", Triggers: []string{"climate", "environment", "environmental", "emissions", "carbon", "epa", "pollution"},
		Terms: []string{"climate", "environment", "emission", "carbon", "pollution"}},
	{Name: "education", Triggers: []string{"education", "school", "schools", "student", "students", "college", "teachers", "student loans"},
		Terms: []string{"education", "school", "student", "college", "teacher"}},
	{Name: "economy", Triggers: []string{"economy", "economic", "inflation", "jobs", "employment", "wages", "minimum wage", "recession"},
		Terms: []string{"economy", "economic", "inflation", "employment", "wage"}},
	{Name: "taxes", Triggers: []string{"tax", "taxes", "taxation", "irs", "tax cut", "tax cuts"},
		Terms: []string{"tax", "taxation", "internal revenue", "income tax"}},
	{Name: "budget", Triggers: []string{"budget", "appropriations", "spending", "deficit", "debt ceiling", "shutdown"},
		Terms: []string{"appropriation", "budget", "spending", "debt limit", "continuing appropriations"}},
	{Name: "agriculture", Triggers: []string{"agriculture", "farm", "farmers", "farming", "crops", "usda", "food stamps", "snap"},
		Terms: []string{"agriculture", "farm", "crop", "nutrition", "food"}},
	{Name: "technology", Triggers: []string{"technology", "tech", "artificial intelligence", "ai", "cybersecurity", "internet", "privacy", "tiktok", "social media", "broadband"},
		Terms: []string{"technology", "artificial intelligence", "cybersecurity", "internet", "data privacy", "broadband", "social media"}},
	{Name: "infrastructure", Triggers: []string{"infrastructure", "roads", "bridges", "highway", "highways", "transportation", "rail", "transit"},
		Terms: []string{"infrastructure", "highway", "bridge", "transportation", "rail", "transit"}},
	{Name: "guns", Triggers: []string{"gun", "guns", "firearm", "firearms", "second amendment", "shooting", "rifle"},
		Terms: []string{"firearm", "gun", "second amendment", "ammunition"}},
	{Name: "justice", Triggers: []string{"crime", "criminal", "police", "policing", "prison", "justice", "law enforcement", "fentanyl"},
		Terms: []string{"crime", "criminal", "police", "law enforcement", "prison", "justice"}},
	{Name: "abortion", Triggers: []string{"abortion", "reproductive", "roe", "pro-life", "pro-choice"},
		Terms: []string{"abortion", "reproductive", "unborn"}},
	{Name: "housing", Triggers: []string{"housing", "rent", "mortgage", "homeless", "homelessness", "affordable housing"},
		Terms: []string{"housing", "mortgage", "rental", "homeless"}},
	{Name: "social security", Triggers: []string{"social security", "retirement", "pension", "pensions"},
		Terms: []string{"social security", "retirement", "pension"}},
	{Name: "ukraine", Triggers: []string{"ukraine", "ukrainian", "russia", "russian", "putin", "kyiv"},
		Terms: []string{"ukraine", "russia", "russian federation"}},
	{Name: "israel", Triggers: []string{"israel", "israeli", "gaza", "hamas", "palestine", "palestinian"},
		Terms: []string{"israel", "gaza", "hamas", "palestinian"}},
	{Name: "trade", Triggers: []string{"trade", "tariff", "tariffs", "imports", "exports"},
		Terms: []string{"trade", "tariff", "import", "export"}},
	{Name: "elections", Triggers: []string{"election", "elections", "voting", "voter", "ballot", "ballots"},
		Terms: []string{"election", "voting", "voter", "ballot"}},
	{Name: "trump", Triggers: []string{"trump", "donald trump"},
		Terms: []string{"trump", "president trump"}},
	{Name: "biden", Triggers: []string{"biden", "joe biden"},
		Terms: []string{"biden", "president biden"}},
}

// states maps lower-case state names to postal codes.
var states = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA",
	"colorado": "CO", "connecticut": "CT", "delaware": "DE", "florida": "FL", "georgia": "GA",
	"hawaii": "HI", "idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS", "missouri": "MO",
	"montana": "MT", "nebraska": "NE", "nevada": "NV", "new hampshire": "NH", "new jersey": "NJ",
	"new mexico": "NM", "new york": "NY", "north carolina": "NC", "north dakota": "ND", "ohio": "OH",
	"oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington": "WA", "west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
}

// ambiguousCodes are postal codes that are also common English words or
// abbreviations; they only count when written as "R-OH" style suffixes.
var ambiguousCodes = map[string]bool{
	"IN": true, "OR": true, "ME": true, "OK": true, "HI": true, "OH": true, "ID": true,
	"AL": true, "DE": true, "LA": true, "MA": true, "PA": true, "CO": true, "MO": true, "AR": true,
	"VA": true, "MD": true,
}

var stateCodes map[string]bool

// stateRe matches full state names, longest first so "west virginia" wins
// over "virginia".
var stateRe *regexp.Regexp

func init() {
	stateCodes = make(map[string]bool, len(states))
	names := make([]string, 0, len(states))
	for name, code := range states {
		stateCodes[code] = true
		names = append(names, regexp.QuoteMeta(name))
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	stateRe = regexp.MustCompile(`\b(` + strings.Join(names, "|") + `)\b`)
}

// compiledTopic is a Topic with its trigger regex.
type compiledTopic struct {
	Topic
	re *regexp.Regexp
}

func compileTopics(topics []Topic) []compiledTopic {
	out := make([]compiledTopic, 0, len(topics))
	for _, t := range topics {
		if len(t.Triggers) == 0 {
			continue
		}
		trig := make([]string, len(t.Triggers))
		for i, w := range t.Triggers {
			trig[i] = regexp.QuoteMeta(strings.ToLower(w))
		}
		sort.Slice(trig, func(i, j int) bool { return len(trig[i]) > len(trig[j]) })
		out = append(out, compiledTopic{
			Topic: t,
			re:    regexp.MustCompile(`\b(` + strings.Join(trig, "|") + `)\b`),
		})
	}
	return out
}

// stopWords are dropped from keyword extraction.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "to": true,
	"of": true, "in": true, "for": true, "on": true, "with": true,
	"at": true, "by": true, "from": true, "as": true, "into": true,
	"through": true, "during": true, "before": true, "after": true,
	"what": true, "where": true, "when": true, "how": true, "which": true,
	"who": true, "whom": true, "this": true, "that": true, "these": true,
	"those": true, "i": true, "me": true, "my": true, "it": true,
	"its": true, "and": true, "but": true, "or": true, "not": true,
	"about": true, "any": true, "there": true, "their": true, "they": true,
	"them": true, "most": true, "many": true, "much": true, "some": true,
	"tell": true, "show": true, "give": true, "list": true, "please": true,
	"year": true, "years": true, "recent": true, "recently": true, "latest": true,
	"current": true, "currently": true, "new": true, "last": true,
	// Domain words that appear in nearly every question.
	"bill": true, "bills": true, "legislation": true, "congress": true,
	"introduced": true, "passed": true, "sponsored": true, "law": true, "laws": true,
	"act": true, "acts": true, "members": true, "member": true,
}

// questionWords never start a personal name.
var questionWords = map[string]bool{
	"What": true, "Which": true, "Who": true, "Whom": true, "How": true, "When": true,
	"Where": true, "Why": true, "Is": true, "Are": true, "Did": true, "Does": true,
	"Do": true, "Can": true, "Tell": true, "Show": true, "List": true, "Give": true,
	"The": true, "In": true, "Has": true, "Have": true, "Was": true, "Were": true,
	"Please": true, "Compare": true,
}

// nonNameWords are capitalized words that are never part of a member name.
var nonNameWords = map[string]bool{
	"Congress": true, "Senate": true, "House": true, "Act": true, "Bill": true,
	"Republican": true, "Republicans": true, "Democrat": true, "Democrats": true,
	"Democratic": true, "Independent": true, "Party": true, "President": true,
	"Executive": true, "Order": true, "January": true, "February": true, "March": true,
	"April": true, "May": true, "June": true, "July": true, "August": true,
	"September": true, "October": true, "November": true, "December": true,
	"Senator": true, "Representative": true, "Rep": true, "Sen": true, "Speaker": true,
	"Congressman": true, "Congresswoman": true, "Leader": true,
	"United": true, "States": true, "America": true, "American": true, "Supreme": true, "Court": true,
}
