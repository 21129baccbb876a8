package qa

import (
	"strings"

	"github.com/WessleyAI/congress-qa/engine/domain"
)

// Static knowledge topics.
const (
	TopicBill       = "bill"
	TopicMember     = "member"
	TopicParty      = "party"
	TopicStatistics = "statistics"
	TopicDefault    = "default"
)

var staticKnowledge = map[string]string{
	TopicBill: "A bill becomes law after it passes the House and the Senate in identical form and is signed by the President, " +
		"or when Congress overrides a veto with a two-thirds vote in each chamber. Bills are identified by chamber and number, " +
		"such as HR 1234 in the House or S 99 in the Senate, and most never advance past committee.",
	TopicMember: "Congress has 535 voting members. The Senate has 100 senators, two per state, serving six-year terms. " +
		"The House has 435 representatives apportioned by population and serving two-year terms. " +
		"Delegates from the District of Columbia and the territories serve in the House without a floor vote.",
	TopicParty: "The majority party in each chamber chooses committee chairs and largely sets the legislative agenda. " +
		"Most members caucus as Democrats or Republicans, and the few independents usually caucus with one of the two.",
	TopicStatistics: "Each two-year Congress typically sees more than ten thousand bills and resolutions introduced, " +
		"and only a few percent of them are enacted. Counts vary widely by session, chamber, and policy area.",
	TopicDefault: "I can answer questions about bills, members of Congress, legislative actions, and executive orders.",
}

const (
	staticSuffix = "Detailed congressional records are unavailable right now, so this is general background rather than a specific answer."
	apology      = "Sorry, I can't answer that right now. Please try again in a few minutes."
)

// StaticText returns the canned paragraph for topic.
func StaticText(topic string) string {
	text, ok := staticKnowledge[topic]
	if !ok {
		text = staticKnowledge[TopicDefault]
	}
	return text + "\n\n" + staticSuffix
}

// topicOf maps a classified question to a static knowledge topic.
func topicOf(intent domain.IntentResult, question string) string {
	switch intent.PrimaryFocus {
	case domain.FocusBill, domain.FocusTopic, domain.FocusTrend:
		return TopicBill
	case domain.FocusMember, domain.FocusState:
		return TopicMember
	case domain.FocusParty:
		return TopicParty
	case domain.FocusStatistics:
		return TopicStatistics
	}
	lower := strings.ToLower(question)
	switch {
	case strings.Contains(lower, "bill"):
		return TopicBill
	case strings.Contains(lower, "senator") || strings.Contains(lower, "representative"):
		return TopicMember
	case strings.Contains(lower, "party"):
		return TopicParty
	}
	return TopicDefault
}
