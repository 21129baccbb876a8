package rag

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/WessleyAI/congress-qa/engine/congress"
	"github.com/WessleyAI/congress-qa/engine/domain"
)

// Style selects how much framing the prompt carries.
type Style int

const (
	// StyleFull is the detailed prompt used by the semantic tiers.
	StyleFull Style = iota
	// StyleSimple is the compact prompt used by the keyword and stats tier.
	StyleSimple
)

const persona = `You are a nonpartisan research assistant for questions about the United States Congress.
You explain bills, members of Congress, legislative actions, and executive orders in plain language
for a general audience, relying only on the records you are given.`

const simplePersona = `Answer the question about the United States Congress using only the records below.`

var recencyRe = regexp.MustCompile(`(?i)\b(recent|recently|latest|lately|newest|current|currently|this year|now|today|2024|2025)\b`)

// prompt is a built prompt plus the evidence it cites.
type prompt struct {
	system string
	user   string
	used   []domain.Evidence
}

// buildPrompt assembles the single generation prompt for an answer.
func (s *Service) buildPrompt(in Input) prompt {
	var b strings.Builder
	p := prompt{system: persona}
	if in.Style == StyleSimple {
		p.system = simplePersona
	}

	fmt.Fprintf(&b, "Question: %s\n", in.Question)

	if turns := lastTurns(in.History, s.opts.HistoryTurns); len(turns) > 0 {
		b.WriteString("\nEarlier in this conversation:\n")
		for _, t := range turns {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", t.Question, truncateRunes(t.Response, s.opts.SummaryRunes))
		}
	}

	groups := groupEvidence(in.Evidence)
	sections := []struct {
		title string
		items []domain.Evidence
		max   int
		line  func(*strings.Builder, domain.Evidence)
	}{
		{"Bills", groups[domain.EntityBill], s.opts.MaxBills, s.billLine},
		{"Members of Congress", groups[domain.EntityMember], s.opts.MaxMembers, memberLine},
		{"Legislative actions", groups[domain.EntityAction], s.opts.MaxActions, actionLine},
		{"Executive orders", groups[domain.EntityOrder], s.opts.MaxOrders, s.orderLine},
	}
	for _, sec := range sections {
		items := sec.items
		if sec.max > 0 && len(items) > sec.max {
			items = items[:sec.max]
		}
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", sec.title)
		for _, ev := range items {
			sec.line(&b, ev)
		}
		p.used = append(p.used, items...)
	}

	if in.Stats != nil && !in.Stats.Empty() {
		b.WriteString("\nStatistics:\n")
		writeStats(&b, *in.Stats, in.Style == StyleSimple)
	}

	if len(p.used) == 0 && (in.Stats == nil || in.Stats.Empty()) {
		b.WriteString("\nNo matching records were found.\n")
	}

	b.WriteString("\nInstructions:\n")
	b.WriteString("- Answer the question directly from the records above. If they are not enough, say what is missing.\n")
	b.WriteString("- Cite bills as TYPE NUMBER: Title, for example \"HR 1234: Healthcare Access and Affordability Act\".\n")
	b.WriteString("- Use markdown: short paragraphs, bullet lists, and bold for bill identifiers.\n")
	b.WriteString("- Do not describe how the records were found or stored.\n")
	if in.Intent.TemporalScope == domain.ScopeRecent || recencyRe.MatchString(in.Question) {
		b.WriteString("- Prioritize 2024-2025 activity over older records, and say so when the newest record is older.\n")
	}
	if in.Intent.Subjective {
		b.WriteString("- The question uses loaded language. Stay neutral and factual, and make no value judgments about parties or members.\n")
	}

	p.user = b.String()
	return p
}

func (s *Service) billLine(b *strings.Builder, ev domain.Evidence) {
	fmt.Fprintf(b, "- %s", ev.Label())
	var facts []string
	if !ev.Date.IsZero() {
		facts = append(facts, "introduced "+ev.Date.Format("2006-01-02"))
	}
	if sp, ok := ev.Metadata["sponsor"].(string); ok && sp != "" {
		facts = append(facts, "sponsor "+sp)
	}
	if pa, ok := ev.Metadata["policy_area"].(string); ok && pa != "" {
		facts = append(facts, "policy area "+pa)
	}
	if la, ok := ev.Metadata["latest_action"].(string); ok && la != "" {
		facts = append(facts, "latest action: "+truncateRunes(la, 120))
	}
	if ht, ok := ev.Metadata["has_text"].(bool); ok && ht {
		facts = append(facts, "full text available")
	}
	facts = append(facts, fmt.Sprintf("relevance %.2f", ev.Similarity))
	fmt.Fprintf(b, " (%s)\n", strings.Join(facts, "; "))
	if ev.Content != "" {
		fmt.Fprintf(b, "  Summary: %s\n", truncateRunes(ev.Content, s.opts.SummaryRunes))
	}
}

func memberLine(b *strings.Builder, ev domain.Evidence) {
	fmt.Fprintf(b, "- %s", ev.Label())
	if ch, ok := ev.Metadata["chamber"].(string); ok && ch != "" {
		fmt.Fprintf(b, ", %s", ch)
	}
	if cur, ok := ev.Metadata["current"].(bool); ok && !cur {
		b.WriteString(", former member")
	}
	fmt.Fprintf(b, " (relevance %.2f)\n", ev.Similarity)
}

func actionLine(b *strings.Builder, ev domain.Evidence) {
	fmt.Fprintf(b, "- %s", ev.Label())
	if !ev.Date.IsZero() {
		fmt.Fprintf(b, ", %s", ev.Date.Format("2006-01-02"))
	}
	fmt.Fprintf(b, ": %s\n", truncateRunes(ev.Content, 200))
}

func (s *Service) orderLine(b *strings.Builder, ev domain.Evidence) {
	fmt.Fprintf(b, "- %s", ev.Label())
	if !ev.Date.IsZero() {
		fmt.Fprintf(b, " (signed %s)", ev.Date.Format("2006-01-02"))
	}
	b.WriteString("\n")
	if ev.Content != "" {
		fmt.Fprintf(b, "  Summary: %s\n", truncateRunes(ev.Content, s.opts.SummaryRunes))
	}
}

func writeStats(b *strings.Builder, st congress.Stats, compact bool) {
	fmt.Fprintf(b, "- Bills: %d\n", st.TotalBills)
	if st.TotalMembers > 0 {
		fmt.Fprintf(b, "- Members: %d\n", st.TotalMembers)
	}
	if compact {
		writeCounts(b, "Bills by party", st.ByParty)
		return
	}
	writeCounts(b, "Bills by sponsor party", st.ByParty)
	writeCounts(b, "Bills by sponsor state", st.ByState)
	writeCounts(b, "Bills by chamber", st.ByChamber)
	writeCounts(b, "Bills by month", st.ByMonth)
	writeCounts(b, "Members by party", st.MembersByParty)
	writeCounts(b, "Members by state", st.MembersByState)
}

func writeCounts(b *strings.Builder, title string, counts []congress.Count) {
	if len(counts) == 0 {
		return
	}
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%s %d", c.Label, c.N)
	}
	fmt.Fprintf(b, "- %s: %s\n", title, strings.Join(parts, ", "))
}

func groupEvidence(evs []domain.Evidence) map[domain.EntityType][]domain.Evidence {
	out := make(map[domain.EntityType][]domain.Evidence, len(domain.EntityTypes))
	for _, ev := range evs {
		out[ev.Type] = append(out[ev.Type], ev)
	}
	return out
}

func lastTurns(turns []domain.Turn, n int) []domain.Turn {
	if n <= 0 {
		return nil
	}
	if len(turns) > n {
		return turns[len(turns)-n:]
	}
	return turns
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}
