package rag

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// jargonRe matches sentences that talk about retrieval mechanics instead of
// the legislation itself.
var jargonRe = regexp.MustCompile(`(?i)\b(sql|databases?|quer(y|ies)|embeddings?|vector (search|store)|similarity scores?|relevance scores?|retrieval|the (records|data) (provided|above|i was given))\b`)

var (
	sentenceRe   = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)
	spaceRunRe   = regexp.MustCompile(`[ \t]{2,}`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// Clean removes sentences that mention internal mechanics and collapses
// redundant whitespace. Markdown structure is kept.
func Clean(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			out = append(out, "")
			continue
		}
		cleaned := stripJargon(line)
		if strings.TrimSpace(cleaned) == "" || isBareMarker(cleaned) {
			continue
		}
		out = append(out, cleaned)
	}
	joined := strings.TrimSpace(strings.Join(out, "\n"))
	return blankLinesRe.ReplaceAllString(joined, "\n\n")
}

func stripJargon(line string) string {
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	body := spaceRunRe.ReplaceAllString(strings.TrimSpace(line), " ")
	if !jargonRe.MatchString(body) {
		return indent + body
	}
	var kept []string
	for _, s := range sentenceRe.FindAllString(body, -1) {
		if !jargonRe.MatchString(s) {
			kept = append(kept, strings.TrimSpace(s))
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return indent + strings.Join(kept, " ")
}

// isBareMarker reports a list or heading marker whose text was removed.
func isBareMarker(line string) bool {
	switch strings.TrimSpace(line) {
	case "-", "*", "+", "#", "##", "###", "####", ">":
		return true
	}
	return false
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
)

// Render converts markdown to HTML. Raw HTML in the input is not passed
// through.
func Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
