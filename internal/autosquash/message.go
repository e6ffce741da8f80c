package autosquash

import (
	"regexp"
	"strings"

	"github.com/simplesurance/tapmerge/internal/stringutils"
)

// Message is a commit message split into its three segments.
type Message struct {
	// Subject is the first line of the message, stripped.
	Subject string
	// Body is the remaining prose, with blank line runs collapsed to one.
	Body string
	// Trailers are the "<token>-by: value" lines of the message, in
	// first-seen order, without duplicates.
	Trailers []string
}

var trailerRe = regexp.MustCompile(`(?i)^[a-z0-9-]+-by:\s*\S.*$`)

// SplitMessage splits a raw commit message into subject, body and trailers.
// Trailer-shaped lines are extracted wherever they appear after the subject,
// duplicates are collapsed keeping the first occurrence.
// Splitting the String() of the result returns an equal Message.
func SplitMessage(raw string) *Message {
	lines := strings.Split(raw, "\n")

	result := Message{
		Subject: strings.TrimSpace(lines[0]),
	}

	seen := map[string]struct{}{}
	var bodyLines []string

	for _, line := range lines[1:] {
		trimmed := strings.TrimSpace(line)

		if trailerRe.MatchString(trimmed) {
			if _, exists := seen[trimmed]; exists {
				continue
			}

			seen[trimmed] = struct{}{}
			result.Trailers = append(result.Trailers, trimmed)

			continue
		}

		bodyLines = append(bodyLines, strings.TrimRight(line, " \t"))
	}

	result.Body = collapseBlankLines(bodyLines)

	return &result
}

// collapseBlankLines joins lines so that paragraphs are separated by exactly
// one blank line and the result has no leading or trailing blank lines.
func collapseBlankLines(lines []string) string {
	var result []string
	var pendingBlank bool

	for _, line := range lines {
		if line == "" {
			pendingBlank = true
			continue
		}

		if pendingBlank && len(result) > 0 {
			result = append(result, "")
		}

		pendingBlank = false
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

// String reassembles the message, segments separated by one blank line.
func (m *Message) String() string {
	var result strings.Builder

	result.WriteString(m.Subject)

	if m.Body != "" {
		result.WriteString("\n\n")
		result.WriteString(m.Body)
	}

	if len(m.Trailers) > 0 {
		result.WriteString("\n\n")
		result.WriteString(strings.Join(m.Trailers, "\n"))
	}

	return result.String()
}

// bullet formats a message as one item of a squashed commit body.
func bullet(m *Message) string {
	result := "* " + m.Subject

	if m.Body != "" {
		result += "\n" + stringutils.IndentString(m.Body, "  ")
	}

	return result
}

// mergeTrailers combines trailer line groups into one list, keeping
// first-seen order and dropping duplicates and empty entries.
func mergeTrailers(groups ...[]string) []string {
	var result []string
	seen := map[string]struct{}{}

	for _, group := range groups {
		for _, trailer := range group {
			trailer = strings.TrimSpace(trailer)
			if trailer == "" {
				continue
			}

			if _, exists := seen[trailer]; exists {
				continue
			}

			seen[trailer] = struct{}{}
			result = append(result, trailer)
		}
	}

	return result
}
