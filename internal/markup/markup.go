// Package markup parses the lightweight formatting the assistant emits:
// sections opened by "###" with the first line as a heading, and
// **paired asterisks** marking bold spans.
package markup

import "strings"

const sectionMarker = "###"

// Span is a run of text with uniform styling.
type Span struct {
	Text string
	Bold bool
}

// Block is one display unit. A block with an empty Heading is intro text.
type Block struct {
	Heading string
	Body    []Span
}

// Parse splits text into display blocks. The segment before the first
// section marker is intro text with no heading, unless the text itself
// begins with the marker. Blank segments produce no block.
func Parse(text string) []Block {
	startsWithMarker := strings.HasPrefix(strings.TrimSpace(text), sectionMarker)
	sections := strings.Split(text, sectionMarker)

	var blocks []Block
	for i, section := range sections {
		if strings.TrimSpace(section) == "" {
			continue
		}

		isHeaderSection := i > 0 || startsWithMarker
		if !isHeaderSection {
			blocks = append(blocks, Block{Body: parseSpans(strings.TrimSpace(section))})
			continue
		}

		firstLine, rest, _ := strings.Cut(section, "\n")
		heading := strings.ReplaceAll(strings.TrimSpace(firstLine), "*", "")
		blocks = append(blocks, Block{
			Heading: heading,
			Body:    parseSpans(strings.TrimSpace(rest)),
		})
	}
	return blocks
}

// parseSpans splits a string on **…** pairs. An unmatched ** is literal.
func parseSpans(s string) []Span {
	if s == "" {
		return nil
	}

	var spans []Span
	for {
		open := strings.Index(s, "**")
		if open < 0 {
			break
		}
		end := strings.Index(s[open+2:], "**")
		if end < 0 {
			break
		}

		if open > 0 {
			spans = append(spans, Span{Text: s[:open]})
		}
		spans = append(spans, Span{Text: s[open+2 : open+2+end], Bold: true})
		s = s[open+2+end+2:]
	}
	if s != "" {
		spans = append(spans, Span{Text: s})
	}
	return spans
}
