package segment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/extract"

	"github.com/pkoukk/tiktoken-go"
)

// Segment is one unit of text handed to the extractor.
type Segment struct {
	Text    string
	Options extract.Options
}

// SplitText cuts text into segments of at most maxTokens tokens. Segments
// never split a sentence or a markdown table; a single sentence longer than
// maxTokens becomes a segment of its own. An empty encoding uses the
// encoder of package ai.
func SplitText(text string, encoding string, maxTokens int) ([]Segment, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("segment: maxTokens must be positive, got %d", maxTokens)
	}

	var enc *tiktoken.Tiktoken
	var err error
	if encoding == "" {
		enc, err = ai.Encoder()
	} else {
		enc, err = tiktoken.GetEncoding(encoding)
	}
	if err != nil {
		return nil, err
	}

	sentences := splitIntoSentences(strings.TrimSpace(text))
	if len(sentences) == 0 {
		return []Segment{}, nil
	}

	var segments []Segment
	start := 0
	for i := 1; i < len(sentences); i++ {
		candidate := strings.Join(sentences[start:i+1], " ")
		if len(enc.Encode(candidate, nil, nil)) > maxTokens {
			segments = append(segments, Segment{Text: strings.Join(sentences[start:i], " ")})
			start = i
		}
	}
	segments = append(segments, Segment{Text: strings.Join(sentences[start:], " ")})

	return segments, nil
}

var tableDelimiter = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)

type sentenceCollector struct {
	out []string
	cur strings.Builder
}

func (c *sentenceCollector) flush() {
	if s := strings.TrimSpace(c.cur.String()); s != "" {
		c.out = append(c.out, s)
	}
	c.cur.Reset()
}

// addProse continues the current sentence with line and closes it at
// terminal punctuation. Sentences may span several lines.
func (c *sentenceCollector) addProse(line string) {
	for _, s := range splitLine(line) {
		if c.cur.Len() > 0 {
			c.cur.WriteString(" ")
		}
		c.cur.WriteString(s)
		if endsSentence(s) {
			c.flush()
		}
	}
}

// splitIntoSentences splits text into sentences. A markdown table (a row
// followed by a delimiter row) is kept as one sentence, blank lines end the
// current sentence and pipe rows outside a table stand alone.
func splitIntoSentences(text string) []string {
	lines := strings.Split(text, "\n")
	var c sentenceCollector
	inTable := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		row := trimmed != "" && strings.Contains(trimmed, "|")

		switch {
		case inTable && row:
			c.cur.WriteString("\n")
			c.cur.WriteString(line)
		case inTable:
			inTable = false
			c.flush()
			c.addProse(trimmed)
		case row && i+1 < len(lines) && tableDelimiter.MatchString(strings.TrimSpace(lines[i+1])):
			c.flush()
			inTable = true
			c.cur.WriteString(line)
		case row:
			c.flush()
			c.out = append(c.out, trimmed)
		case trimmed == "":
			c.flush()
		default:
			c.addProse(trimmed)
		}
	}
	c.flush()

	return c.out
}

func endsSentence(s string) bool {
	s = strings.TrimRight(strings.TrimSpace(s), `"')]}`)
	return s != "" && isTerminal(s[len(s)-1])
}

func isTerminal(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

// splitLine splits one line at terminal punctuation. Runs of punctuation and
// closing quotes or brackets stay with their sentence; "1. " style list
// markers do not end a sentence.
func splitLine(line string) []string {
	var out []string
	start := 0
	for i := 0; i < len(line); i++ {
		if !isTerminal(line[i]) {
			continue
		}
		if i > 0 && line[i-1] >= '0' && line[i-1] <= '9' && i+1 < len(line) && line[i+1] == ' ' {
			continue
		}

		j := i + 1
		for j < len(line) && isTerminal(line[j]) {
			j++
		}
		for j < len(line) && strings.IndexByte(`"')]}`, line[j]) >= 0 {
			j++
		}

		if s := strings.TrimSpace(line[start:j]); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if s := strings.TrimSpace(line[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
