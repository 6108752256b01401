package service

import (
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode"
)

const (
	sentenceBreak    = `<break time="600ms"/>`
	clauseBreak      = `<break time="250ms"/>`
	longWordLetters  = 12
	emphasisModerate = `<emphasis level="moderate">`
	emphasisClose    = `</emphasis>`
)

var quotedSpan = regexp.MustCompile(`"([^"]+)"|“([^”]+)”`)

// BuildSSML wraps plain text in <speak> markup with pauses after sentence and
// clause punctuation and emphasis on quoted spans and long words. All text is
// escaped; the result is validated before it is returned.
func BuildSSML(text string) (string, error) {
	text = sanitizeText(text)
	var b strings.Builder
	b.WriteString("<speak>")

	last := 0
	for _, loc := range quotedSpan.FindAllStringSubmatchIndex(text, -1) {
		b.WriteString(markupPlain(text[last:loc[0]]))
		inner := ""
		if loc[2] >= 0 {
			inner = text[loc[2]:loc[3]]
		} else {
			inner = text[loc[4]:loc[5]]
		}
		b.WriteString(emphasisModerate)
		b.WriteString(escapeSSML(inner))
		b.WriteString(emphasisClose)
		last = loc[1]
	}
	b.WriteString(markupPlain(text[last:]))
	b.WriteString("</speak>")

	out := b.String()
	if err := ValidateSSML(out); err != nil {
		return "", err
	}
	return out, nil
}

// markupPlain escapes a run of unquoted text and inserts pauses and long-word emphasis.
func markupPlain(s string) string {
	var b strings.Builder
	fields := strings.Fields(s)
	if strings.HasPrefix(s, " ") && len(fields) > 0 {
		b.WriteByte(' ')
	}
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		core := strings.TrimRightFunc(f, unicode.IsPunct)
		tail := f[len(core):]
		if letterCount(core) >= longWordLetters {
			b.WriteString(emphasisModerate + escapeSSML(core) + emphasisClose)
		} else {
			b.WriteString(escapeSSML(core))
		}
		b.WriteString(escapeSSML(tail))
		switch {
		case strings.ContainsAny(tail, ".!?।"):
			b.WriteString(sentenceBreak)
		case strings.ContainsAny(tail, ",;:"):
			b.WriteString(clauseBreak)
		}
	}
	if strings.HasSuffix(s, " ") && len(fields) > 0 {
		b.WriteByte(' ')
	}
	return b.String()
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// sanitizeText drops control characters and normalises whitespace.
func sanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return ' '
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeSSML(s string) string {
	return ssmlEscaper.Replace(s)
}

// ValidateSSML checks the markup is well-formed XML rooted at <speak>.
func ValidateSSML(ssml string) error {
	dec := xml.NewDecoder(strings.NewReader(ssml))
	depth := 0
	sawRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if t.Name.Local != "speak" || sawRoot {
					return errors.New("ssml: root element must be a single <speak>")
				}
				sawRoot = true
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if !sawRoot || depth != 0 {
		return errors.New("ssml: unbalanced markup")
	}
	return nil
}
