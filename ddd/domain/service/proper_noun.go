package service

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Strictness trades precision against recall when deciding what to protect.
type Strictness string

const (
	// StrictnessConservative protects only acronyms, internal-capital compounds and
	// mid-sentence capitalized words of three or more letters.
	StrictnessConservative Strictness = "conservative"
	// StrictnessStandard protects mid-sentence capitalized non-common words, acronyms
	// and internal-capital compounds.
	StrictnessStandard Strictness = "standard"
	// StrictnessAggressive also protects sentence-initial capitalized words that are
	// not common words.
	StrictnessAggressive Strictness = "aggressive"
)

// ParseStrictness falls back to standard for unknown values.
func ParseStrictness(s string) Strictness {
	switch Strictness(strings.ToLower(strings.TrimSpace(s))) {
	case StrictnessConservative:
		return StrictnessConservative
	case StrictnessAggressive:
		return StrictnessAggressive
	default:
		return StrictnessStandard
	}
}

// ProperNounDetector finds tokens that must survive translation verbatim.
type ProperNounDetector interface {
	// Detect returns the distinct protected tokens in order of first appearance.
	Detect(text string) []string
	// Score counts capitalized mid-sentence tokens that are not common words.
	Score(text string) int
}

// HeuristicProperNounDetector 基于大小写与常用词表的专有名词识别
type HeuristicProperNounDetector struct {
	strictness Strictness
}

func NewProperNounDetector(strictness Strictness) *HeuristicProperNounDetector {
	return &HeuristicProperNounDetector{strictness: strictness}
}

type token struct {
	word          string
	sentenceStart bool
}

func tokenize(text string) []token {
	var out []token
	start := true
	for _, field := range strings.Fields(text) {
		word := strings.TrimFunc(field, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if word != "" {
			out = append(out, token{word: word, sentenceStart: start})
		}
		start = endsSentence(field)
	}
	return out
}

func endsSentence(field string) bool {
	trimmed := strings.TrimRight(field, "\"'”’)]")
	return strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") ||
		strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, "।")
}

func (d *HeuristicProperNounDetector) Detect(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range tokenize(text) {
		if !d.protect(tok) || seen[tok.word] {
			continue
		}
		seen[tok.word] = true
		out = append(out, tok.word)
	}
	return out
}

func (d *HeuristicProperNounDetector) Score(text string) int {
	n := 0
	for _, tok := range tokenize(text) {
		if !tok.sentenceStart && isCapitalized(tok.word) && !isCommonWord(tok.word) {
			n++
		}
	}
	return n
}

func (d *HeuristicProperNounDetector) protect(tok token) bool {
	w := tok.word
	length := len([]rune(w))
	if length < 2 || length > 20 || !isAlphabetic(w) {
		return false
	}
	if isAcronym(w) || isInternalCapital(w) {
		return true
	}
	if !isCapitalized(w) || isCommonWord(w) {
		return false
	}
	switch d.strictness {
	case StrictnessConservative:
		return !tok.sentenceStart && length >= 3
	case StrictnessAggressive:
		return true
	default:
		return !tok.sentenceStart
	}
}

func isAlphabetic(w string) bool {
	for _, r := range w {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func isCapitalized(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}

// isAcronym: all letters upper case, e.g. NASA, UN.
func isAcronym(w string) bool {
	for _, r := range w {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// isInternalCapital: an upper-case letter after a lower-case one, e.g. iPhone, McDonald.
func isInternalCapital(w string) bool {
	prevLower := false
	for _, r := range w {
		if unicode.IsUpper(r) && prevLower {
			return true
		}
		prevLower = unicode.IsLower(r)
	}
	return false
}

func isCommonWord(w string) bool {
	_, ok := commonWords[strings.ToLower(w)]
	return ok
}

// commonWords are English function words and frequent sentence openers that are
// capitalized for grammatical rather than naming reasons.
var commonWords = toSet(
	"a", "an", "the", "and", "or", "but", "nor", "so", "yet", "for",
	"i", "me", "my", "we", "us", "our", "you", "your", "he", "him", "his",
	"she", "her", "it", "its", "they", "them", "their", "this", "that", "these", "those",
	"is", "am", "are", "was", "were", "be", "been", "being", "do", "does", "did",
	"have", "has", "had", "will", "would", "shall", "should", "can", "could", "may", "might", "must",
	"in", "on", "at", "to", "of", "by", "with", "from", "as", "into", "about", "over", "under",
	"after", "before", "between", "through", "during", "without", "within",
	"if", "then", "than", "when", "where", "why", "how", "what", "which", "who", "whom", "whose",
	"not", "no", "yes", "all", "any", "some", "each", "every", "both", "few", "more", "most",
	"here", "there", "now", "today", "also", "just", "only", "very", "ok", "okay", "well",
	"hello", "hi", "thanks", "thank", "please", "let", "lets",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
