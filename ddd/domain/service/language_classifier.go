package service

import (
	"strings"
	"unicode"
)

// LanguageClassifier guesses the language of a text. confident is false when the
// classifier fell back to its default.
type LanguageClassifier interface {
	Detect(text string) (code string, confident bool)
}

// ScriptLanguageClassifier 基于 Unicode 区块与英语功能词的语言识别
type ScriptLanguageClassifier struct{}

func NewLanguageClassifier() *ScriptLanguageClassifier {
	return &ScriptLanguageClassifier{}
}

type scriptRange struct {
	lo, hi rune
	lang   string
}

// Checked in order; Arabic script is read as Urdu.
var scriptRanges = []scriptRange{
	{0x0900, 0x097F, "hi"},
	{0x0980, 0x09FF, "bn"},
	{0x0A00, 0x0A7F, "pa"},
	{0x0A80, 0x0AFF, "gu"},
	{0x0B80, 0x0BFF, "ta"},
	{0x0C00, 0x0C7F, "te"},
	{0x0C80, 0x0CFF, "kn"},
	{0x0D00, 0x0D7F, "ml"},
	{0x0600, 0x06FF, "ur"},
}

// minScriptShare is the fraction of letters a script needs to decide the language.
const minScriptShare = 0.2

func (c *ScriptLanguageClassifier) Detect(text string) (string, bool) {
	counts := make(map[string]int)
	letters := 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r) {
			continue
		}
		letters++
		for _, sr := range scriptRanges {
			if r >= sr.lo && r <= sr.hi {
				counts[sr.lang]++
				break
			}
		}
	}

	best, bestN := "", 0
	for _, sr := range scriptRanges {
		if n := counts[sr.lang]; n > bestN {
			best, bestN = sr.lang, n
		}
	}
	if letters > 0 && bestN > 0 && float64(bestN)/float64(letters) >= minScriptShare {
		return best, true
	}

	if looksEnglish(text) {
		return "en", true
	}
	return "en", false
}

var englishMarkers = toSet(
	"the", "and", "is", "are", "was", "were", "of", "to", "in", "that", "it", "you",
	"for", "with", "this", "have", "on", "not", "be", "we", "they", "what",
)

func looksEnglish(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return false
	}
	hits := 0
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()")
		if _, ok := englishMarkers[w]; ok {
			hits++
		}
	}
	return hits >= 2 || float64(hits)/float64(len(words)) >= 0.15
}
