package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/ddd/domain/vo"
	"dubbing-service/pkg/logger"
)

// PivotLanguage is the hop language for pairs without a direct route.
const PivotLanguage = "en"

// PairTable lists directly supported translation pairs by base language.
type PairTable struct {
	pairs map[vo.LanguagePair]bool
}

// NewPairTable parses "src:tgt" entries. An empty list yields DefaultPairTable.
func NewPairTable(entries []string) *PairTable {
	if len(entries) == 0 {
		return DefaultPairTable()
	}
	t := &PairTable{pairs: make(map[vo.LanguagePair]bool)}
	for _, e := range entries {
		parts := strings.SplitN(e, ":", 2)
		if len(parts) != 2 {
			continue
		}
		t.Add(parts[0], parts[1])
	}
	return t
}

// DefaultPairTable supports every listed language to and from English, plus a few
// direct pairs between closely related languages.
func DefaultPairTable() *PairTable {
	t := &PairTable{pairs: make(map[vo.LanguagePair]bool)}
	for _, l := range []string{"hi", "ta", "te", "kn", "ml", "bn", "gu", "pa", "mr", "ur", "es", "fr", "de", "it", "pt", "ja", "ko", "zh", "ar", "ru"} {
		t.Add(PivotLanguage, l)
		t.Add(l, PivotLanguage)
	}
	for _, p := range [][2]string{{"hi", "ur"}, {"hi", "mr"}, {"hi", "pa"}, {"es", "pt"}, {"es", "fr"}} {
		t.Add(p[0], p[1])
		t.Add(p[1], p[0])
	}
	return t
}

func (t *PairTable) Add(src, tgt string) {
	t.pairs[vo.LanguagePair{Source: vo.BaseLanguage(src), Target: vo.BaseLanguage(tgt)}] = true
}

func (t *PairTable) Supports(src, tgt string) bool {
	return t.pairs[vo.LanguagePair{Source: vo.BaseLanguage(src), Target: vo.BaseLanguage(tgt)}]
}

// Knows reports whether lang appears in any pair.
func (t *PairTable) Knows(lang string) bool {
	base := vo.BaseLanguage(lang)
	for p := range t.pairs {
		if p.Source == base || p.Target == base {
			return true
		}
	}
	return false
}

// Route plans the translation legs from src to tgt: direct when supported, otherwise
// through English. A required leg that is unsupported yields UnsupportedLanguagePair.
func (t *PairTable) Route(src, tgt string) ([]vo.LanguagePair, error) {
	s, g := vo.BaseLanguage(src), vo.BaseLanguage(tgt)
	if s == g {
		return nil, nil
	}
	if t.Supports(s, g) {
		return []vo.LanguagePair{{Source: s, Target: g}}, nil
	}
	if s == PivotLanguage || g == PivotLanguage {
		return nil, fault.New(fault.UnsupportedLanguagePair, "%s:%s", s, g)
	}
	legs := []vo.LanguagePair{{Source: s, Target: PivotLanguage}, {Source: PivotLanguage, Target: g}}
	for _, leg := range legs {
		if !t.Supports(leg.Source, leg.Target) {
			return nil, fault.New(fault.UnsupportedLanguagePair, "%s:%s (via %s, missing %s)", s, g, PivotLanguage, leg)
		}
	}
	return legs, nil
}

// Translation is the outcome of translating one text.
type Translation struct {
	Text      string
	Protected int
	Restored  int
}

// RestorationRatio is the share of protected tokens that came back intact.
func (t Translation) RestorationRatio() float64 {
	if t.Protected == 0 {
		return 1
	}
	return float64(t.Restored) / float64(t.Protected)
}

// TranslationService 翻译适配：专有名词保护 + 英语中转
type TranslationService struct {
	engine     gateway.TranslationEngine
	nouns      ProperNounDetector
	classifier LanguageClassifier
	pairs      *PairTable
	retry      RetryPolicy
}

func NewTranslationService(engine gateway.TranslationEngine, nouns ProperNounDetector, classifier LanguageClassifier, pairs *PairTable, retry RetryPolicy) *TranslationService {
	if pairs == nil {
		pairs = DefaultPairTable()
	}
	return &TranslationService{engine: engine, nouns: nouns, classifier: classifier, pairs: pairs, retry: retry}
}

// Pairs exposes the supported pair table.
func (s *TranslationService) Pairs() *PairTable { return s.pairs }

// DetectLanguage 检测文本语言；无法判断时返回 en 并记录低置信度
func (s *TranslationService) DetectLanguage(text string) string {
	code, confident := s.classifier.Detect(text)
	if !confident {
		logger.Warnf("language detection low confidence, defaulting to %s text_len=%d", code, len(text))
	}
	return code
}

// Translate 翻译文本，专有名词以占位符保护并在最后一跳之后还原
func (s *TranslationService) Translate(ctx context.Context, text, source, target string) (Translation, error) {
	if strings.TrimSpace(text) == "" {
		return Translation{Text: text}, nil
	}
	if source == "" || vo.NormalizeLanguage(source) == vo.AutoLanguage {
		source = s.DetectLanguage(text)
	}

	legs, err := s.pairs.Route(source, target)
	if err != nil {
		return Translation{}, err
	}
	if len(legs) == 0 {
		return Translation{Text: text}, nil
	}

	masked, tokens := protectProperNouns(text, s.nouns.Detect(text))
	current := masked
	for _, leg := range legs {
		leg := leg
		in := current
		var out string
		err := s.retry.Do(ctx, "translate "+leg.String(), func(ctx context.Context) error {
			var err error
			out, err = s.engine.Translate(ctx, in, leg.Source, leg.Target)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return Translation{}, ctx.Err()
			}
			if k := fault.KindOf(err); k == fault.UnsupportedLanguagePair || k == fault.TranslationFailed {
				return Translation{}, err
			}
			return Translation{}, fault.Wrap(fault.TranslationFailed, err, "leg %s", leg)
		}
		current = out
	}

	restored, n := restoreProperNouns(current, tokens)
	return Translation{Text: restored, Protected: len(tokens), Restored: n}, nil
}

var (
	// Tolerates spacing and case changes translators introduce around markers.
	markerPattern = regexp.MustCompile(`(?i)_\s*_\s*PN\s*(\d*)\s*_\s*_`)
	wordPattern   = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

func marker(i int) string {
	return fmt.Sprintf("__PN%d__", i)
}

// protectProperNouns replaces each whole-word occurrence of tokens with an opaque marker.
func protectProperNouns(text string, tokens []string) (string, []string) {
	if len(tokens) == 0 {
		return text, nil
	}
	index := make(map[string]int, len(tokens))
	for i, t := range tokens {
		index[t] = i
	}
	masked := wordPattern.ReplaceAllStringFunc(text, func(w string) string {
		if i, ok := index[w]; ok {
			return marker(i)
		}
		return w
	})
	return masked, tokens
}

// restoreProperNouns puts tokens back and strips any marker it cannot resolve.
// It returns how many distinct tokens were restored.
func restoreProperNouns(text string, tokens []string) (string, int) {
	seen := make(map[int]bool)
	out := markerPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := markerPattern.FindStringSubmatch(m)
		i, err := strconv.Atoi(sub[1])
		if err != nil || i < 0 || i >= len(tokens) {
			return ""
		}
		seen[i] = true
		return tokens[i]
	})
	return collapseSpaces(out), len(seen)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SupportedTargets lists every language the table can reach from src, sorted.
func (t *PairTable) SupportedTargets(src string) []string {
	set := make(map[string]bool)
	for p := range t.pairs {
		if p.Target == vo.BaseLanguage(src) {
			continue
		}
		if _, err := t.Route(src, p.Target); err == nil {
			set[p.Target] = true
		}
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
