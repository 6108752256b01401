package vo

import "strings"

// AutoLanguage requests source-language detection.
const AutoLanguage = "auto"

// LanguagePair 翻译语言对
type LanguagePair struct {
	Source string
	Target string
}

func (p LanguagePair) String() string {
	return p.Source + ":" + p.Target
}

// BaseLanguage lowercases a BCP-47 code and strips its region: "hi-IN" -> "hi".
func BaseLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "_", "-")
	if i := strings.IndexByte(code, '-'); i > 0 {
		return code[:i]
	}
	return code
}

// NormalizeLanguage canonicalises a language code to "ll" or "ll-RR".
func NormalizeLanguage(code string) string {
	code = strings.TrimSpace(strings.ReplaceAll(code, "_", "-"))
	if code == "" {
		return ""
	}
	if strings.EqualFold(code, AutoLanguage) {
		return AutoLanguage
	}
	parts := strings.SplitN(code, "-", 2)
	out := strings.ToLower(parts[0])
	if len(parts) == 2 && parts[1] != "" {
		out += "-" + strings.ToUpper(parts[1])
	}
	return out
}

// LocaleFor expands a bare language to the default locale used by speech providers.
func LocaleFor(code string) string {
	code = NormalizeLanguage(code)
	if strings.Contains(code, "-") || code == AutoLanguage {
		return code
	}
	if loc, ok := defaultLocales[code]; ok {
		return loc
	}
	return code
}

var defaultLocales = map[string]string{
	"en": "en-US",
	"hi": "hi-IN",
	"ta": "ta-IN",
	"te": "te-IN",
	"kn": "kn-IN",
	"ml": "ml-IN",
	"bn": "bn-IN",
	"gu": "gu-IN",
	"pa": "pa-IN",
	"mr": "mr-IN",
	"ur": "ur-IN",
	"es": "es-ES",
	"fr": "fr-FR",
	"de": "de-DE",
	"it": "it-IT",
	"pt": "pt-BR",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"zh": "cmn-CN",
	"ar": "ar-XA",
	"ru": "ru-RU",
}
