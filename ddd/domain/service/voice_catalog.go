package service

import (
	"strings"

	"dubbing-service/ddd/domain/vo"
)

// defaultVoices maps "locale" and "locale/gender" to provider voice names. The
// unsuffixed entry is the language default.
var defaultVoices = map[string]string{
	"en-us": "en-US-Wavenet-F", "en-us/female": "en-US-Wavenet-F", "en-us/male": "en-US-Wavenet-D",
	"hi-in": "hi-IN-Wavenet-A", "hi-in/female": "hi-IN-Wavenet-A", "hi-in/male": "hi-IN-Wavenet-B",
	"ta-in": "ta-IN-Wavenet-A", "ta-in/female": "ta-IN-Wavenet-A", "ta-in/male": "ta-IN-Wavenet-B",
	"te-in": "te-IN-Standard-A", "te-in/female": "te-IN-Standard-A", "te-in/male": "te-IN-Standard-B",
	"kn-in": "kn-IN-Wavenet-A", "kn-in/female": "kn-IN-Wavenet-A", "kn-in/male": "kn-IN-Wavenet-B",
	"ml-in": "ml-IN-Wavenet-A", "ml-in/female": "ml-IN-Wavenet-A", "ml-in/male": "ml-IN-Wavenet-B",
	"bn-in": "bn-IN-Wavenet-A", "bn-in/female": "bn-IN-Wavenet-A", "bn-in/male": "bn-IN-Wavenet-B",
	"gu-in": "gu-IN-Wavenet-A", "gu-in/female": "gu-IN-Wavenet-A", "gu-in/male": "gu-IN-Wavenet-B",
	"mr-in": "mr-IN-Wavenet-A", "mr-in/female": "mr-IN-Wavenet-A", "mr-in/male": "mr-IN-Wavenet-B",
	"pa-in": "pa-IN-Wavenet-A", "pa-in/female": "pa-IN-Wavenet-A", "pa-in/male": "pa-IN-Wavenet-B",
	"es-es": "es-ES-Wavenet-C", "es-es/female": "es-ES-Wavenet-C", "es-es/male": "es-ES-Wavenet-B",
	"fr-fr": "fr-FR-Wavenet-A", "fr-fr/female": "fr-FR-Wavenet-A", "fr-fr/male": "fr-FR-Wavenet-B",
	"de-de": "de-DE-Wavenet-A", "de-de/female": "de-DE-Wavenet-A", "de-de/male": "de-DE-Wavenet-B",
	"it-it": "it-IT-Wavenet-A", "it-it/female": "it-IT-Wavenet-A", "it-it/male": "it-IT-Wavenet-C",
	"pt-br": "pt-BR-Wavenet-A", "pt-br/female": "pt-BR-Wavenet-A", "pt-br/male": "pt-BR-Wavenet-B",
	"ur-in": "ur-IN-Wavenet-A", "ur-in/female": "ur-IN-Wavenet-A", "ur-in/male": "ur-IN-Wavenet-B",
	"ja-jp": "ja-JP-Wavenet-B", "ja-jp/female": "ja-JP-Wavenet-B", "ja-jp/male": "ja-JP-Wavenet-C",
	"ko-kr": "ko-KR-Wavenet-A", "ko-kr/female": "ko-KR-Wavenet-A", "ko-kr/male": "ko-KR-Wavenet-C",
	"cmn-cn": "cmn-CN-Wavenet-A", "cmn-cn/female": "cmn-CN-Wavenet-A", "cmn-cn/male": "cmn-CN-Wavenet-B",
	"ar-xa": "ar-XA-Wavenet-A", "ar-xa/female": "ar-XA-Wavenet-A", "ar-xa/male": "ar-XA-Wavenet-B",
	"ru-ru": "ru-RU-Wavenet-A", "ru-ru/female": "ru-RU-Wavenet-A", "ru-ru/male": "ru-RU-Wavenet-B",
}

// crossLanguageFallback names the language whose voices read a language that has
// none of its own.
var crossLanguageFallback = map[string]string{
	"ne": "hi",
	"sa": "hi",
	"or": "bn",
	"as": "bn",
}

const fallbackLocale = "en-us"

// VoiceCatalog 根据语言与性别选择合成音色
type VoiceCatalog struct {
	voices map[string]string
}

// NewVoiceCatalog merges overrides (same key format as the defaults) over the built-in table.
func NewVoiceCatalog(overrides map[string]string) *VoiceCatalog {
	voices := make(map[string]string, len(defaultVoices)+len(overrides))
	for k, v := range defaultVoices {
		voices[k] = v
	}
	for k, v := range overrides {
		voices[strings.ToLower(k)] = v
	}
	return &VoiceCatalog{voices: voices}
}

// Select picks a voice for lang: gender override, language default, then the
// cross-language fallback, then English.
func (c *VoiceCatalog) Select(lang string, gender vo.Gender) vo.VoiceProfile {
	candidates := []string{strings.ToLower(vo.LocaleFor(lang)), vo.BaseLanguage(lang)}
	if fb, ok := crossLanguageFallback[vo.BaseLanguage(lang)]; ok {
		candidates = append(candidates, strings.ToLower(vo.LocaleFor(fb)), fb)
	}
	candidates = append(candidates, fallbackLocale)

	for _, key := range candidates {
		if gender == vo.GenderMale || gender == vo.GenderFemale {
			if v, ok := c.voices[key+"/"+string(gender)]; ok {
				return profileFor(v, gender)
			}
		}
		if v, ok := c.voices[key]; ok {
			return profileFor(v, gender)
		}
	}
	return profileFor(defaultVoices[fallbackLocale], gender)
}

// profileFor derives the synthesis language from a "ll-RR-Name" voice id.
func profileFor(voice string, gender vo.Gender) vo.VoiceProfile {
	lang := voice
	if parts := strings.SplitN(voice, "-", 3); len(parts) >= 2 {
		lang = parts[0] + "-" + parts[1]
	}
	return vo.VoiceProfile{Language: lang, Gender: gender, VoiceID: voice}
}
