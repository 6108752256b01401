package vo

import "strings"

// Gender 说话人性别，用于选择合成音色
type Gender string

const (
	GenderUnknown Gender = ""
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	// GenderAuto asks the pipeline to estimate the speaker gender from the audio.
	GenderAuto Gender = "auto"
)

// ParseGender accepts male/female/auto in any case; anything else is reported invalid.
func ParseGender(s string) (Gender, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return GenderUnknown, true
	case "male", "m":
		return GenderMale, true
	case "female", "f":
		return GenderFemale, true
	case "auto":
		return GenderAuto, true
	default:
		return GenderUnknown, false
	}
}

// VoiceProfile 合成音色选择参数
type VoiceProfile struct {
	Language string
	Gender   Gender
	VoiceID  string
}
