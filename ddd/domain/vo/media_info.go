package vo

// MediaInfo 媒体探测结果
type MediaInfo struct {
	DurationSeconds float64
	HasAudioStream  bool
	HasVideoStream  bool
	VideoCodec      string
	AudioCodec      string
	Width           int
	Height          int
}
