package entity

// AudioChunk is a time-bounded slice of the extracted audio. Chunks live only for
// the duration of a job and are never persisted.
type AudioChunk struct {
	Index           int
	StartSeconds    float64
	DurationSeconds float64
	Path            string

	Transcript      string
	Confidence      float64
	TranslatedText  string
	SynthesizedPath string
}

// EndSeconds 分片结束时间
func (c *AudioChunk) EndSeconds() float64 {
	return c.StartSeconds + c.DurationSeconds
}
