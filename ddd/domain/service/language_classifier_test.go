package service

import "testing"

func TestScriptLanguageClassifier(t *testing.T) {
	t.Parallel()
	c := NewLanguageClassifier()

	cases := []struct {
		text          string
		wantCode      string
		wantConfident bool
	}{
		{"यह एक परीक्षण है", "hi", true},
		{"வணக்கம் உலகம்", "ta", true},
		{"আমি ভাত খাই", "bn", true},
		{"یہ ایک امتحان ہے", "ur", true},
		{"This is the best day of the year", "en", true},
		{"xyzzy plugh", "en", false},
		{"", "en", false},
	}
	for _, tc := range cases {
		code, confident := c.Detect(tc.text)
		if code != tc.wantCode || confident != tc.wantConfident {
			t.Fatalf("Detect(%q) = %s/%v, want %s/%v", tc.text, code, confident, tc.wantCode, tc.wantConfident)
		}
	}
}
