package errno

import (
	"errors"
	"fmt"
	"testing"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"nil", nil, 200, "Success"},
		{"errno", ErrJobNotFound, 20008, "Dubbing job not found"},
		{"biz", NewBizError(ErrUnsupportedLanguage, "xx"), 20019, "Unsupported language: xx"},
		{"wrapped biz", fmt.Errorf("submit: %w", NewBizError(ErrQueueFull, "")), 20012, "Job queue is full"},
		{"plain", errors.New("boom"), 500, "boom"},
	}
	for _, tc := range cases {
		code, msg := Decode(tc.err)
		if code != tc.code || msg != tc.msg {
			t.Fatalf("%s: got (%d, %q) want (%d, %q)", tc.name, code, msg, tc.code, tc.msg)
		}
	}
}

func TestBizErrorUnwrap(t *testing.T) {
	err := NewBizError(ErrJobNotFound, "job-1")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatal("BizError should unwrap to its Errno")
	}
}
