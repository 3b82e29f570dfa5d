package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreprocessText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "plain text untouched",
			in:   "What is 2 + 2?",
			want: "What is 2 + 2?",
		},
		{
			name: "collapses space runs",
			in:   "too   many    spaces",
			want: "too many spaces",
		},
		{
			name: "tabs become spaces",
			in:   "a\tb\t\tc",
			want: "a b c",
		},
		{
			name: "drops control characters",
			in:   "he\x00llo\x07 world",
			want: "hello world",
		},
		{
			name: "keeps single blank line",
			in:   "first\n\nsecond",
			want: "first\n\nsecond",
		},
		{
			name: "collapses three or more newlines",
			in:   "first\n\n\n\nsecond",
			want: "first\n\nsecond",
		},
		{
			name: "trims each line and the whole",
			in:   "  first line  \n   second line\t\n",
			want: "first line\nsecond line",
		},
		{
			name: "carriage returns dropped",
			in:   "a\r\nb",
			want: "a\nb",
		},
		{
			name: "unicode preserved",
			in:   "π ≈ 3.14159, Ω resistance",
			want: "π ≈ 3.14159, Ω resistance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PreprocessText(tt.in))
		})
	}
}
