package clip

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"shorter than budget", "hello", 10, "hello"},
		{"exactly at budget", "hello", 5, "hello"},
		{"one over budget", "hello!", 5, "hell…"},
		{"budget of one", "hello", 1, "…"},
		{"zero budget", "hello", 0, ""},
		{"empty input", "", 3, ""},
		{"multi-byte runes", "привет мир", 7, "привет…"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Text(tc.in, tc.max))
		})
	}
}

func TestTextLengthNeverExceedsBudget(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("ab€", 500)
	for _, max := range []int{1, 2, 17, 400, 1499} {
		got := Text(long, max)
		assert.Equal(t, max, utf8.RuneCountInString(got))
		assert.True(t, strings.HasSuffix(got, Ellipsis))
	}
}
