package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRange(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"WildcardKept", " 261347435XXX ", "261347435XXX", nil},
		{"WildcardLowercaseKept", "22507xxx", "22507xxx", nil},
		{"FullNumberLosesLastThree", "+261 347 435 123", "261347435XXX", nil},
		{"ThreeDigitsKept", "225", "225XXX", nil},
		{"Empty", "", "", ErrInvalidRange},
		{"OnlyWildcard", "XXX", "", ErrInvalidRange},
		{"Letters", "abc", "", ErrInvalidRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeRange(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatPrettyNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+261347435123", "+261 347 435 123"},
		{"261347435123", "261 347 435 123"},
		{"2250701234", "2 250 701 234"},
		{"+44 (0) 7700", "+4 407 700"},
		{"unknown", "unknown"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPrettyNumber(tt.in))
		})
	}
}
