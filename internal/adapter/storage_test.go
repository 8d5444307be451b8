package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcceptsType(t *testing.T) {
	tests := []struct {
		pattern     string
		contentType string
		want        bool
	}{
		{"*/*", "application/octet-stream", true},
		{"*/*", "", true},
		{"image/*", "image/png", true},
		{"image/*", "text/plain; charset=utf-8", false},
		{"image/png, text/plain", "text/plain; charset=utf-8", true},
		{"image/png", "not a type", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, acceptsType(tt.pattern, tt.contentType), "%s accepts %q", tt.pattern, tt.contentType)
	}
	assert.True(t, AcceptsUpload("video/mp4"))
}
