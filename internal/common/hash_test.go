package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLHash(t *testing.T) {
	// md5("https://example.com/")
	assert.Equal(t, "182ccedb33a9e03fbf1079b209da1a31", URLHash("https://example.com/"))
	assert.Len(t, URLHash(""), 32)
	assert.NotEqual(t, URLHash("https://a.com/"), URLHash("https://b.com/"))
}

func TestContentHash(t *testing.T) {
	// sha256("")
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentHash(""))
	assert.Len(t, ContentHash("hello"), 64)
	assert.Equal(t, ContentHash("same"), ContentHash("same"))
	assert.NotEqual(t, ContentHash("a"), ContentHash("b"))
}
