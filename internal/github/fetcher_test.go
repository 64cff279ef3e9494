package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTacticNameFromFile(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"harden.js", "harden"},
		{"model_hardening.js", "model hardening"},
		{"detect-and-deceive.js", "detect and deceive"},
		{"evict.js", "evict"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tacticNameFromFile(tt.file))
	}
}

func TestShortCommit(t *testing.T) {
	assert.Equal(t, "abc123de", shortCommit("abc123def4567890"))
	assert.Equal(t, "abc", shortCommit("abc"))
}
