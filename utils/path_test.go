package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProjectPath(t *testing.T) {
	abs := filepath.Join(string(filepath.Separator), "data", "input.txt")

	assert.Equal(t, filepath.Join("proj", "config", "input.txt"), ProjectPath("proj", filepath.Join("config", "input.txt")))
	assert.Equal(t, abs, ProjectPath("proj", abs))
	assert.Equal(t, "input.txt", ProjectPath("", "input.txt"))
	assert.Equal(t, "", ProjectPath("proj", ""))
}
