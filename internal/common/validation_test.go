package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" Funny", "#funny", "", "CATS", "cats ", "dogs"})
	assert.Equal(t, []string{"funny", "cats", "dogs"}, got)

	assert.Empty(t, NormalizeTags(nil))
}

func TestValidateTag(t *testing.T) {
	assert.NoError(t, ValidateTag("street_food"))
	assert.Error(t, ValidateTag(""))
	assert.Error(t, ValidateTag("has space"))
	assert.Error(t, ValidateTag("UPPER"))
}

func TestSplitTags(t *testing.T) {
	assert.Nil(t, SplitTags("  "))
	assert.Equal(t, []string{"a", "b"}, SplitTags("a, B ,a"))
}
