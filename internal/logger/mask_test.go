package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskID(t *testing.T) {
	assert.Equal(t, "****", MaskID(""))
	assert.Equal(t, "****", MaskID(" abc "))
	assert.Equal(t, "****", MaskID("12345678"))
	assert.Equal(t, "3f1c2a9b***", MaskID("3f1c2a9b-77aa-4e0b-9a55-0c7de1f0a111"))
}
