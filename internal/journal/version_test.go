package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, CheckVersion("1.2.0", "1.2.0"))
	assert.NoError(t, CheckVersion("1.0.3", "1.2.0"))
	assert.Error(t, CheckVersion("1.3.0", "1.2.0"))
	assert.Error(t, CheckVersion("0.9.0", "1.2.0"))
	assert.Error(t, CheckVersion("2.0.0", "1.2.0"))
	assert.Error(t, CheckVersion("not-a-version", "1.2.0"))
}
