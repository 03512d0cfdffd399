package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidAdminKey(t *testing.T) {
	assert.True(t, ValidAdminKey("your-secret-admin-key", "your-secret-admin-key"))
	assert.True(t, ValidAdminKey("k3y", " k3y "), "surrounding space is ignored")
	assert.False(t, ValidAdminKey("k3y", "K3Y"), "keys are case-sensitive")
	assert.False(t, ValidAdminKey("k3y", ""))
	assert.False(t, ValidAdminKey("", ""), "empty configured key disables admin")
}
