package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound3(t *testing.T) {
	assert.Equal(t, 0.4, Round3(0.40000000001))
	assert.Equal(t, 0.001, Round3(0.0005))
	assert.Equal(t, 0.0, Round3(0.0004))
	assert.Equal(t, -0.001, Round3(-0.0012))
}
