package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDeterministic(t *testing.T) {
	payload := map[string]interface{}{
		"population": 100,
		"households": 25,
		"name":       "Sitio Malipayon",
	}
	first := Hash(payload)
	second := Hash(payload)
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestHashIgnoresMapOrder(t *testing.T) {
	a := map[string]interface{}{"x": 1, "y": 2, "z": 3}
	b := map[string]interface{}{"z": 3, "y": 2, "x": 1}
	assert.Equal(t, Hash(a), Hash(b))
}

func TestHashDetectsFieldChange(t *testing.T) {
	base := map[string]interface{}{"population": 100}
	changed := map[string]interface{}{"population": 150}
	assert.NotEqual(t, Hash(base), Hash(changed))
}

func TestHashNestedStructures(t *testing.T) {
	type profile struct {
		Population int    `json:"population"`
		Barangay   string `json:"barangay"`
	}
	a := profile{Population: 10, Barangay: "Poblacion"}
	b := profile{Population: 10, Barangay: "Poblacion"}
	c := profile{Population: 10, Barangay: "San Isidro"}
	assert.Equal(t, Hash(a), Hash(b))
	assert.NotEqual(t, Hash(a), Hash(c))
}

func TestHashNil(t *testing.T) {
	assert.Equal(t, HashString("null"), Hash(nil))
}

func TestHashStringRolling(t *testing.T) {
	// h("a") = 97, h("ab") = 97*31 + 98 = 3105.
	assert.Equal(t, "61", HashString("a"))
	assert.Equal(t, "c21", HashString("ab"))
	assert.Equal(t, "0", HashString(""))
}
