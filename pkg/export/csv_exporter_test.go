package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCSV(t *testing.T) {
	data := Dataset{
		Columns: []string{"Metric", "Value"},
		Rows: []map[string]string{
			{"Metric": "Population", "Value": "200"},
			{"Metric": "Households"},
		},
	}

	out, err := RenderCSV(data)
	require.NoError(t, err)
	assert.Equal(t, "Metric,Value\nPopulation,200\nHouseholds,\n", string(out))
}

func TestRenderCSVRequiresColumns(t *testing.T) {
	_, err := RenderCSV(Dataset{Rows: []map[string]string{{"Metric": "x"}}})
	require.Error(t, err)
}
