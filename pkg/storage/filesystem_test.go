package storage

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportStoreSaveOpenDelete(t *testing.T) {
	store, err := NewReportStore(t.TempDir())
	require.NoError(t, err)

	rel, err := store.Save("reports/job-1.csv", []byte("Metric,Value\n"))
	require.NoError(t, err)
	assert.Equal(t, "reports/job-1.csv", rel)

	file, err := store.Open(rel)
	require.NoError(t, err)
	data, err := io.ReadAll(file)
	require.NoError(t, file.Close())
	require.NoError(t, err)
	assert.Equal(t, "Metric,Value\n", string(data))

	require.NoError(t, store.Delete(rel))
	_, err = store.Open(rel)
	require.Error(t, err)
}

func TestReportStoreDeleteIgnoresMissingFile(t *testing.T) {
	store, err := NewReportStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Delete("reports/never-written.pdf"))
}

func TestReportStoreRejectsEscapingPaths(t *testing.T) {
	store, err := NewReportStore(t.TempDir())
	require.NoError(t, err)

	for _, rel := range []string{"../outside.csv", "/etc/passwd", ""} {
		_, err := store.Save(rel, []byte("x"))
		assert.Error(t, err, rel)
	}
}
