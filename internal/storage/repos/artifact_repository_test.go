package repos

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Flaque/filet"
	"github.com/plantarium-platform/apisync-go/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactRepository_WriteTempAndAdopt(t *testing.T) {
	defer filet.CleanUp(t)
	ws := storage.GetTestWorkspace(t, "run1")
	repo := NewArtifactRepository(ws)

	first, err := repo.WriteTemp("customer-service", []byte("a: 1\n"))
	require.NoError(t, err)
	second, err := repo.WriteTemp("customer-service", []byte("a: 2\n"))
	require.NoError(t, err)

	// Temp files are unique and live in the run temp dir
	assert.NotEqual(t, first, second)
	assert.Equal(t, ws.TempDir, filepath.Dir(first))
	assert.False(t, repo.Exists("customer-service_1.0.0.yaml"))

	require.NoError(t, repo.Adopt(second, "customer-service_1.0.0.yaml"))

	assert.True(t, repo.Exists("customer-service_1.0.0.yaml"))
	data, err := repo.Read("customer-service_1.0.0.yaml")
	require.NoError(t, err)
	assert.Equal(t, "a: 2\n", string(data))
	assert.NoFileExists(t, second)
}

func TestArtifactRepository_Restore(t *testing.T) {
	defer filet.CleanUp(t)
	ws := storage.GetTestWorkspace(t, "run1")
	repo := NewArtifactRepository(ws)

	require.NoError(t, repo.Restore("orders_1.0.0.yaml", []byte("b: 1\n")))

	data, err := os.ReadFile(filepath.Join(ws.OutputDir, "orders_1.0.0.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "b: 1\n", string(data))
}

func TestArtifactRepository_NotStarted(t *testing.T) {
	repo := NewArtifactRepository(storage.NewWorkspace("apis", "backup"))

	_, err := repo.WriteTemp("x", []byte("a: 1\n"))

	assert.Error(t, err)
}
