package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS_PairsEveryUpWithDown(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(FS, down)
		assert.NoError(t, err, "missing %s", down)
	}
}

func TestFS_SchemaKeys(t *testing.T) {
	b, err := fs.ReadFile(FS, "000001_create_schema.up.sql")
	require.NoError(t, err)
	sql := string(b)

	assert.Contains(t, sql, "code           TEXT NOT NULL UNIQUE")
	assert.Contains(t, sql, "UNIQUE (province_id, name)")
	assert.Contains(t, sql, "PRIMARY KEY (station_id, date)")
	assert.Contains(t, sql, "NOT IN (8888, 9999)")
	assert.Contains(t, sql, "GEOMETRY(Point, 4326)")
}

func TestFS_ReadableAsMigrationSource(t *testing.T) {
	src, err := iofs.New(FS, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	r, identifier, err := src.ReadUp(first)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "create_schema", identifier)
}
