package evacuation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeShelterCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shelters.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSheltersParsesValidRows(t *testing.T) {
	path := writeShelterCSV(t, "name,lat,lon,capacity,type,barangay\n"+
		"Marikina Sports Center,14.6500,121.1000,500,covered_court,Barangka\n")
	shelters, err := LoadShelters(path)
	require.NoError(t, err)
	require.Len(t, shelters, 1)
	assert.Equal(t, "Marikina Sports Center", shelters[0].Name)
	assert.Equal(t, 500, shelters[0].Capacity)
	assert.Equal(t, "Barangka", shelters[0].Barangay)
}

func TestLoadSheltersSkipsNonFiniteCoordinates(t *testing.T) {
	path := writeShelterCSV(t, "name,lat,lon,capacity,type,barangay\n"+
		"Bad Row,NaN,121.1000,500,covered_court,Barangka\n"+
		"Good Row,14.6500,121.1000,500,covered_court,Barangka\n")
	shelters, err := LoadShelters(path)
	require.NoError(t, err)
	require.Len(t, shelters, 1)
	assert.Equal(t, "Good Row", shelters[0].Name)
}

func TestLoadSheltersSkipsMalformedRows(t *testing.T) {
	path := writeShelterCSV(t, "name,lat,lon,capacity,type,barangay\n"+
		"Too Few Columns,14.65,121.10\n")
	shelters, err := LoadShelters(path)
	require.NoError(t, err)
	assert.Empty(t, shelters)
}
