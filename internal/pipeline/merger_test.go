package pipeline

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/pppp/internal/common/pipelineerrors"
	"github.com/G-Research/pppp/internal/common/util"
)

func writeUnitOutput(t *testing.T, unit *Unit, contents string) {
	require.NoError(t, os.MkdirAll(unit.WorkDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(unit.WorkDir, "radial_average.csv"), []byte(contents), 0o644))
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	units := NewUnits([]string{"b-0", "a-0"}, "/data", dir)
	writeUnitOutput(t, units[0], "runb-0_000001,10\n\nrunb-0_000002,20\n")
	writeUnitOutput(t, units[1], "runa-0_000001,30\n")
	output := filepath.Join(dir, "radial_average_all.csv")

	counts, err := Merge(units, "radial_average.csv", output)
	require.NoError(t, err)
	assert.Equal(t, []UnitLines{{Unit: "b-0", Lines: 2}, {Unit: "a-0", Lines: 1}}, counts)

	contents, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "runb-0_000001,10\nrunb-0_000002,20\nruna-0_000001,30\n", string(contents))
}

func TestMerge_MissingUnitWritesNothing(t *testing.T) {
	dir := t.TempDir()
	units := NewUnits([]string{"a-0", "a-1"}, "/data", dir)
	writeUnitOutput(t, units[0], "runa-0_000001,10\n")
	output := filepath.Join(dir, "radial_average_all.csv")

	_, err := Merge(units, "radial_average.csv", output)
	assert.Equal(t, pipelineerrors.ExitArtifactMissing, pipelineerrors.ExitCodeFromError(err))
	assert.NoFileExists(t, output)
}

func TestMerge_SplitRestoresUnitOrder(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	dir := t.TempDir()
	names := []string{"c-0", "a-2", "b-1", "a-0", "d-1"}
	units := NewUnits(names, "/data", dir)
	want := make(map[string][]string)
	for _, unit := range units {
		lines := make([]string, r.Intn(20))
		for i := range lines {
			lines[i] = unit.Name + "," + strings.Repeat("x", r.Intn(5)+1)
		}
		want[unit.Name] = lines
		writeUnitOutput(t, unit, strings.Join(lines, "\n"))
	}
	output := filepath.Join(dir, "radial_average_all.csv")

	counts, err := Merge(units, "radial_average.csv", output)
	require.NoError(t, err)
	merged, err := util.ReadLines(output)
	require.NoError(t, err)

	split, err := SplitByUnit(merged, counts)
	require.NoError(t, err)
	for _, name := range names {
		assert.Equal(t, len(want[name]), len(split[name]), name)
		for i := range want[name] {
			assert.Equal(t, want[name][i], split[name][i])
		}
	}
}

func TestSplitByUnit_CountMismatch(t *testing.T) {
	_, err := SplitByUnit([]string{"a"}, []UnitLines{{Unit: "a-0", Lines: 2}})
	assert.Error(t, err)
}
