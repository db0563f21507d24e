package pipeline

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/G-Research/pppp/internal/common/pipelineerrors"
	"github.com/G-Research/pppp/internal/common/slices"
)

// SubUnits is the number of sub-units an unqualified identifier expands to.
const SubUnits = 3

var qualifiedName = regexp.MustCompile(`-[0-9]+$`)

// ResolveUnitNames turns user supplied identifiers into canonical unit names.
//
// With no identifiers, every subdirectory of listDir named like a unit (<id>-N) is a unit, in name order. If every identifier
// ends in -N the list is used as is. If none does, each identifier expands to <id>-0, <id>-1 and <id>-2.
// Anything else, including a mix of the two forms or a name appearing twice, is a configuration error.
func ResolveUnitNames(ids []string, listDir string) ([]string, error) {
	if len(ids) == 0 {
		return listUnitDirs(listDir)
	}

	qualified := 0
	for _, id := range ids {
		if id == "" || strings.TrimSpace(id) != id || filepath.Base(id) != id {
			return nil, &pipelineerrors.ErrConfiguration{Name: "files", Value: id, Message: "not a valid unit identifier"}
		}
		if qualifiedName.MatchString(id) {
			qualified++
		}
	}

	var names []string
	switch qualified {
	case len(ids):
		names = ids
	case 0:
		names = make([]string, 0, len(ids)*SubUnits)
		for _, id := range ids {
			for i := 0; i < SubUnits; i++ {
				names = append(names, id+"-"+strconv.Itoa(i))
			}
		}
	default:
		unqualified := slices.Filter(ids, func(id string) bool { return !qualifiedName.MatchString(id) })
		return nil, &pipelineerrors.ErrConfiguration{
			Name:    "files",
			Value:   ids,
			Message: "qualified and unqualified identifiers cannot be mixed; unqualified: " + strings.Join(unqualified, " "),
		}
	}

	if duplicates := slices.Duplicates(names); len(duplicates) > 0 {
		return nil, &pipelineerrors.ErrConfiguration{
			Name:    "files",
			Value:   ids,
			Message: "duplicate units " + strings.Join(duplicates, " "),
		}
	}
	return names, nil
}

func listUnitDirs(listDir string) ([]string, error) {
	entries, err := os.ReadDir(listDir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") && qualifiedName.MatchString(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, &pipelineerrors.ErrConfiguration{Name: "files", Value: listDir, Message: "no unit directories found"}
	}
	return names, nil
}

// SourcePath is where the raw data of the named unit lives: <dataDir>/<name>/run<name>.h5.
func SourcePath(dataDir, name string) string {
	return filepath.Join(dataDir, name, "run"+name+".h5")
}

// NewUnits creates a unit in state UnitCreated for each name, working in <workDir>/<name>.
func NewUnits(names []string, dataDir, workDir string) []*Unit {
	units := make([]*Unit, len(names))
	for i, name := range names {
		units[i] = &Unit{
			Name:       name,
			Ordinal:    i,
			SourcePath: SourcePath(dataDir, name),
			WorkDir:    filepath.Join(workDir, name),
			State:      UnitCreated,
		}
	}
	return units
}
