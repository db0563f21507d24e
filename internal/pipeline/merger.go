package pipeline

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/G-Research/pppp/internal/common/pipelineerrors"
	"github.com/G-Research/pppp/internal/common/slices"
	"github.com/G-Research/pppp/internal/common/util"
)

// UnitLines is the number of lines a unit contributed to a merged file.
type UnitLines struct {
	Unit  string
	Lines int
}

// Merge concatenates the non-blank lines of <unit.WorkDir>/<input> for each unit, in the order given, and
// writes them to outputPath. If any unit's file cannot be read nothing is written.
func Merge(units []*Unit, input, outputPath string) ([]UnitLines, error) {
	perUnit := make([][]string, len(units))
	counts := make([]UnitLines, len(units))
	for i, unit := range units {
		path := filepath.Join(unit.WorkDir, input)
		lines, err := util.ReadLines(path)
		if err != nil {
			return nil, errors.WithStack(&pipelineerrors.ErrArtifactMissing{Path: path, Cause: errors.Cause(err)})
		}
		perUnit[i] = util.NonBlank(lines)
		counts[i] = UnitLines{Unit: unit.Name, Lines: len(perUnit[i])}
	}
	if err := util.WriteLinesAtomic(outputPath, slices.Flatten(perUnit)); err != nil {
		return nil, err
	}
	return counts, nil
}

// SplitByUnit cuts merged lines back into per-unit slices using the counts returned by Merge.
func SplitByUnit(lines []string, counts []UnitLines) (map[string][]string, error) {
	total := 0
	for _, c := range counts {
		total += c.Lines
	}
	if total != len(lines) {
		return nil, errors.Errorf("counts cover %d lines but %d were given", total, len(lines))
	}
	rv := make(map[string][]string, len(counts))
	offset := 0
	for _, c := range counts {
		rv[c.Unit] = lines[offset : offset+c.Lines]
		offset += c.Lines
	}
	return rv, nil
}
