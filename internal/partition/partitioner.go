package partition

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/G-Research/pppp/internal/common/logctx"
	"github.com/G-Research/pppp/internal/common/metrics"
	"github.com/G-Research/pppp/internal/common/pipelineerrors"
	"github.com/G-Research/pppp/internal/common/util"
	"github.com/G-Research/pppp/internal/dataset"
	"github.com/G-Research/pppp/internal/pppp/configuration"
)

// Result is the classification of one unit's records.
type Result struct {
	Unit string
	// Record ids per category, in input order.
	Ids map[Category][]string
	// Correlated auxiliary event lines per category, in input order. Nil if no auxiliary list was given.
	Events map[Category][]string
	// One code per record, in input order.
	Codes []uint8
	// Number of malformed input lines that were skipped.
	Dropped int
}

func (r Result) Count(c Category) int {
	return len(r.Ids[c])
}

func (r Result) Total() int {
	return len(r.Codes)
}

// Partitioner classifies the records of each unit and writes the per category artifacts.
type Partitioner struct {
	thresholds  Thresholds
	correlation configuration.CorrelationConfig
	events      []string
	metrics     *metrics.Metrics
}

// NewPartitioner creates a Partitioner. If events is nil no correlation is performed and no events files are
// written.
func NewPartitioner(thresholds Thresholds, correlation configuration.CorrelationConfig, events []string, m *metrics.Metrics) *Partitioner {
	return &Partitioner{
		thresholds:  thresholds,
		correlation: correlation,
		events:      events,
		metrics:     m,
	}
}

// Classify assigns every record a category. It has no side effects.
func (p *Partitioner) Classify(unit string, records []Record) (Result, error) {
	result := Result{
		Unit:  unit,
		Ids:   make(map[Category][]string, len(Categories)),
		Codes: make([]uint8, len(records)),
	}
	var correlated []string
	if p.events != nil {
		var err error
		correlated, err = Correlate(unit, records, p.events, p.correlation)
		if err != nil {
			return Result{}, err
		}
		result.Events = make(map[Category][]string, len(Categories))
	}
	for _, c := range Categories {
		result.Ids[c] = []string{}
		if result.Events != nil {
			result.Events[c] = []string{}
		}
	}
	for i, record := range records {
		category := p.thresholds.Classify(record.Measurement)
		result.Codes[i] = uint8(category)
		result.Ids[category] = append(result.Ids[category], record.Id)
		if correlated != nil {
			result.Events[category] = append(result.Events[category], correlated[i])
		}
	}
	return result, nil
}

// PartitionUnit classifies the records in workDir/input and replaces the unit's artifacts in workDir.
func (p *Partitioner) PartitionUnit(ctx *logctx.Context, unit, workDir, input string) (Result, error) {
	path := filepath.Join(workDir, input)
	contents, err := os.ReadFile(path)
	if err != nil {
		return Result{}, errors.WithStack(&pipelineerrors.ErrArtifactMissing{Path: path, Cause: err})
	}
	records, dropped := ParseRecords(contents)
	result, err := p.Classify(unit, records)
	if err != nil {
		return Result{}, err
	}
	result.Dropped = dropped
	if err := WriteArtifacts(workDir, result); err != nil {
		return Result{}, err
	}

	for _, c := range Categories {
		p.metrics.RecordClassified(c.Label(), result.Count(c))
	}
	p.metrics.RecordDropped(metrics.DropReasonMalformedRecord, dropped)
	ctx.Log.Infof(
		"classified %d records: %d %s, %d %s, %d %s (%d malformed lines dropped)",
		result.Total(),
		result.Count(Low), Low.Label(),
		result.Count(High), High.Label(),
		result.Count(Unassigned), Unassigned.Label(),
		dropped,
	)
	return result, nil
}

// WriteArtifacts writes the index files, the events files if the result has events, and the categorical
// dataset. Existing files are replaced.
func WriteArtifacts(workDir string, result Result) error {
	for _, c := range Categories {
		if err := util.WriteLinesAtomic(filepath.Join(workDir, c.IndexFile()), result.Ids[c]); err != nil {
			return err
		}
		if result.Events != nil {
			if err := util.WriteLinesAtomic(filepath.Join(workDir, c.EventsFile()), result.Events[c]); err != nil {
				return err
			}
		}
	}
	return dataset.Write(
		filepath.Join(workDir, dataset.FileName(result.Unit)),
		dataset.Dataset{Key: dataset.DefaultKey, Codes: result.Codes},
	)
}

// LoadEvents reads an auxiliary event list, skipping blank lines.
func LoadEvents(path string) ([]string, error) {
	lines, err := util.ReadLines(path)
	if err != nil {
		return nil, errors.WithStack(&pipelineerrors.ErrArtifactMissing{Path: path, Cause: errors.Cause(err)})
	}
	return util.NonBlank(lines), nil
}
