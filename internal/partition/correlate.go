package partition

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/G-Research/pppp/internal/common/pipelineerrors"
	"github.com/G-Research/pppp/internal/common/slices"
	"github.com/G-Research/pppp/internal/pppp/configuration"
)

// eventKey identifies an auxiliary event: the file it belongs to and its position within that file.
type eventKey struct {
	fileId   string
	sequence int
}

// Correlate pairs every record with its auxiliary event line. The returned slice is parallel to records.
//
// Events are filtered once per file id to the lines whose file is run<fileId>.h5. In ordinal mode the n-th record of
// a file is paired with the n-th event line of that file, and the counts must match. In sequence mode the
// event number after "//" in the line is matched against the record's sequence number plus offset, and
// every record must find its event.
func Correlate(unit string, records []Record, events []string, config configuration.CorrelationConfig) ([]string, error) {
	recordsByFile := slices.GroupByFunc(indices(records), func(i int) string { return records[i].FileId() })

	index := make(map[eventKey]string, len(records))
	for _, fileId := range fileIdsInOrder(records) {
		recordIndices := recordsByFile[fileId]
		fileEvents := slices.Filter(events, func(line string) bool { return eventFile(line) == "run"+fileId+".h5" })
		switch config.Mode {
		case configuration.CorrelationModeSequence:
			for _, line := range fileEvents {
				seq, ok := eventSequence(line)
				if !ok {
					return nil, errors.WithStack(&pipelineerrors.ErrCorrelationMismatch{
						Unit: unit, FileId: fileId, Records: len(recordIndices), Events: len(fileEvents),
						Message: fmt.Sprintf("event line %q has no //<event> suffix", line),
					})
				}
				key := eventKey{fileId: fileId, sequence: seq}
				if _, exists := index[key]; exists {
					return nil, errors.WithStack(&pipelineerrors.ErrCorrelationMismatch{
						Unit: unit, FileId: fileId, Records: len(recordIndices), Events: len(fileEvents),
						Message: fmt.Sprintf("event %d is listed more than once", seq),
					})
				}
				index[key] = line
			}
		default:
			if len(fileEvents) != len(recordIndices) {
				return nil, errors.WithStack(&pipelineerrors.ErrCorrelationMismatch{
					Unit: unit, FileId: fileId, Records: len(recordIndices), Events: len(fileEvents),
				})
			}
			for ordinal, line := range fileEvents {
				index[eventKey{fileId: fileId, sequence: ordinal}] = line
			}
		}
	}

	correlated := make([]string, len(records))
	ordinals := make(map[string]int, len(recordsByFile))
	for i, record := range records {
		fileId := record.FileId()
		key := eventKey{fileId: fileId}
		if config.Mode == configuration.CorrelationModeSequence {
			seq, ok := record.Sequence()
			if !ok {
				return nil, errors.WithStack(&pipelineerrors.ErrCorrelationMismatch{
					Unit: unit, FileId: fileId, Records: len(recordsByFile[fileId]),
					Message: fmt.Sprintf("record %s has no sequence number", record.Id),
				})
			}
			key.sequence = seq + config.SequenceOffset
		} else {
			key.sequence = ordinals[fileId]
			ordinals[fileId]++
		}
		line, ok := index[key]
		if !ok {
			return nil, errors.WithStack(&pipelineerrors.ErrCorrelationMismatch{
				Unit: unit, FileId: fileId, Records: len(recordsByFile[fileId]), Events: countFile(index, fileId),
				Message: fmt.Sprintf("no event %d for record %s", key.sequence, record.Id),
			})
		}
		correlated[i] = line
	}
	return correlated, nil
}

// eventFile is the base name of the file an event line refers to.
func eventFile(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return path.Base(fields[0])
}

// eventSequence parses the event number of a CrystFEL style event line, e.g. "/data/run1.h5 //17".
func eventSequence(line string) (int, bool) {
	idx := strings.LastIndex(line, "//")
	if idx == -1 {
		return 0, false
	}
	seq, err := strconv.Atoi(strings.TrimSpace(line[idx+2:]))
	if err != nil {
		return 0, false
	}
	return seq, true
}

func fileIdsInOrder(records []Record) []string {
	var rv []string
	seen := make(map[string]bool)
	for _, record := range records {
		if fileId := record.FileId(); !seen[fileId] {
			seen[fileId] = true
			rv = append(rv, fileId)
		}
	}
	return rv
}

func indices(records []Record) []int {
	rv := make([]int, len(records))
	for i := range records {
		rv[i] = i
	}
	return rv
}

func countFile(index map[eventKey]string, fileId string) int {
	n := 0
	for key := range index {
		if key.fileId == fileId {
			n++
		}
	}
	return n
}
