package partition

import (
	"math"
	"strconv"
	"strings"

	"github.com/G-Research/pppp/internal/common/util"
)

// Record is one measured sample. Ids look like run<fileId>_<sequence>, e.g. run133451-0_000042.
type Record struct {
	Id          string
	Measurement float64
}

// FileId is the id of the file the record was taken from: everything before the first underscore, with
// "run" removed.
func (r Record) FileId() string {
	return strings.ReplaceAll(strings.SplitN(r.Id, "_", 2)[0], "run", "")
}

// Sequence is the number after the last underscore of the id.
func (r Record) Sequence() (int, bool) {
	idx := strings.LastIndex(r.Id, "_")
	if idx == -1 {
		return 0, false
	}
	seq, err := strconv.Atoi(r.Id[idx+1:])
	if err != nil {
		return 0, false
	}
	return seq, true
}

// ParseRecords reads identifier,measurement lines. Blank lines are skipped. Lines that are not of that
// form, including those whose measurement is NaN or infinite, are dropped and counted. If the input consists of a single line, it is split on whitespace and
// each field is treated as a line.
func ParseRecords(contents []byte) (records []Record, dropped int) {
	lines := util.SplitLines(contents)
	if len(lines) == 1 {
		lines = strings.Fields(lines[0])
	}
	records = make([]Record, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		record, ok := parseRecord(line)
		if !ok {
			dropped++
			continue
		}
		records = append(records, record)
	}
	return records, dropped
}

func parseRecord(line string) (Record, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return Record{}, false
	}
	id := strings.TrimSpace(fields[0])
	if id == "" {
		return Record{}, false
	}
	measurement, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil || math.IsNaN(measurement) || math.IsInf(measurement, 0) {
		return Record{}, false
	}
	return Record{Id: id, Measurement: measurement}, true
}
