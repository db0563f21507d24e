package partition

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestParseRecords(t *testing.T) {
	tests := map[string]struct {
		input   string
		records []Record
		dropped int
	}{
		"stage 2 output": {
			input: "run133451-0_000001,12.5   \nrun133451-0_000002,41   \n",
			records: []Record{
				{Id: "run133451-0_000001", Measurement: 12.5},
				{Id: "run133451-0_000002", Measurement: 41},
			},
		},
		"blank lines skipped": {
			input:   "r1,10\n\n   \nr2,35\n",
			records: []Record{{Id: "r1", Measurement: 10}, {Id: "r2", Measurement: 35}},
		},
		"malformed lines dropped and counted": {
			input:   "r1,10\nnot a record\nr2,abc\n,5\nr3,40\n",
			records: []Record{{Id: "r1", Measurement: 10}, {Id: "r3", Measurement: 40}},
			dropped: 3,
		},
		"non-finite measurements dropped and counted": {
			input:   "r1,29\nr2,NaN\nr3,31\nr4,+Inf\nr5,-inf\n",
			records: []Record{{Id: "r1", Measurement: 29}, {Id: "r3", Measurement: 31}},
			dropped: 3,
		},
		"single line is split on whitespace": {
			input:   "r1,10 r2,35 r3,40\n",
			records: []Record{{Id: "r1", Measurement: 10}, {Id: "r2", Measurement: 35}, {Id: "r3", Measurement: 40}},
		},
		"single record": {
			input:   "r1,10   \n",
			records: []Record{{Id: "r1", Measurement: 10}},
		},
		"extra fields ignored": {
			input:   "r1,10,x\nr2,11\n",
			records: []Record{{Id: "r1", Measurement: 10}, {Id: "r2", Measurement: 11}},
		},
		"empty": {
			input:   "",
			records: []Record{},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			records, dropped := ParseRecords([]byte(tc.input))
			assert.Empty(t, cmp.Diff(tc.records, records))
			assert.Equal(t, tc.dropped, dropped)
		})
	}
}

func TestRecord_FileIdAndSequence(t *testing.T) {
	r := Record{Id: "run133451-0_000042"}
	assert.Equal(t, "133451-0", r.FileId())
	seq, ok := r.Sequence()
	assert.True(t, ok)
	assert.Equal(t, 42, seq)

	r = Record{Id: "r1"}
	assert.Equal(t, "r1", r.FileId())
	_, ok = r.Sequence()
	assert.False(t, ok)
}
