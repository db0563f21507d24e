// Package manifest writes the files that tell downstream processing which categorical dataset belongs to
// which raw unit.
package manifest

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/G-Research/pppp/internal/common/util"
	"github.com/G-Research/pppp/internal/dataset"
)

// Entry maps a unit's raw data file to its categorical dataset file.
type Entry struct {
	SourcePath  string
	DatasetPath string
}

// Grouping is the grouping manifest consumed by the downstream stage. Metadata maps a metadata field name to
// an ordered mapping of source path to "<dataset path>:/<key>".
type Grouping struct {
	Metadata yaml.MapSlice `yaml:"metadata"`
	Grouping struct {
		MergeBy struct {
			Values []string `yaml:"values"`
		} `yaml:"merge_by"`
	} `yaml:"grouping"`
}

// NewGrouping builds the manifest for entries, keeping their order.
func NewGrouping(entries []Entry) Grouping {
	sources := make(yaml.MapSlice, 0, len(entries))
	for _, entry := range entries {
		sources = append(sources, yaml.MapItem{
			Key:   entry.SourcePath,
			Value: entry.DatasetPath + ":/" + dataset.DefaultKey,
		})
	}
	g := Grouping{
		Metadata: yaml.MapSlice{{Key: dataset.DefaultKey, Value: sources}},
	}
	g.Grouping.MergeBy.Values = []string{dataset.DefaultKey}
	return g
}

// Generate writes the grouping manifest for entries to path.
func Generate(path string, entries []Entry) error {
	if len(entries) == 0 {
		return errors.New("cannot write a grouping manifest without entries")
	}
	out, err := yaml.Marshal(NewGrouping(entries))
	if err != nil {
		return errors.WithStack(err)
	}
	return util.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		_, err := w.Write(out)
		return errors.WithStack(err)
	})
}

// WriteFileList writes one source path per line, the input format of CrystFEL's list_events.
func WriteFileList(path string, entries []Entry) error {
	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = entry.SourcePath
	}
	return util.WriteLinesAtomic(path, lines)
}
