package pppp

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/G-Research/pppp/internal/partition"
	"github.com/G-Research/pppp/internal/pipeline"
)

// UnitSummary is what a batch command reports about one unit.
type UnitSummary struct {
	Name  string
	State string
	// Per category record counts. Nil if the unit was not partitioned.
	Counts         map[partition.Category]int
	DroppedTags    int
	DroppedRecords int
	Err            error
}

// Summary collects per unit outcomes in the order units were first reported.
type Summary struct {
	units []*UnitSummary
	index map[string]*UnitSummary
}

func NewSummary() *Summary {
	return &Summary{index: make(map[string]*UnitSummary)}
}

func (s *Summary) unit(name string) *UnitSummary {
	if u, ok := s.index[name]; ok {
		return u
	}
	u := &UnitSummary{Name: name}
	s.units = append(s.units, u)
	s.index[name] = u
	return u
}

// AddUnits records the final state of units driven by the controller.
func (s *Summary) AddUnits(units []*pipeline.Unit) {
	for _, unit := range units {
		u := s.unit(unit.Name)
		u.State = unit.State.String()
		u.DroppedTags = unit.DroppedTags
		u.Err = unit.Err
	}
}

// AddResults records partitioning results.
func (s *Summary) AddResults(results []partition.Result) {
	for _, result := range results {
		u := s.unit(result.Unit)
		u.Counts = make(map[partition.Category]int, len(partition.Categories))
		for _, c := range partition.Categories {
			u.Counts[c] = result.Count(c)
		}
		u.DroppedRecords = result.Dropped
	}
}

func (s *Summary) Units() []UnitSummary {
	rv := make([]UnitSummary, len(s.units))
	for i, u := range s.units {
		rv[i] = *u
	}
	return rv
}

// Failed returns the units that ended with an error.
func (s *Summary) Failed() []UnitSummary {
	var rv []UnitSummary
	for _, u := range s.units {
		if u.Err != nil {
			rv = append(rv, *u)
		}
	}
	return rv
}

// Write renders the summary as a table followed by the failure reason of every failed unit.
// Nothing is written for an empty summary.
func (s *Summary) Write(w io.Writer) {
	if len(s.units) == 0 {
		return
	}
	header := []string{"Unit", "State"}
	for _, c := range partition.Categories {
		header = append(header, c.Label())
	}
	header = append(header, "Dropped tags", "Dropped records")

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, u := range s.units {
		state := u.State
		if state == "" {
			state = "-"
		}
		row := []string{u.Name, state}
		for _, c := range partition.Categories {
			row = append(row, count(u.Counts, c))
		}
		row = append(row, strconv.Itoa(u.DroppedTags), strconv.Itoa(u.DroppedRecords))
		table.Append(row)
	}
	table.Render()

	for _, u := range s.Failed() {
		fmt.Fprintf(w, "%s failed: %s\n", u.Name, u.Err)
	}
}

func count(counts map[partition.Category]int, c partition.Category) string {
	if counts == nil {
		return "-"
	}
	return strconv.Itoa(counts[c])
}
