package partition

import (
	"fmt"
	"math"

	"github.com/G-Research/pppp/internal/common/pipelineerrors"
)

// Category is the class a record is assigned to. The numeric values are what the categorical dataset stores.
type Category uint8

const (
	Low        Category = 0
	High       Category = 1
	Unassigned Category = 2
)

// Categories lists every category in code order.
var Categories = []Category{Low, High, Unassigned}

func (c Category) String() string {
	switch c {
	case Low:
		return "Low"
	case High:
		return "High"
	case Unassigned:
		return "Unassigned"
	default:
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
}

// Label is the name used for the category's output files.
func (c Category) Label() string {
	switch c {
	case Low:
		return "pump"
	case High:
		return "probe"
	default:
		return "not_assigned"
	}
}

// IndexFile is the name of the file listing the ids of records in c.
func (c Category) IndexFile() string {
	return c.Label() + ".txt"
}

// EventsFile is the name of the file listing the auxiliary events of records in c.
func (c Category) EventsFile() string {
	return "events_" + c.Label() + ".lst"
}

// Thresholds split measurements into categories: m < Low is Low, m >= High is High, anything between is
// Unassigned. When Low == High nothing is Unassigned.
type Thresholds struct {
	Low  float64
	High float64
}

// NewThresholds builds Thresholds from one value (both bounds) or two (low then high).
func NewThresholds(values []float64) (Thresholds, error) {
	for _, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return Thresholds{}, &pipelineerrors.ErrConfiguration{
				Name:    "threshold",
				Value:   values,
				Message: "thresholds must be finite numbers",
			}
		}
	}
	switch len(values) {
	case 1:
		return Thresholds{Low: values[0], High: values[0]}, nil
	case 2:
		if values[0] > values[1] {
			return Thresholds{}, &pipelineerrors.ErrConfiguration{
				Name:    "threshold",
				Value:   values,
				Message: "the low threshold must not exceed the high threshold",
			}
		}
		return Thresholds{Low: values[0], High: values[1]}, nil
	default:
		return Thresholds{}, &pipelineerrors.ErrConfiguration{
			Name:    "threshold",
			Value:   values,
			Message: "takes one or two values",
		}
	}
}

func (t Thresholds) Classify(measurement float64) Category {
	if measurement < t.Low {
		return Low
	}
	if measurement >= t.High {
		return High
	}
	return Unassigned
}
