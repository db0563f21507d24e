package pipeline

import (
	"fmt"

	"github.com/G-Research/pppp/internal/gridengine"
)

type UnitState int

const (
	UnitCreated UnitState = iota
	UnitStage1Submitted
	UnitStage1Done
	UnitStage2Submitted
	UnitStage2Done
	UnitFailed
)

func (s UnitState) String() string {
	switch s {
	case UnitCreated:
		return "Created"
	case UnitStage1Submitted:
		return "Stage1Submitted"
	case UnitStage1Done:
		return "Stage1Done"
	case UnitStage2Submitted:
		return "Stage2Submitted"
	case UnitStage2Done:
		return "Stage2Done"
	case UnitFailed:
		return "Failed"
	default:
		return fmt.Sprintf("UnitState(%d)", int(s))
	}
}

// Unit is one run (or sub-run) carried through both stages. Units stored in a UnitDb are snapshots and
// must not be modified; use UnitDb.Update.
type Unit struct {
	// Canonical name, <base>-<index>
	Name string
	// Position in the resolved unit list. Merge and manifest order follow it.
	Ordinal    int
	SourcePath string
	WorkDir    string
	// Nil until the corresponding job has been submitted.
	Stage1 *gridengine.JobHandle
	Stage2 *gridengine.JobHandle
	State  UnitState
	// Number of stage 1 output lines dropped for lacking the valid prefix.
	DroppedTags int
	// Why the unit failed. Only set in state UnitFailed.
	Err error
}

func (u *Unit) Terminal() bool {
	return u.State == UnitStage2Done || u.State == UnitFailed
}

func (u *Unit) DeepCopy() *Unit {
	if u == nil {
		return nil
	}
	c := *u
	if u.Stage1 != nil {
		h := *u.Stage1
		c.Stage1 = &h
	}
	if u.Stage2 != nil {
		h := *u.Stage2
		c.Stage2 = &h
	}
	return &c
}
