package pipeline

import (
	"fmt"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

const (
	unitsTable = "units"
	idIndex    = "id"    // index for looking up units by name
	stateIndex = "state" // index for looking up units in a given state
)

// UnitDb is the registry of units in a batch. Per-unit goroutines publish new snapshots of their own unit
// through write transactions, which go-memdb serialises; readers see consistent snapshots without locking.
type UnitDb struct {
	db *memdb.MemDB
}

func NewUnitDb() (*UnitDb, error) {
	db, err := memdb.NewMemDB(unitDbSchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &UnitDb{db: db}, nil
}

// Upsert inserts the given units, replacing any with the same name.
// Units passed to this function *must not* be subsequently modified.
func (unitDb *UnitDb) Upsert(units ...*Unit) error {
	txn := unitDb.db.Txn(true)
	defer txn.Abort()
	for _, unit := range units {
		if err := txn.Insert(unitsTable, unit); err != nil {
			return errors.WithStack(err)
		}
	}
	txn.Commit()
	return nil
}

// Update applies f to a copy of the named unit and stores the result, returning the new snapshot.
func (unitDb *UnitDb) Update(name string, f func(unit *Unit)) (*Unit, error) {
	txn := unitDb.db.Txn(true)
	defer txn.Abort()
	obj, err := txn.First(unitsTable, idIndex, name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, errors.Errorf("unit %s does not exist", name)
	}
	unit := obj.(*Unit).DeepCopy()
	f(unit)
	if unit.Name != name {
		return nil, errors.Errorf("unit %s cannot be renamed to %s", name, unit.Name)
	}
	if err := txn.Insert(unitsTable, unit); err != nil {
		return nil, errors.WithStack(err)
	}
	txn.Commit()
	return unit, nil
}

// Get returns the named unit or nil if no such unit exists.
// The unit returned by this function *must not* be modified.
func (unitDb *UnitDb) Get(name string) (*Unit, error) {
	txn := unitDb.db.Txn(false)
	obj, err := txn.First(unitsTable, idIndex, name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, nil
	}
	return obj.(*Unit), nil
}

// All returns every unit ordered by Ordinal.
func (unitDb *UnitDb) All() ([]*Unit, error) {
	return unitDb.collect(idIndex)
}

// InState returns the units in the given state ordered by Ordinal.
func (unitDb *UnitDb) InState(state UnitState) ([]*Unit, error) {
	return unitDb.collect(stateIndex, state)
}

// CountByState returns the number of units in each state that has at least one unit.
func (unitDb *UnitDb) CountByState() (map[UnitState]int, error) {
	units, err := unitDb.All()
	if err != nil {
		return nil, err
	}
	counts := make(map[UnitState]int)
	for _, unit := range units {
		counts[unit.State]++
	}
	return counts, nil
}

func (unitDb *UnitDb) collect(index string, args ...interface{}) ([]*Unit, error) {
	txn := unitDb.db.Txn(false)
	iter, err := txn.Get(unitsTable, index, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	units := make([]*Unit, 0)
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		unit, ok := obj.(*Unit)
		if !ok {
			panic(fmt.Sprintf("expected *Unit, but got %T", obj))
		}
		units = append(units, unit)
	}
	// Iteration follows the index key, not Ordinal.
	slices.SortFunc(units, func(a, b *Unit) bool {
		return a.Ordinal < b.Ordinal
	})
	return units, nil
}

// unitDbSchema creates the database schema: a single "units" table keyed by name, with a secondary index
// on state.
func unitDbSchema() *memdb.DBSchema {
	indexes := make(map[string]*memdb.IndexSchema)
	indexes[idIndex] = &memdb.IndexSchema{
		Name:    idIndex,
		Unique:  true,
		Indexer: &memdb.StringFieldIndex{Field: "Name"},
	}
	indexes[stateIndex] = &memdb.IndexSchema{
		Name:    stateIndex,
		Unique:  false,
		Indexer: &memdb.IntFieldIndex{Field: "State"},
	}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			unitsTable: {
				Name:    unitsTable,
				Indexes: indexes,
			},
		},
	}
}
