package core

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// StateValue is the running value one stateful element keeps between
// calculations. Only the members relevant to its element are set.
type StateValue struct {
	Number      float64                `json:"number,omitempty"`
	Numerator   float64                `json:"numerator,omitempty"`
	Denominator float64                `json:"denominator,omitempty"`
	Extreme     *string                `json:"extreme,omitempty"`
	Multiset    map[string]int64       `json:"multiset,omitempty"`
	Groups      map[string]*StateValue `json:"groups,omitempty"`
}

// Clone returns a deep copy
func (v *StateValue) Clone() *StateValue {
	if v == nil {
		return nil
	}
	out := &StateValue{Number: v.Number, Numerator: v.Numerator, Denominator: v.Denominator}
	if v.Extreme != nil {
		s := *v.Extreme
		out.Extreme = &s
	}
	if v.Multiset != nil {
		out.Multiset = make(map[string]int64, len(v.Multiset))
		for k, n := range v.Multiset {
			out.Multiset[k] = n
		}
	}
	if v.Groups != nil {
		out.Groups = make(map[string]*StateValue, len(v.Groups))
		for k, g := range v.Groups {
			out.Groups[k] = g.Clone()
		}
	}
	return out
}

// DataTableState maps stateId attributes to running values. It is shared
// by reference between a table and all of its sub-tables.
type DataTableState struct {
	keys   []string
	values map[string]*StateValue
}

// NewDataTableState creates an empty state
func NewDataTableState() *DataTableState {
	return &DataTableState{values: make(map[string]*StateValue)}
}

// Get returns the value stored under id
func (s *DataTableState) Get(id string) (*StateValue, bool) {
	v, ok := s.values[id]
	return v, ok
}

// Set stores a value under id, keeping first-insertion order
func (s *DataTableState) Set(id string, value *StateValue) {
	if _, ok := s.values[id]; !ok {
		s.keys = append(s.keys, id)
	}
	s.values[id] = value
}

// Delete removes id
func (s *DataTableState) Delete(id string) {
	if _, ok := s.values[id]; !ok {
		return
	}
	delete(s.values, id)
	for i, k := range s.keys {
		if k == id {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// Keys lists the stored ids in insertion order
func (s *DataTableState) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Len returns the number of stored ids
func (s *DataTableState) Len() int {
	return len(s.keys)
}

func (s *DataTableState) String() string {
	return fmt.Sprintf("<DataTableState %d records>", len(s.keys))
}

type stateEntry struct {
	Key   string      `json:"key"`
	Value *StateValue `json:"value"`
}

type stateSnapshot struct {
	Version int          `json:"version"`
	Entries []stateEntry `json:"entries"`
}

const stateSnapshotVersion = 1

// Encode serializes the state as JSON, entries in insertion order
func (s *DataTableState) Encode() ([]byte, error) {
	snapshot := stateSnapshot{Version: stateSnapshotVersion, Entries: make([]stateEntry, 0, len(s.keys))}
	for _, k := range s.keys {
		snapshot.Entries = append(snapshot.Entries, stateEntry{Key: k, Value: s.values[k]})
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, errors.Wrap(err, "encoding state snapshot")
	}
	return data, nil
}

// DecodeDataTableState restores a state written by Encode
func DecodeDataTableState(data []byte) (*DataTableState, error) {
	var snapshot stateSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.Wrap(err, "decoding state snapshot")
	}
	if snapshot.Version != stateSnapshotVersion {
		return nil, errors.Errorf("unsupported state snapshot version %d", snapshot.Version)
	}
	state := NewDataTableState()
	for _, e := range snapshot.Entries {
		if e.Value == nil {
			e.Value = &StateValue{}
		}
		state.Set(e.Key, e.Value)
	}
	return state, nil
}

// Merge copies every entry of other into s, replacing existing ids
func (s *DataTableState) Merge(other *DataTableState) {
	for _, k := range other.keys {
		s.Set(k, other.values[k].Clone())
	}
}

// sortedGroupKeys returns the group names of a grouped state value
func sortedGroupKeys(v *StateValue) []string {
	keys := make([]string, 0, len(v.Groups))
	for k := range v.Groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
