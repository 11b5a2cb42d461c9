// Package ordering computes fractional sort keys for sibling collections.
//
// Keys are float64 and never contiguous. Allocation reads the whole sibling
// set once and returns a single key for the target record; other siblings are
// never renumbered by an allocation. Renumber exists for the caller to compact
// a collection when midpoint subdivision runs out of float precision.
package ordering

import (
	"cmp"
	"errors"
	"math"
	"slices"
)

var (
	ErrUnknownSibling = errors.New("sibling not found in collection")
	ErrEmptyGroup     = errors.New("group has no members in collection")
)

// Mode selects the allocation rule.
type Mode int

const (
	ModeAppend Mode = iota
	ModeInsertAfter
	ModeMoveTo
	ModeCloneInsert
	ModeDuplicateGroup
)

func (m Mode) String() string {
	switch m {
	case ModeAppend:
		return "append"
	case ModeInsertAfter:
		return "insert-after"
	case ModeMoveTo:
		return "move-to"
	case ModeCloneInsert:
		return "clone-insert"
	case ModeDuplicateGroup:
		return "duplicate-group"
	default:
		return "unknown"
	}
}

// Sibling is one member of a collection as seen by the allocator. Key is the
// effective key (overlay over published); Hidden marks draft-removed or
// trashed members, which stay in the all-view but leave the visible-view.
type Sibling struct {
	ID     string
	Key    float64
	Hidden bool
}

// Request describes one allocation.
type Request struct {
	Mode Mode
	// Index is the visible position for ModeInsertAfter and the all-view
	// position for ModeMoveTo.
	Index int
	// TargetID is the moving record for ModeMoveTo and the source for
	// ModeCloneInsert.
	TargetID string
	// GroupIDs are the members of the source group for ModeDuplicateGroup.
	GroupIDs []string
}

// Allocate returns the key for the target record. ModeDuplicateGroup returns
// the first key of a one-member group; use DuplicateGroup for more.
func Allocate(siblings []Sibling, req Request) (float64, error) {
	switch req.Mode {
	case ModeAppend:
		return AppendDefault(siblings), nil
	case ModeInsertAfter:
		return InsertAfter(siblings, req.Index), nil
	case ModeMoveTo:
		return MoveTo(siblings, req.TargetID, req.Index)
	case ModeCloneInsert:
		return CloneInsert(siblings, req.TargetID)
	case ModeDuplicateGroup:
		keys, err := DuplicateGroup(siblings, req.GroupIDs, 1)
		if err != nil {
			return 0, err
		}
		return keys[0], nil
	default:
		return 0, errors.New("unknown allocation mode")
	}
}

type views struct {
	all     []Sibling
	visible []Sibling
}

func newViews(siblings []Sibling) views {
	all := slices.Clone(siblings)
	slices.SortStableFunc(all, func(a, b Sibling) int {
		if c := cmp.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	visible := make([]Sibling, 0, len(all))
	for _, s := range all {
		if !s.Hidden {
			visible = append(visible, s)
		}
	}
	return views{all: all, visible: visible}
}

func (v views) indexOf(id string) int {
	return slices.IndexFunc(v.all, func(s Sibling) bool { return s.ID == id })
}

func (v views) first() float64 {
	return v.all[0].Key
}

func (v views) last() float64 {
	return v.all[len(v.all)-1].Key
}

func midpoint(lo, hi float64) float64 {
	return lo + math.Abs(hi-lo)/2
}

// AppendDefault places the record after every sibling, hidden ones included.
func AppendDefault(siblings []Sibling) float64 {
	v := newViews(siblings)
	if len(v.all) == 0 {
		return 0
	}
	return v.last() + 1
}

// InsertAfter places a new record relative to the visible position i.
// Positions -1 and 0 both land before the first member of the all-view so
// that hidden members at the head keep their place behind the new record.
func InsertAfter(siblings []Sibling, i int) float64 {
	v := newViews(siblings)
	if len(v.all) == 0 {
		if i < 0 {
			return -1
		}
		return 0
	}
	if len(v.visible) == 0 {
		return v.last() + 1
	}

	switch {
	case i <= 0:
		return v.first() - 1
	case i >= len(v.visible)-1:
		return v.last() + 1
	}

	curr := v.visible[i]
	j := v.indexOf(curr.ID)
	// curr is not the last visible member, so something follows it in the all-view.
	next := v.all[j+1]
	return midpoint(curr.Key, next.Key)
}

// MoveTo reorders an existing sibling to all-view position i.
func MoveTo(siblings []Sibling, movingID string, i int) (float64, error) {
	v := newViews(siblings)
	current := v.indexOf(movingID)
	if current < 0 {
		return 0, ErrUnknownSibling
	}

	n := len(v.all)
	switch {
	case i <= 0:
		return v.first() - 1, nil
	case i >= n-1:
		return v.last() + 1, nil
	}

	curr := v.all[i].Key
	if current > i {
		return midpoint(v.all[i-1].Key, curr), nil
	}
	return midpoint(curr, v.all[i+1].Key), nil
}

// CloneInsert places a duplicate right after its source.
func CloneInsert(siblings []Sibling, sourceID string) (float64, error) {
	v := newViews(siblings)
	j := v.indexOf(sourceID)
	if j < 0 {
		return 0, ErrUnknownSibling
	}
	if j+1 < len(v.all) {
		return midpoint(v.all[j].Key, v.all[j+1].Key), nil
	}
	return v.all[j].Key + 1, nil
}

// DuplicateGroup returns count ascending keys placed after the last member of
// the source group and before whatever follows it. With count 1 this is the
// clone-insert midpoint computed against the group's last key.
func DuplicateGroup(siblings []Sibling, groupIDs []string, count int) ([]float64, error) {
	if count <= 0 {
		return nil, nil
	}

	v := newViews(siblings)
	lastIdx := -1
	for _, id := range groupIDs {
		if j := v.indexOf(id); j > lastIdx {
			lastIdx = j
		}
	}
	if lastIdx < 0 {
		return nil, ErrEmptyGroup
	}

	last := v.all[lastIdx].Key
	keys := make([]float64, count)
	if lastIdx+1 < len(v.all) {
		step := math.Abs(v.all[lastIdx+1].Key-last) / float64(count+1)
		for k := range keys {
			keys[k] = last + step*float64(k+1)
		}
		return keys, nil
	}

	for k := range keys {
		keys[k] = last + float64(k+1)
	}
	return keys, nil
}

// VisibleToAll maps a visible position to the all-view position that
// MoveTo expects. Out-of-range positions clamp to the ends.
func VisibleToAll(siblings []Sibling, i int) int {
	v := newViews(siblings)
	if len(v.visible) == 0 || i <= 0 {
		return 0
	}
	if i >= len(v.visible)-1 {
		return len(v.all) - 1
	}
	return v.indexOf(v.visible[i].ID)
}

// NeedsRenumber reports whether two neighbors in the all-view sit closer
// than minGap, after which midpoint subdivision between them is unreliable.
func NeedsRenumber(siblings []Sibling, minGap float64) bool {
	v := newViews(siblings)
	for i := 1; i < len(v.all); i++ {
		if v.all[i].Key-v.all[i-1].Key < minGap {
			return true
		}
	}
	return false
}

// Renumber assigns integer keys 0..n-1 in all-view order.
func Renumber(siblings []Sibling) map[string]float64 {
	v := newViews(siblings)
	out := make(map[string]float64, len(v.all))
	for i, s := range v.all {
		out[s.ID] = float64(i)
	}
	return out
}

// Ordered returns the sibling ids in all-view order.
func Ordered(siblings []Sibling) []string {
	v := newViews(siblings)
	ids := make([]string, len(v.all))
	for i, s := range v.all {
		ids[i] = s.ID
	}
	return ids
}
