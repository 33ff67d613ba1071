package entity

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/versa/schema/field"
)

// FieldLookup resolves a field descriptor by id.
type FieldLookup func(id int32) (*field.Descriptor, bool)

// Snapshot is the cached form of one immutable entity version. Values are
// kept in column form and nested references as child keys, so a snapshot
// never embeds another version.
type Snapshot struct {
	ID          string          `msgpack:"id"`
	EditVersion int32           `msgpack:"ev"`
	EntityID    int32           `msgpack:"e"`
	Live        bool            `msgpack:"l"`
	CreatedAt   time.Time       `msgpack:"c"`
	LastEdit    time.Time       `msgpack:"u"`
	Values      map[int32][]any `msgpack:"v,omitempty"`
	Children    map[int32][]Key `msgpack:"r,omitempty"`
}

// NewSnapshot captures i. Children must already carry their keys.
func NewSnapshot(i *Instance, lookup FieldLookup) (*Snapshot, error) {
	s := &Snapshot{
		ID:          i.ID,
		EditVersion: i.EditVersion,
		EntityID:    i.EntityID,
		Live:        i.Live,
		CreatedAt:   i.CreatedAt,
		LastEdit:    i.LastEdit,
	}
	for _, fid := range i.FieldIDs() {
		d, ok := lookup(fid)
		if !ok {
			return nil, fmt.Errorf("entity: snapshot %s: unknown field %d", i.Key(), fid)
		}
		if d.Type.IsEntity() {
			if s.Children == nil {
				s.Children = make(map[int32][]Key)
			}
			var keys []Key
			for _, c := range i.Children(fid) {
				keys = append(keys, c.Key())
			}
			if len(keys) > 0 {
				s.Children[fid] = keys
			}
			continue
		}
		v, _ := i.Value(fid)
		cols, err := Encode(d, v)
		if err != nil {
			return nil, err
		}
		if len(cols) == 0 {
			continue
		}
		if s.Values == nil {
			s.Values = make(map[int32][]any)
		}
		s.Values[fid] = cols
	}
	return s, nil
}

// Key returns the composite key of the snapshot.
func (s *Snapshot) Key() Key {
	return Key{ID: s.ID, EditVersion: s.EditVersion}
}

// Restore rebuilds the instance without its nested references. The caller
// resolves Children and sets the entity slots.
func (s *Snapshot) Restore(lookup FieldLookup) (*Instance, error) {
	i := NewWithKey(s.EntityID, s.ID, s.EditVersion)
	i.Live, i.CreatedAt, i.LastEdit = s.Live, s.CreatedAt, s.LastEdit
	for fid, cols := range s.Values {
		d, ok := lookup(fid)
		if !ok {
			return nil, fmt.Errorf("entity: snapshot %s: unknown field %d", s.Key(), fid)
		}
		var (
			v   Value
			err error
		)
		if d.Type.IsCollection() {
			for _, c := range cols {
				if v, err = AppendDecoded(d, v, c); err != nil {
					return nil, err
				}
			}
		} else if len(cols) == 1 {
			if v, err = Decode(d, cols[0]); err != nil {
				return nil, err
			}
		}
		i.Set(fid, v)
	}
	return i, nil
}

// MarshalSnapshot encodes s with msgpack.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return msgpack.Marshal(s)
}

// UnmarshalSnapshot decodes a snapshot produced by MarshalSnapshot.
func UnmarshalSnapshot(b []byte) (*Snapshot, error) {
	s := &Snapshot{}
	if err := msgpack.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("entity: decode snapshot: %w", err)
	}
	return s, nil
}
