package sqlgraph

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/syssam/versa"
	"github.com/syssam/versa/entity"
)

// edge is one binding row: parent references child through a field.
type edge struct {
	parent  entity.Key
	child   entity.Key
	fieldID int32
	seq     int32
}

// flatGraph is an object graph in post order: every instance follows the
// instances it references.
type flatGraph struct {
	nodes []*entity.Instance
	edges []edge
}

const (
	white = iota
	gray
	black
)

// flatten walks the roots depth first, assigns generated ids to instances
// without one and rejects graphs that are not acyclic. Instances are
// tracked by composite key: distinct instances sharing a key are stored
// once, the first one found wins, and reaching a key that is still on the
// current path is a cycle even through a different instance.
func (g *Graph) flatten(roots []*entity.Instance) (*flatGraph, error) {
	var (
		fg    = &flatGraph{}
		color = make(map[entity.Key]int)
		path  []entity.Key
		visit func(*entity.Instance) error
	)
	visit = func(i *entity.Instance) error {
		if i.ID == "" {
			i.ID = uuid.NewString()
		}
		k := i.Key()
		switch color[k] {
		case black:
			return nil
		case gray:
			return cycleError(path, k)
		}
		color[k] = gray
		path = append(path, k)
		for _, fid := range i.FieldIDs() {
			d, ok := g.reg.Field(fid)
			if !ok {
				return fmt.Errorf("sqlgraph: %s: unknown field %d", k, fid)
			}
			if !d.Type.IsEntity() {
				continue
			}
			if v, _ := i.Value(fid); v.Type() != d.Type {
				return versa.NewTypeMismatchError(fid, d.Type.String(), v.Type().String())
			}
			for seq, c := range i.Children(fid) {
				if c == nil {
					return fmt.Errorf("sqlgraph: %s: nil child in field %d", k, fid)
				}
				if err := visit(c); err != nil {
					return err
				}
				fg.edges = append(fg.edges, edge{parent: k, child: c.Key(), fieldID: fid, seq: int32(seq)})
			}
		}
		path = path[:len(path)-1]
		color[k] = black
		fg.nodes = append(fg.nodes, i)
		return nil
	}
	for _, r := range roots {
		if r == nil {
			return nil, fmt.Errorf("sqlgraph: nil root instance")
		}
		if err := visit(r); err != nil {
			return nil, err
		}
	}
	return fg, nil
}

// cycleError reports the part of path from the revisited key on.
func cycleError(path []entity.Key, revisited entity.Key) error {
	var keys []string
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == revisited {
			for _, k := range path[i:] {
				keys = append(keys, k.String())
			}
			break
		}
	}
	keys = append(keys, revisited.String())
	return &versa.CycleDetectedError{Path: keys}
}
