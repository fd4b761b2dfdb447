package packet

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lkolbly/wows-replays-sub000/rpc"
)

// entityState is the tracked state of one live entity. Property values are
// keyed by client property index; an index is absent until a create packet
// or a property update supplies a value.
type entityState struct {
	entityType uint16
	props      map[int]rpc.ArgValue
}

// entityTracker maintains the set of live entities across a stream so that
// property and method packets can be decoded against the right schema.
type entityTracker struct {
	specs    []*rpc.EntitySpec
	entities map[uint32]*entityState
}

func newEntityTracker(specs []*rpc.EntitySpec) *entityTracker {
	return &entityTracker{
		specs:    specs,
		entities: map[uint32]*entityState{},
	}
}

// spec resolves an entity type id. Type ids are 1-based indices into the
// definition list.
func (t *entityTracker) spec(entityType uint16) (*rpc.EntitySpec, error) {
	if entityType < 1 || int(entityType) > len(t.specs) {
		return nil, fmt.Errorf("entity type %d out of range (%d definitions)", entityType, len(t.specs))
	}
	return t.specs[entityType-1], nil
}

// create registers an entity. Streams occasionally announce the same id
// twice; the later announcement wins.
func (t *entityTracker) create(entityID uint32, entityType uint16) *entityState {
	if old, ok := t.entities[entityID]; ok {
		log.Warn().
			Uint32("entity", entityID).
			Uint16("oldType", old.entityType).
			Uint16("newType", entityType).
			Msg("entity created twice, replacing state")
	}
	e := &entityState{
		entityType: entityType,
		props:      map[int]rpc.ArgValue{},
	}
	t.entities[entityID] = e
	return e
}

func (t *entityTracker) get(entityID uint32) (*entityState, *rpc.EntitySpec, error) {
	e, ok := t.entities[entityID]
	if !ok {
		return nil, nil, &UnknownEntityError{EntityID: entityID}
	}
	spec, err := t.spec(e.entityType)
	if err != nil {
		return nil, nil, err
	}
	return e, spec, nil
}

func (t *entityTracker) remove(entityID uint32) {
	delete(t.entities, entityID)
}
