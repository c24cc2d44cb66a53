package command

import (
	"fmt"
	"sort"
)

// Catalog is the subset of the prototype catalog the encoder validates against.
type Catalog interface {
	IsValidEntity(name string) bool
	IsValidItem(name string) bool
}

// Policy selects which verbs must pass catalog validation before encoding.
type Policy map[Verb]bool

// DefaultPolicy validates names for place_entity, search_entities and remove_item.
func DefaultPolicy() Policy {
	return Policy{
		VerbPlaceEntity:    true,
		VerbSearchEntities: true,
		VerbRemoveItem:     true,
	}
}

// Merge returns a copy of p with overrides applied on top.
func (p Policy) Merge(overrides map[string]bool) Policy {
	out := make(Policy, len(p)+len(overrides))
	for v, on := range p {
		out[v] = on
	}
	for v, on := range overrides {
		out[Verb(v)] = on
	}
	return out
}

// identifiers lists catalog names referenced by one command.
type identifiers struct {
	entities []string
	items    []string
}

type verbEntry struct {
	encode func(Params) (string, error)
	idents func(Params) (identifiers, error)
}

// Encoder maps commands to console script text. It holds no per-call state.
type Encoder struct {
	catalog Catalog
	policy  Policy
	verbs   map[Verb]verbEntry
}

func NewEncoder(cat Catalog, policy Policy) *Encoder {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Encoder{
		catalog: cat,
		policy:  policy,
		verbs: map[Verb]verbEntry{
			VerbGetPlayerPosition: {encode: encodeGetPlayerPosition},
			VerbMovePlayer:        {encode: encodeMovePlayer},
			VerbPlaceEntity:       {encode: encodePlaceEntity, idents: entityParam("name")},
			VerbRemoveEntity:      {encode: encodeRemoveEntity, idents: entityParam("name")},
			VerbSearchEntities:    {encode: encodeSearchEntities, idents: entityNames("name")},
			VerbGetInventory:      {encode: encodeGetInventory, idents: inventoryTarget("")},
			VerbInsertItem:        {encode: encodeInsertItem, idents: inventoryTarget("item")},
			VerbRemoveItem:        {encode: encodeRemoveItem, idents: inventoryTarget("item")},
			VerbFindSurfaceTile:   {encode: encodeFindSurfaceTile},
		},
	}
}

// Supports reports whether v has a script encoding.
func (e *Encoder) Supports(v Verb) bool {
	_, ok := e.verbs[v]
	return ok
}

// Verbs lists the encodable verbs in name order.
func (e *Encoder) Verbs() []Verb {
	out := make([]Verb, 0, len(e.verbs))
	for v := range e.verbs {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Encode validates cmd and renders its script.
func (e *Encoder) Encode(cmd Command) (string, error) {
	entry, ok := e.verbs[cmd.Verb]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownVerb, cmd.Verb)
	}
	params := cmd.Params
	if params == nil {
		params = Params{}
	}
	if err := e.admit(cmd.Verb, entry, params); err != nil {
		return "", err
	}
	return entry.encode(params)
}

// admit is the only place identifiers are checked against the catalog.
// Every script path passes through it before any text is rendered.
func (e *Encoder) admit(v Verb, entry verbEntry, params Params) error {
	if entry.idents == nil || !e.policy[v] {
		return nil
	}
	ids, err := entry.idents(params)
	if err != nil {
		return err
	}
	if e.catalog == nil {
		return fmt.Errorf("%w: no catalog configured for %s", ErrCatalogRejected, v)
	}
	for _, name := range ids.entities {
		if !e.catalog.IsValidEntity(name) {
			return fmt.Errorf("%w: invalid entity name: %s", ErrCatalogRejected, name)
		}
	}
	for _, name := range ids.items {
		if !e.catalog.IsValidItem(name) {
			return fmt.Errorf("%w: invalid item name: %s", ErrCatalogRejected, name)
		}
	}
	return nil
}

func entityParam(key string) func(Params) (identifiers, error) {
	return func(p Params) (identifiers, error) {
		name, err := p.requireString(key)
		if err != nil {
			return identifiers{}, err
		}
		return identifiers{entities: []string{name}}, nil
	}
}

func entityNames(key string) func(Params) (identifiers, error) {
	return func(p Params) (identifiers, error) {
		names, _, err := p.Names(key)
		if err != nil {
			return identifiers{}, err
		}
		return identifiers{entities: names}, nil
	}
}

// inventoryTarget collects the target entity (unless it is the player) and,
// when itemKey is set, the item being moved.
func inventoryTarget(itemKey string) func(Params) (identifiers, error) {
	return func(p Params) (identifiers, error) {
		var ids identifiers
		entity, err := p.stringOr("entity", PlayerEntity)
		if err != nil {
			return ids, err
		}
		if entity != PlayerEntity {
			ids.entities = append(ids.entities, entity)
		}
		if itemKey != "" {
			item, err := p.requireString(itemKey)
			if err != nil {
				return ids, err
			}
			ids.items = append(ids.items, item)
		}
		return ids, nil
	}
}
