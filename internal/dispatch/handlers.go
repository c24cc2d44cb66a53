package dispatch

import (
	"context"
	"encoding/json"

	"github.com/danmuck/rconbridge/internal/command"
	"github.com/danmuck/rconbridge/internal/reply"
)

// Defaults applied to search verbs before encoding.
const (
	defaultRadius = "10"
	defaultLimit  = "25"
)

var searchDefaults = map[command.Verb]map[string]json.Number{
	command.VerbSearchEntities:  {"radius": defaultRadius, "limit": defaultLimit},
	command.VerbFindSurfaceTile: {"radius": defaultRadius, "limit": defaultLimit},
}

func (d *Dispatcher) scriptHandler(v command.Verb) handler {
	return func(ctx context.Context, params command.Params) (any, error) {
		raw, err := d.runScript(ctx, v, withDefaults(v, params))
		if err != nil {
			return nil, err
		}
		return resultValue(reply.Decode(raw)), nil
	}
}

func (d *Dispatcher) positionHandler(ctx context.Context, params command.Params) (any, error) {
	raw, err := d.runScript(ctx, command.VerbGetPlayerPosition, params)
	if err != nil {
		return nil, err
	}
	return reply.ParsePosition(raw)
}

func (d *Dispatcher) runScript(ctx context.Context, v command.Verb, params command.Params) (string, error) {
	script, err := d.encoder.Encode(command.Command{Verb: v, Params: params})
	if err != nil {
		return "", err
	}
	return d.exec.Send(ctx, script)
}

// listEntities answers from the catalog in one of three modes: all names,
// names of one type with their info, or a fuzzy keyword search.
func (d *Dispatcher) listEntities(_ context.Context, params command.Params) (any, error) {
	mode, _, err := params.String("mode")
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = "all"
	}
	switch mode {
	case "all":
		return d.catalog.EntityNames(), nil
	case "type":
		t, ok, err := params.String("search_type")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidSearch
		}
		return d.entityInfo(d.catalog.EntitiesOfType(t)), nil
	case "search":
		kw, ok, err := params.String("keyword")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidSearch
		}
		matches := d.catalog.Search(kw)
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.Name)
		}
		return d.entityInfo(names), nil
	default:
		return nil, ErrInvalidSearch
	}
}

func (d *Dispatcher) entityInfo(names []string) map[string]any {
	out := make(map[string]any, len(names))
	for _, n := range names {
		info, _ := d.catalog.EntityInfo(n)
		out[n] = info
	}
	return out
}

func (d *Dispatcher) listItems(context.Context, command.Params) (any, error) {
	return d.catalog.ItemNames(), nil
}

// withDefaults returns params with the verb's defaults filled in. The
// caller's map is not modified.
func withDefaults(v command.Verb, params command.Params) command.Params {
	defs, ok := searchDefaults[v]
	if !ok {
		return params
	}
	out := make(command.Params, len(params)+len(defs))
	for k, val := range params {
		out[k] = val
	}
	for k, val := range defs {
		if !out.Has(k) {
			out[k] = val
		}
	}
	return out
}
