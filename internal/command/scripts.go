package command

import (
	"fmt"
	"strings"
)

// Scripts are kept flush-left, one statement per line, so they stay well
// under the console's command length limit.

const scriptPrefix = "/c "

func encodeGetPlayerPosition(Params) (string, error) {
	return scriptPrefix + "rcon.print(game.get_player(1).position)", nil
}

func encodeMovePlayer(p Params) (string, error) {
	x, err := p.requireNumber("x")
	if err != nil {
		return "", err
	}
	y, err := p.requireNumber("y")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(scriptPrefix+"game.get_player(1).teleport({y = %s, x = %s})", y, x), nil
}

func encodePlaceEntity(p Params) (string, error) {
	name, err := p.requireString("name")
	if err != nil {
		return "", err
	}
	x, y, err := requirePoint(p, "x", "y")
	if err != nil {
		return "", err
	}
	direction := "0"
	if d, ok, err := p.Int("direction"); err != nil {
		return "", err
	} else if ok {
		direction = d
	}
	return fmt.Sprintf(scriptPrefix+`local player = game.get_player(1)
local surface_can_place = game.surfaces[1].can_place_entity{name='%[1]s', position={%[2]s,%[3]s}}
local player_can_place = player.can_place_entity{name='%[1]s', position={%[2]s,%[3]s}}
if surface_can_place and player_can_place then
game.surfaces[1].create_entity{name='%[1]s', position={x=%[2]s, y=%[3]s}, direction=%[4]s, force=game.forces.player}
rcon.print('Success: Entity %[1]s placed')
elseif not surface_can_place then
rcon.print('Failed: Cannot place %[1]s due to collision with other entities or terrain')
else
rcon.print('Failed: Cannot place %[1]s - position is out of player reach distance')
end`, name, x, y, direction), nil
}

func encodeRemoveEntity(p Params) (string, error) {
	name, err := p.requireString("name")
	if err != nil {
		return "", err
	}
	x, y, err := requirePoint(p, "x", "y")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(scriptPrefix+`local entity = game.surfaces[1].find_entity('%[1]s', {%[2]s,%[3]s})
if entity and game.get_player(1).can_reach_entity(entity) then
entity.destroy()
game.get_player(1).get_inventory(defines.inventory.character_main).insert{name='%[1]s', count=1}
rcon.print('Success: Entity %[1]s removed')
elseif not entity then
rcon.print('Failed: Entity %[1]s not found')
else
rcon.print('Failed: Cannot reach %[1]s')
end`, name, x, y), nil
}

func encodeSearchEntities(p Params) (string, error) {
	var filters []string
	name, err := nameFilter(p, "name")
	if err != nil {
		return "", err
	}
	filters = appendNonEmpty(filters, name)
	if t, ok, err := p.String("type"); err != nil {
		return "", err
	} else if ok {
		filters = append(filters, fmt.Sprintf("type = '%s'", t))
	}
	limit, err := limitFilter(p)
	if err != nil {
		return "", err
	}
	filters = appendNonEmpty(filters, limit)
	area, err := areaFilter(p)
	if err != nil {
		return "", err
	}
	filters = appendNonEmpty(filters, area)
	circle, err := circleFilter(p)
	if err != nil {
		return "", err
	}
	filters = appendNonEmpty(filters, circle)

	return fmt.Sprintf(scriptPrefix+`local entities = game.surfaces[1].find_entities_filtered{ %s }
if entities and #entities > 0 then
local entity_data = {}
for _, entity in ipairs(entities) do
table.insert(entity_data, {name = entity.name, position = entity.position, direction = entity.direction, status = entity.status, type = entity.type})
end
rcon.print(helpers.table_to_json(entity_data))
else
rcon.print('Failed: No entities found with the specified filters.')
end`, strings.Join(filters, ", ")), nil
}

func encodeFindSurfaceTile(p Params) (string, error) {
	var filters []string
	name, err := nameFilter(p, "name")
	if err != nil {
		return "", err
	}
	filters = appendNonEmpty(filters, name)
	area, err := areaFilter(p)
	if err != nil {
		return "", err
	}
	filters = appendNonEmpty(filters, area)
	circle, err := circleFilter(p)
	if err != nil {
		return "", err
	}
	filters = appendNonEmpty(filters, circle)
	limit, err := limitFilter(p)
	if err != nil {
		return "", err
	}
	filters = appendNonEmpty(filters, limit)

	return fmt.Sprintf(scriptPrefix+`local tiles = game.surfaces[1].find_tiles_filtered{ %s }
if tiles then
local tile_data = {}
for _, tile in ipairs(tiles) do
table.insert(tile_data, {name = tile.name, position = tile.position})
end
rcon.print(helpers.table_to_json(tile_data))
else
rcon.print('Failed: No tiles found with the specified filters.')
end`, strings.Join(filters, ", ")), nil
}

func encodeGetInventory(p Params) (string, error) {
	inv, err := p.stringOr("inventory_type", "character_main")
	if err != nil {
		return "", err
	}
	entity, x, y, err := inventoryEntity(p)
	if err != nil {
		return "", err
	}
	if entity == PlayerEntity {
		return fmt.Sprintf(scriptPrefix+`local inventory = game.get_player(1).get_inventory(defines.inventory.%[1]s)
if inventory then
rcon.print(helpers.table_to_json(inventory.get_contents()))
else
rcon.print('Failed: Inventory %[1]s not found for player.')
end`, inv), nil
	}
	return fmt.Sprintf(scriptPrefix+`local entity = game.surfaces[1].find_entity('%[2]s', {%[3]s,%[4]s})
if entity then
local inventory = entity.get_inventory(defines.inventory.%[1]s)
if inventory then
rcon.print(helpers.table_to_json(inventory.get_contents()))
else
rcon.print('Failed: Inventory %[1]s not found for %[2]s.')
end
else
rcon.print('Failed: Entity %[2]s not found.')
end`, inv, entity, x, y), nil
}

func encodeInsertItem(p Params) (string, error) {
	item, err := p.requireString("item")
	if err != nil {
		return "", err
	}
	count, err := p.requireInt("count")
	if err != nil {
		return "", err
	}
	inv, err := p.stringOr("inventory_type", "character_main")
	if err != nil {
		return "", err
	}
	entity, x, y, err := inventoryEntity(p)
	if err != nil {
		return "", err
	}
	if entity == PlayerEntity {
		return fmt.Sprintf(scriptPrefix+`game.get_player(1).get_inventory(defines.inventory.%[3]s).insert{name='%[1]s', count=%[2]s}
rcon.print('Success: %[1]s added to player %[3]s')`, item, count, inv), nil
	}
	return fmt.Sprintf(scriptPrefix+`local entity = game.surfaces[1].find_entity('%[4]s', {%[5]s,%[6]s})
if entity then
entity.get_inventory(defines.inventory.%[3]s).insert{name='%[1]s', count=%[2]s}
rcon.print('Success: Item %[1]s added to %[4]s %[3]s')
else
rcon.print('Failed: Entity %[4]s not found')
end`, item, count, inv, entity, x, y), nil
}

func encodeRemoveItem(p Params) (string, error) {
	item, err := p.requireString("item")
	if err != nil {
		return "", err
	}
	count, err := p.requireInt("count")
	if err != nil {
		return "", err
	}
	entity, x, y, err := inventoryEntity(p)
	if err != nil {
		return "", err
	}
	if entity == PlayerEntity {
		return fmt.Sprintf(scriptPrefix+`local main_inventory = game.get_player(1).get_main_inventory()
if main_inventory.get_item_count('%[1]s') >= %[2]s then
main_inventory.remove({name='%[1]s', count=%[2]s})
rcon.print('Success: %[1]s removed from player')
else
rcon.print(string.format('Failed: %%s count is %%d', '%[1]s', main_inventory.get_item_count('%[1]s')))
end`, item, count), nil
	}
	return fmt.Sprintf(scriptPrefix+`local entity = game.surfaces[1].find_entity('%[3]s', {%[4]s,%[5]s})
if entity then
entity.get_inventory(1).remove{name='%[1]s', count=%[2]s}
rcon.print('Success: Item %[1]s removed from %[3]s')
else
rcon.print('Failed: Entity %[3]s not found')
end`, item, count, entity, x, y), nil
}

// inventoryEntity resolves the inventory owner. Non-player owners need a position.
func inventoryEntity(p Params) (entity, x, y string, err error) {
	entity, err = p.stringOr("entity", PlayerEntity)
	if err != nil || entity == PlayerEntity {
		return entity, "", "", err
	}
	x, y, err = requirePoint(p, "x", "y")
	return entity, x, y, err
}

func requirePoint(p Params, xKey, yKey string) (string, string, error) {
	x, err := p.requireNumber(xKey)
	if err != nil {
		return "", "", err
	}
	y, err := p.requireNumber(yKey)
	if err != nil {
		return "", "", err
	}
	return x, y, nil
}

// nameFilter renders name = 'a' for a single string and name = { 'a', 'b' } for a list.
func nameFilter(p Params, key string) (string, error) {
	names, ok, err := p.Names(key)
	if err != nil || !ok {
		return "", err
	}
	if _, single := p[key].(string); single {
		return fmt.Sprintf("name = '%s'", names[0]), nil
	}
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		quoted = append(quoted, "'"+n+"'")
	}
	return fmt.Sprintf("name = { %s }", strings.Join(quoted, ", ")), nil
}

func limitFilter(p Params) (string, error) {
	limit, ok, err := p.Int("limit")
	if err != nil || !ok || limit == "0" {
		return "", err
	}
	return "limit = " + limit, nil
}

// areaFilter is emitted only when all four bounds are present.
func areaFilter(p Params) (string, error) {
	keys := []string{"bottom_left_x", "bottom_left_y", "top_right_x", "top_right_y"}
	vals := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok, err := p.Number(k)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", nil
		}
		vals = append(vals, v)
	}
	return fmt.Sprintf("area={ { %s, %s }, { %s, %s } }", vals[0], vals[1], vals[2], vals[3]), nil
}

// circleFilter is emitted only when center and radius are all present.
func circleFilter(p Params) (string, error) {
	keys := []string{"position_x", "position_y", "radius"}
	vals := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok, err := p.Number(k)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", nil
		}
		vals = append(vals, v)
	}
	return fmt.Sprintf("position={ %s, %s }, radius=%s", vals[0], vals[1], vals[2]), nil
}

func appendNonEmpty(list []string, s string) []string {
	if s == "" {
		return list
	}
	return append(list, s)
}
