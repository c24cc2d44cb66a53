package command

import "errors"

var (
	ErrUnknownVerb      = errors.New("command: unknown verb")
	ErrInvalidParameter = errors.New("command: invalid parameter")
	ErrCatalogRejected  = errors.New("command: catalog rejected identifier")
)

// Verb names one operation a bus client can request.
type Verb string

const (
	VerbGetPlayerPosition     Verb = "get_player_position"
	VerbMovePlayer            Verb = "move_player"
	VerbPlaceEntity           Verb = "place_entity"
	VerbRemoveEntity          Verb = "remove_entity"
	VerbSearchEntities        Verb = "search_entities"
	VerbGetInventory          Verb = "get_inventory"
	VerbInsertItem            Verb = "insert_item"
	VerbRemoveItem            Verb = "remove_item"
	VerbFindSurfaceTile       Verb = "find_surface_tile"
	VerbListSupportedEntities Verb = "list_supported_entities"
	VerbListSupportedItems    Verb = "list_supported_items"
)

// PlayerEntity is the pseudo entity name addressing the controlled character.
const PlayerEntity = "player"

// Command is one decoded bus request. It is consumed once and never stored.
type Command struct {
	Verb   Verb
	Params Params
}
