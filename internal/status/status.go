package status

// None is reported when no defined bit is set.
const None = "none"

// Flag is one defined status bit and its machine name.
type Flag struct {
	Bit  int64
	Name string
}

// Label is one entry of the dominant-label priority list.
type Label struct {
	Bit   int64
	Label string
}

// Flags lists the defined bits in ascending bit order.
var Flags = []Flag{
	{1, "working"},
	{2, "no_power"},
	{4, "no_fuel"},
	{8, "low_power"},
	{16, "no_minable_resources"},
	{32, "disabled_by_control_behavior"},
	{64, "disabled_by_script"},
	{128, "item_ingredient_shortage"},
	{256, "fluid_ingredient_shortage"},
	{512, "full_output"},
	{1024, "no_research_in_progress"},
}

// Priority is the fixed dominant-label order. The first set bit wins.
var Priority = []Label{
	{1024, "No Research In Progress"},
	{512, "Output Full"},
	{8, "Low Power"},
	{64, "Disabled by Script"},
	{32, "Target Full"},
	{256, "Fluid Shortage"},
	{128, "Item Shortage"},
	{16, "No Resources"},
	{2, "No Power"},
	{4, "No Fuel"},
	{1, "Working"},
}

// DecodeAll returns the names of every defined bit set in mask, or
// ["none"] when no defined bit is set.
func DecodeAll(mask int64) []string {
	out := make([]string, 0, 2)
	for _, f := range Flags {
		if mask&f.Bit != 0 {
			out = append(out, f.Name)
		}
	}
	if len(out) == 0 {
		out = append(out, None)
	}
	return out
}

// DecodeDominant returns the highest-priority label set in mask.
func DecodeDominant(mask int64) string {
	for _, p := range Priority {
		if mask&p.Bit != 0 {
			return p.Label
		}
	}
	return None
}
