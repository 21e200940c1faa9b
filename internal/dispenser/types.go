package dispenser

// Result describes how a request is filled with the fewest units.
// Units maps a denomination to the number of units of it; TotalUnits and
// TotalValue are derived from Units.
type Result struct {
	Request    int         `json:"request"`
	Units      map[int]int `json:"units"`
	TotalUnits int         `json:"totalUnits"`
	TotalValue int         `json:"totalValue"`
}

// Solver describes the behaviour required from a denomination solver.
type Solver interface {
	MinUnitsFor(request int) (int, error)
	Dispense(request int) (Result, error)
	Denominations() []int
}
