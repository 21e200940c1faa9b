package dispenser

import (
	"fmt"
	"slices"
)

// MaxRequest bounds the request size, and with it the per-query memo table.
const MaxRequest = 100_000

const unsolved = -1

var referenceDenominations = []int{90, 30, 24, 10, 6, 2, 1}

var _ Solver = (*Dispenser)(nil)

// Dispenser computes minimal unit counts for a fixed list of denominations.
type Dispenser struct {
	denominations []int
}

// New validates the denominations and returns a Dispenser holding its own copy of them.
func New(denominations []int) (*Dispenser, error) {
	if err := validateDenominations(denominations); err != nil {
		return nil, err
	}
	return &Dispenser{denominations: slices.Clone(denominations)}, nil
}

// Denominations returns a copy of the denominations in descending order.
func (d *Dispenser) Denominations() []int {
	return slices.Clone(d.denominations)
}

// MinUnitsFor returns the minimum number of units that sum exactly to request.
// A request of 0 needs no units.
func (d *Dispenser) MinUnitsFor(request int) (int, error) {
	s, err := d.newSearch(request)
	if err != nil {
		return 0, err
	}
	return s.solve(request, 0), nil
}

// Dispense returns the minimum number of units for request together with the
// denominations that make it up.
func (d *Dispenser) Dispense(request int) (Result, error) {
	s, err := d.newSearch(request)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Request:    request,
		Units:      make(map[int]int),
		TotalUnits: s.solve(request, 0),
	}

	// Replay the decisions of solve; equal branches resolve to skipping.
	for remaining, index := request, 0; remaining > 0; {
		den := s.denominations[index]
		switch {
		case den == 1:
			result.Units[den] += remaining
			remaining = 0
		case remaining == den:
			result.Units[den]++
			remaining = 0
		case den > remaining:
			index++
		case 1+s.solve(remaining-den, index) < s.solve(remaining, index+1):
			result.Units[den]++
			remaining -= den
		default:
			index++
		}
	}

	for den, count := range result.Units {
		result.TotalValue += den * count
	}
	return result, nil
}

// SelfCheck verifies the solver against a known answer: 18 is filled by three
// units of {90, 30, 24, 10, 6, 2, 1}.
func SelfCheck() error {
	d, err := New(referenceDenominations)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSelfCheckFailed, err)
	}
	got, err := d.MinUnitsFor(18)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSelfCheckFailed, err)
	}
	if got != 3 {
		return fmt.Errorf("%w: request 18 took %d units, want 3", ErrSelfCheckFailed, got)
	}
	return nil
}

type search struct {
	denominations []int
	width         int
	memo          []int
}

func (d *Dispenser) newSearch(request int) (*search, error) {
	if request < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRequest, request)
	}
	if request > MaxRequest {
		return nil, fmt.Errorf("%w: %d > %d", ErrRequestTooLarge, request, MaxRequest)
	}

	width := len(d.denominations)
	memo := make([]int, (request+1)*width)
	for i := range memo {
		memo[i] = unsolved
	}
	return &search{
		denominations: d.denominations,
		width:         width,
		memo:          memo,
	}, nil
}

// solve returns the fewest units summing to request using denominations[index:].
func (s *search) solve(request, index int) int {
	den := s.denominations[index]
	if den == 1 {
		return request
	}
	if request == den {
		return 1
	}

	key := request*s.width + index
	if cached := s.memo[key]; cached != unsolved {
		return cached
	}

	var best int
	if den > request {
		best = s.solve(request, index+1)
	} else {
		uses := 1 + s.solve(request-den, index)
		skips := s.solve(request, index+1)
		best = min(uses, skips)
	}

	s.memo[key] = best
	return best
}

func validateDenominations(denominations []int) error {
	if len(denominations) == 0 {
		return ErrNoDenominations
	}
	for i, den := range denominations {
		if den <= 0 {
			return fmt.Errorf("%w: got %d at index %d", ErrInvalidDenominations, den, i)
		}
		if i > 0 && den >= denominations[i-1] {
			return fmt.Errorf("%w: %d follows %d", ErrNotDescending, den, denominations[i-1])
		}
	}
	if last := denominations[len(denominations)-1]; last != 1 {
		return fmt.Errorf("%w: last denomination is %d", ErrMissingUnitDenomination, last)
	}
	return nil
}
