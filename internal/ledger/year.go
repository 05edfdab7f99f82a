package ledger

import (
	"fmt"
	"sort"
)

// InvalidYear is a fatal, non-recoverable error: the input set mixes rows
// from more than one calendar year. Every run is scoped to a single tax
// year, so this indicates a misassembled input set rather than anything
// the resolver could work around.
type InvalidYear struct {
	Year  int
	Other []int
}

func (e InvalidYear) Error() string {
	return fmt.Sprintf("inputs mix years: expected %d, also found %v", e.Year, e.Other)
}

// ValidateYears checks that the union of one or more year sets (e.g. one
// from the ledger stream, one from the wallet stream) spans a single
// calendar year, returning InvalidYear if not.
func ValidateYears(yearSets ...[]int) error {
	years := make(map[int]bool)
	for _, set := range yearSets {
		for _, y := range set {
			years[y] = true
		}
	}
	return checkYears(years)
}

func checkYears(years map[int]bool) error {
	if len(years) <= 1 {
		return nil
	}
	sorted := make([]int, 0, len(years))
	for y := range years {
		sorted = append(sorted, y)
	}
	sort.Ints(sorted)
	var other []int
	other = append(other, sorted[1:]...)
	return InvalidYear{Year: sorted[0], Other: other}
}
