package gains

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// GainMatrix buckets realized gains/losses by term and sourcing, matching
// the four-quadrant structure (short/long x US/territory) the worksheet
// renders as two 2-row tables.
type GainMatrix struct {
	ShortUS, ShortTerritory decimal.Decimal
	LongUS, LongTerritory   decimal.Decimal
}

// Add folds a single disposal Event into the matrix. usFraction and
// territoryFraction split the event's gain between the US-sourced and
// territory-sourced quadrants (each quadrant receives gain times its
// fraction). Outside a straddle one is 0 and the other 1; for a holding
// period that straddles the bona fide residency move date the fractions
// come from the value at the move date and sum to 1 for a nonzero gain,
// but either one can fall outside [0,1] when the two periods' gains have
// opposite signs.
func (m *GainMatrix) Add(e Event, usFraction, territoryFraction decimal.Decimal) {
	gain := e.GainUSD()
	usPart := gain.Mul(usFraction)
	territoryPart := gain.Mul(territoryFraction)
	switch e.Term {
	case TermShort:
		m.ShortUS = m.ShortUS.Add(usPart)
		m.ShortTerritory = m.ShortTerritory.Add(territoryPart)
	case TermLong:
		m.LongUS = m.LongUS.Add(usPart)
		m.LongTerritory = m.LongTerritory.Add(territoryPart)
	}
}

// ApplyInterestExpenses subtracts deductible margin interest expense from
// short-term gains first, carrying any excess over into long-term gains,
// and returns the portion that could not be absorbed at all (to carry
// forward to a future year).
func (m *GainMatrix) ApplyInterestExpenses(interestUSD decimal.Decimal) (carryover decimal.Decimal) {
	remaining := interestUSD
	shortTotal := m.ShortUS.Add(m.ShortTerritory)
	if shortTotal.IsPositive() {
		capped := decimal.Min(remaining, shortTotal)
		if shortTotal.IsPositive() {
			usShare := m.ShortUS.Div(shortTotal)
			m.ShortUS = m.ShortUS.Sub(capped.Mul(usShare))
			m.ShortTerritory = m.ShortTerritory.Sub(capped.Sub(capped.Mul(usShare)))
		}
		remaining = remaining.Sub(capped)
	}
	if remaining.IsPositive() {
		longTotal := m.LongUS.Add(m.LongTerritory)
		if longTotal.IsPositive() {
			capped := decimal.Min(remaining, longTotal)
			usShare := m.LongUS.Div(longTotal)
			m.LongUS = m.LongUS.Sub(capped.Mul(usShare))
			m.LongTerritory = m.LongTerritory.Sub(capped.Sub(capped.Mul(usShare)))
			remaining = remaining.Sub(capped)
		}
	}
	return remaining
}

// Worksheet is one named group of Events (one per WorksheetName) with its
// computed gain matrix, ready for CSV rendering.
type Worksheet struct {
	Name   string
	Events []Event
	Matrix GainMatrix
}

// BuildWorksheets groups resolved events by WorksheetName and computes each
// group's gain matrix. residency determines, for each event, what fraction
// of its gain is US-sourced vs. territory-sourced.
func BuildWorksheets(events []Event, residency func(Event) (usFraction, territoryFraction decimal.Decimal)) []Worksheet {
	byName := make(map[string]*Worksheet)
	var order []string
	for _, e := range events {
		w, ok := byName[e.WorksheetName]
		if !ok {
			w = &Worksheet{Name: e.WorksheetName}
			byName[e.WorksheetName] = w
			order = append(order, e.WorksheetName)
		}
		w.Events = append(w.Events, e)
		if e.Kind == EventTradeAtom || e.Kind == EventFee {
			us, territory := residency(e)
			w.Matrix.Add(e, us, territory)
		}
	}
	sort.Strings(order)
	out := make([]Worksheet, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

// WriteCSV renders a worksheet's disposal rows (trade atoms and fees) with
// the columns synthetic_id, asset, date_acquired, date_sold, proceeds,
// basis, gain_loss, term.
func (w Worksheet) WriteCSV(out io.Writer) error {
	cw := csv.NewWriter(out)
	defer cw.Flush()
	if err := cw.Write([]string{"synthetic_id", "asset", "date_acquired", "date_sold", "proceeds", "basis", "gain_loss", "term"}); err != nil {
		return err
	}
	for _, e := range w.Events {
		if e.Kind != EventTradeAtom && e.Kind != EventFee {
			continue
		}
		row := []string{
			e.SyntheticID,
			e.Asset.String(),
			e.AcquiredAt.Format("2006-01-02"),
			e.Time.Format("2006-01-02"),
			e.ProceedsUSD().StringFixed(2),
			e.BasisUSD().StringFixed(2),
			e.GainUSD().StringFixed(2),
			e.Term.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

// CheckListError reports that a run's events contained unresolved pricing
// errors and no worksheet was written.
type CheckListError struct {
	Errors []PriceError
}

func (e CheckListError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d unresolved pricing error(s), no checkpoint written", len(e.Errors))
	for _, pe := range e.Errors {
		b.WriteString("\n  ")
		b.WriteString(pe.Error())
	}
	return b.String()
}

// CheckList partitions a run's resolved results into successful events
// (grouped by worksheet) and accumulated errors. Execute returns an error
// if any event failed to resolve; the caller must not emit worksheets or
// save a checkpoint in that case.
type CheckList struct {
	Resolved []Event
	Errors   []PriceError
}

func (c *CheckList) Add(e Event) {
	c.Resolved = append(c.Resolved, e)
}

func (c *CheckList) AddError(err PriceError) {
	c.Errors = append(c.Errors, err)
}

// Execute returns the resolved events grouped by worksheet name, or a
// CheckListError if any errors were recorded.
func (c *CheckList) Execute() (map[string][]Event, error) {
	if len(c.Errors) > 0 {
		return nil, CheckListError{Errors: c.Errors}
	}
	byName := make(map[string][]Event)
	for _, e := range c.Resolved {
		byName[e.WorksheetName] = append(byName[e.WorksheetName], e)
	}
	return byName, nil
}
