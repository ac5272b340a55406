package scrape

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInput marks operator input rejected before any browser
// interaction.
var ErrInvalidInput = errors.New("invalid input")

const (
	// inputDateLayout is what the operator submits.
	inputDateLayout = "2006-01-02"
	// portalDateLayout is what the registry portal's date fields expect.
	portalDateLayout = "02-01-2006"
)

// Inputs are the operator-supplied parameters for one run. District must
// exactly match an option label on the portal; dates are YYYY-MM-DD.
type Inputs struct {
	Username string
	Password string
	District string
	DeedType string
	DateFrom string
	DateTo   string
}

// normalizedInputs carry the portal-format dates alongside the raw inputs.
type normalizedInputs struct {
	Inputs
	portalDateFrom string
	portalDateTo   string
}

// Validate reports whether the inputs would be accepted by a run.
func (in Inputs) Validate() error {
	_, err := in.normalize()
	return err
}

// normalize validates the date range and converts it into the portal's
// display format. It never touches the browser.
func (in Inputs) normalize() (normalizedInputs, error) {
	from, err := time.Parse(inputDateLayout, in.DateFrom)
	if err != nil {
		return normalizedInputs{}, fmt.Errorf("%w: date_from %q: expected YYYY-MM-DD", ErrInvalidInput, in.DateFrom)
	}
	to, err := time.Parse(inputDateLayout, in.DateTo)
	if err != nil {
		return normalizedInputs{}, fmt.Errorf("%w: date_to %q: expected YYYY-MM-DD", ErrInvalidInput, in.DateTo)
	}

	return normalizedInputs{
		Inputs:         in,
		portalDateFrom: from.Format(portalDateLayout),
		portalDateTo:   to.Format(portalDateLayout),
	}, nil
}
