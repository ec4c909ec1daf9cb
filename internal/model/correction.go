package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// CorrectionField identifies a record field a verification pass may correct.
type CorrectionField string

const (
	CorrectionAskingPrice CorrectionField = "asking_price"
	CorrectionRent        CorrectionField = "rent"
	CorrectionARV         CorrectionField = "arv"
	CorrectionRehab       CorrectionField = "rehab_estimate"
	CorrectionStreet      CorrectionField = "street"
	CorrectionZip         CorrectionField = "zip"
)

// Correction is a tagged field-level fix produced by a verification pass.
type Correction struct {
	Field     CorrectionField `json:"field"`
	Extracted string          `json:"extracted_value"`
	Corrected string          `json:"corrected_value"`
	Reason    string          `json:"reason"`
}

// ApplyCorrection writes a correction into the record through a typed setter
// and notes what changed. Unknown fields are an error, never a silent no-op.
func (r *PropertyRecord) ApplyCorrection(c Correction) error {
	switch c.Field {
	case CorrectionAskingPrice:
		v, err := atoiStrict(c.Corrected)
		if err != nil {
			return err
		}
		r.AskingPrice = v
	case CorrectionRent:
		v, err := atoiStrict(c.Corrected)
		if err != nil {
			return err
		}
		r.Rent = v
	case CorrectionARV:
		v, err := atoiStrict(c.Corrected)
		if err != nil {
			return err
		}
		r.ARV = v
	case CorrectionRehab:
		v, err := atoiStrict(c.Corrected)
		if err != nil {
			return err
		}
		r.RehabEstimate = v
	case CorrectionStreet:
		r.Street = c.Corrected
	case CorrectionZip:
		r.Zip = c.Corrected
	default:
		return eris.Errorf("model: unknown correction field %q", c.Field)
	}

	r.AddNote(fmt.Sprintf("corrected %s: %q -> %q (%s)", c.Field, c.Extracted, c.Corrected, c.Reason))
	return nil
}

func atoiStrict(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, eris.Wrapf(err, "model: correction value %q is not numeric", s)
	}
	return v, nil
}
