package claim

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Status string

const (
	StatusSubmitted Status = "Submitted"
	StatusPaid      Status = "Paid"
	StatusDenied    Status = "Denied"
	StatusPending   Status = "Pending"
	StatusPartial   Status = "Partial"
)

var (
	ErrInvalidStatus  = errors.New("invalid claim status")
	ErrNegativeAmount = errors.New("negative amount")
)

func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusPaid, StatusDenied, StatusPending, StatusPartial:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

func (s *Status) UnmarshalJSON(data []byte) error {
	var t Text
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	*s = Status(t)
	return nil
}

// Text is a display scalar that decodes from any JSON scalar. Identifiers
// arrive as numbers from the database and as strings from free-form requests.
type Text string

func (t Text) String() string { return string(t) }

func (t *Text) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*t = ""
	case strings.HasPrefix(raw, `"`):
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*t = Text(v)
	case strings.HasPrefix(raw, "{"), strings.HasPrefix(raw, "["):
		return fmt.Errorf("claim: expected scalar, got %.20s", raw)
	default:
		*t = Text(raw)
	}
	return nil
}

// Amount is a monetary value that keeps its raw form when it is not numeric,
// so a malformed charge still reaches the auditor as written.
type Amount struct {
	value   float64
	raw     string
	numeric bool
	set     bool
}

func Money(v float64) Amount {
	return Amount{value: v, numeric: true, set: true}
}

func ParseAmount(raw string) Amount {
	trimmed := strings.TrimSpace(raw)
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return Amount{value: v, raw: raw, numeric: true, set: true}
	}
	return Amount{raw: raw, set: true}
}

func (a Amount) Float() (float64, bool) {
	if !a.set {
		return 0, true
	}
	return a.value, a.numeric
}

// Text renders the amount as currency, or the raw value when it cannot be
// read as a number. A missing amount renders as zero.
func (a Amount) Text() string {
	if !a.set {
		return "$0.00"
	}
	if a.numeric {
		return fmt.Sprintf("$%.2f", a.value)
	}
	return "$" + a.raw
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*a = Amount{raw: "N/A", set: true}
	case strings.HasPrefix(raw, `"`):
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*a = ParseAmount(v)
	default:
		*a = ParseAmount(raw)
	}
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.set {
		return []byte("0"), nil
	}
	if a.numeric {
		return json.Marshal(a.value)
	}
	return json.Marshal(a.raw)
}

type LineItem struct {
	ProcedureCode Text   `json:"cpt_code"`
	Description   Text   `json:"description"`
	Charge        Amount `json:"charge_amount"`
}

// Record is a read-only snapshot of a claim and its line items as handed to
// the audit core.
type Record struct {
	ID            Text       `json:"claim_id"`
	Date          Text       `json:"claim_date"`
	Status        Status     `json:"status"`
	TotalCharge   Amount     `json:"total_charge"`
	InsurancePaid Amount     `json:"insurance_paid"`
	PatientPaid   Amount     `json:"patient_paid"`
	PatientName   Text       `json:"patient_name"`
	PatientID     Text       `json:"patient_id"`
	ProviderName  Text       `json:"provider_name"`
	ProviderID    Text       `json:"provider_id"`
	Items         []LineItem `json:"items"`
}

func (r Record) Validate() error {
	var errs []error
	if !r.Status.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidStatus, string(r.Status)))
	}
	check := func(name string, a Amount) {
		if v, ok := a.Float(); ok && v < 0 {
			errs = append(errs, fmt.Errorf("%w: %s=%.2f", ErrNegativeAmount, name, v))
		}
	}
	check("total_charge", r.TotalCharge)
	check("insurance_paid", r.InsurancePaid)
	check("patient_paid", r.PatientPaid)
	for i, item := range r.Items {
		check(fmt.Sprintf("items[%d].charge_amount", i), item.Charge)
	}
	return errors.Join(errs...)
}

// Input is what an audit is run against: a structured record, or free-form
// text kept for callers that only have a blob. Err is set when Raw is a JSON
// object that could not be decoded into a Record.
type Input struct {
	Record *Record
	Raw    string
	Err    error
}

func FromRecord(r Record) Input {
	return Input{Record: &r}
}

// ParseInput decodes a JSON object into a Record. Anything that is not a
// JSON object is kept as raw claim text.
func ParseInput(text string) Input {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !json.Valid([]byte(trimmed)) {
		return Input{Raw: text}
	}
	var r Record
	if err := json.Unmarshal([]byte(trimmed), &r); err != nil {
		return Input{Raw: text, Err: fmt.Errorf("decode claim: %w", err)}
	}
	return Input{Record: &r, Raw: text}
}
