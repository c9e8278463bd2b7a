// Package rules is a table-driven business-rule engine for extracted SOW
// data. Every rule runs on every evaluation (no short-circuiting) so a
// single pass reports all applicable violations in a fixed order.
package rules

import (
	"fmt"
	"time"

	"sowflow/internal/schema"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation is a single rule failure. Code is stable and enumerable;
// severity decides whether the document blocks downstream acceptance.
type Violation struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Field    string   `json:"field"`
	Severity Severity `json:"severity"`
}

// Plausibility thresholds, all GBP.
const (
	maxDayRate       = 1200
	minDayRate       = 200
	maxContractValue = 10_000_000
	maxContractYears = 3
)

type rule struct {
	code     string
	field    string
	severity Severity
	check    func(d *schema.SOWData, now time.Time) *Violation
}

func (r rule) violation(message string) *Violation {
	return &Violation{Code: r.code, Message: message, Field: r.field, Severity: r.severity}
}

func (r rule) violationAt(field, message string) *Violation {
	return &Violation{Code: r.code, Message: message, Field: field, Severity: r.severity}
}

// table is the fixed, ordered rule registry. Order is part of the contract:
// audit trails compare violation lists across runs.
var table []rule

func init() {
	table = []rule{
		clientNameRequired(),
		dateMissing("start_date"),
		dateMissing("end_date"),
		dateFormat("start_date"),
		dateFormat("end_date"),
		dateRange(),
		datePast(),
		dateLongDuration(),
		contractValueMissing(),
		contractValueInvalid(),
		contractValueHigh(),
		dayRateInvalid(),
		dayRateHigh(),
		dayRateLow(),
	}
}

// Evaluate runs every rule against the record. validationPassed is true iff
// no ERROR-severity violation fired; warnings never block.
func Evaluate(d *schema.SOWData) (passed bool, errs, warnings []Violation) {
	return EvaluateAt(d, time.Now().UTC())
}

// EvaluateAt is Evaluate with an injected clock, for deterministic tests of
// the date-relative rules.
func EvaluateAt(d *schema.SOWData, now time.Time) (passed bool, errs, warnings []Violation) {
	errs = []Violation{}
	warnings = []Violation{}
	for _, r := range table {
		v := r.check(d, now)
		if v == nil {
			continue
		}
		if v.Severity == SeverityError {
			errs = append(errs, *v)
		} else {
			warnings = append(warnings, *v)
		}
	}
	return len(errs) == 0, errs, warnings
}

func clientNameRequired() rule {
	r := rule{code: "VAL_CLIENT_MISSING", field: "client_name", severity: SeverityError}
	r.check = func(d *schema.SOWData, _ time.Time) *Violation {
		if trimEmpty(d.ClientName) {
			return r.violation("Client name is required")
		}
		return nil
	}
	return r
}

func dateMissing(field string) rule {
	r := rule{code: "VAL_DATE_MISSING", field: field, severity: SeverityError}
	r.check = func(d *schema.SOWData, _ time.Time) *Violation {
		if dateField(d, field) == nil {
			return r.violation(fmt.Sprintf("%s is required", field))
		}
		return nil
	}
	return r
}

func dateFormat(field string) rule {
	r := rule{code: "VAL_DATE_FORMAT", field: field, severity: SeverityError}
	r.check = func(d *schema.SOWData, _ time.Time) *Violation {
		s := dateField(d, field)
		if s == nil {
			return nil // missing is dateMissing's concern
		}
		if _, err := time.Parse(schema.DateLayout, *s); err != nil {
			return r.violation(fmt.Sprintf("Invalid date format for %s (expected YYYY-MM-DD): %s", field, *s))
		}
		return nil
	}
	return r
}

func dateRange() rule {
	r := rule{code: "VAL_DATE_RANGE", field: "start_date,end_date", severity: SeverityError}
	r.check = func(d *schema.SOWData, _ time.Time) *Violation {
		start, end, ok := parsedRange(d)
		if !ok {
			return nil // missing or unparseable dates are covered elsewhere
		}
		if !end.After(start) {
			return r.violation(fmt.Sprintf("End date must be after start date (start=%s, end=%s)", *d.StartDate, *d.EndDate))
		}
		return nil
	}
	return r
}

func datePast() rule {
	r := rule{code: "VAL_DATE_PAST", field: "end_date", severity: SeverityWarning}
	r.check = func(d *schema.SOWData, now time.Time) *Violation {
		if d.EndDate == nil {
			return nil
		}
		end, err := time.Parse(schema.DateLayout, *d.EndDate)
		if err != nil {
			return nil
		}
		today := now.Truncate(24 * time.Hour)
		if end.Before(today) {
			daysAgo := int(today.Sub(end).Hours() / 24)
			return r.violation(fmt.Sprintf("Contract ended %d days ago (end_date=%s)", daysAgo, *d.EndDate))
		}
		return nil
	}
	return r
}

func dateLongDuration() rule {
	r := rule{code: "VAL_DATE_LONG", field: "start_date,end_date", severity: SeverityWarning}
	r.check = func(d *schema.SOWData, _ time.Time) *Violation {
		start, end, ok := parsedRange(d)
		if !ok {
			return nil
		}
		days := int(end.Sub(start).Hours() / 24)
		if days > 365*maxContractYears {
			return r.violation(fmt.Sprintf("Contract duration is very long: %d days (%.1f years)", days, float64(days)/365))
		}
		return nil
	}
	return r
}

func contractValueMissing() rule {
	r := rule{code: "VAL_VALUE_MISSING", field: "contract_value", severity: SeverityWarning}
	r.check = func(d *schema.SOWData, _ time.Time) *Violation {
		if d.ContractValue == nil {
			return r.violation("Contract value not specified")
		}
		return nil
	}
	return r
}

func contractValueInvalid() rule {
	r := rule{code: "VAL_VALUE_INVALID", field: "contract_value", severity: SeverityError}
	r.check = func(d *schema.SOWData, _ time.Time) *Violation {
		if d.ContractValue != nil && *d.ContractValue <= 0 {
			return r.violation(fmt.Sprintf("Contract value must be positive (got: %v)", *d.ContractValue))
		}
		return nil
	}
	return r
}

func contractValueHigh() rule {
	r := rule{code: "VAL_VALUE_HIGH", field: "contract_value", severity: SeverityWarning}
	r.check = func(d *schema.SOWData, _ time.Time) *Violation {
		if d.ContractValue != nil && *d.ContractValue > maxContractValue {
			return r.violation(fmt.Sprintf("Very large contract value: £%.0f (threshold: £%d)", *d.ContractValue, maxContractValue))
		}
		return nil
	}
	return r
}

func dayRateInvalid() rule {
	r := rule{code: "VAL_RATE_INVALID", field: "day_rates", severity: SeverityError}
	r.check = func(d *schema.SOWData, _ time.Time) *Violation {
		for i, dr := range d.DayRates {
			if dr.Rate <= 0 {
				return r.violationAt(fmt.Sprintf("day_rates[%d].rate", i),
					fmt.Sprintf("Day rate must be positive for role at index %d (rate=%v)", i, dr.Rate))
			}
		}
		return nil
	}
	return r
}

func dayRateHigh() rule {
	r := rule{code: "VAL_RATE_HIGH", field: "day_rates", severity: SeverityWarning}
	r.check = func(d *schema.SOWData, _ time.Time) *Violation {
		for i, dr := range d.DayRates {
			if dr.Rate > maxDayRate {
				return r.violationAt(fmt.Sprintf("day_rates[%d].rate", i),
					fmt.Sprintf("Day rate very high at index %d: £%v (threshold: £%d)", i, dr.Rate, maxDayRate))
			}
		}
		return nil
	}
	return r
}

func dayRateLow() rule {
	r := rule{code: "VAL_RATE_LOW", field: "day_rates", severity: SeverityWarning}
	r.check = func(d *schema.SOWData, _ time.Time) *Violation {
		for i, dr := range d.DayRates {
			if dr.Rate > 0 && dr.Rate < minDayRate {
				return r.violationAt(fmt.Sprintf("day_rates[%d].rate", i),
					fmt.Sprintf("Day rate very low at index %d: £%v (threshold: £%d)", i, dr.Rate, minDayRate))
			}
		}
		return nil
	}
	return r
}

func dateField(d *schema.SOWData, field string) *string {
	if field == "start_date" {
		return d.StartDate
	}
	return d.EndDate
}

func parsedRange(d *schema.SOWData) (start, end time.Time, ok bool) {
	if d.StartDate == nil || d.EndDate == nil {
		return
	}
	var err error
	if start, err = time.Parse(schema.DateLayout, *d.StartDate); err != nil {
		return
	}
	if end, err = time.Parse(schema.DateLayout, *d.EndDate); err != nil {
		return
	}
	ok = true
	return
}

func trimEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
