package policy

import (
	"github.com/dverna/verita/pkg/types"
)

// Class groups field types for threshold lookup and severity mapping.
type Class string

const (
	ClassIdentity Class = "identity"
	ClassContact  Class = "contact"
	ClassDate     Class = "date"
	ClassAmount   Class = "amount"
	ClassText     Class = "text"
)

// FieldDecision is the resolved validation treatment for one field.
type FieldDecision struct {
	Type          types.FieldType
	Class         Class
	Threshold     float64
	Decisive      bool
	MatchedRuleID string
}

// ClassOf maps a field type to its threshold class.
func ClassOf(ft types.FieldType) Class {
	switch ft {
	case types.FieldFiscalCode, types.FieldIBAN, types.FieldVAT, types.FieldCode:
		return ClassIdentity
	case types.FieldPhone, types.FieldEmail:
		return ClassContact
	case types.FieldDate:
		return ClassDate
	case types.FieldAmount:
		return ClassAmount
	default:
		return ClassText
	}
}

// SeverityFor maps a field class to the severity of a scoring issue on it.
// Free text is informational; everything typed blocks review.
func SeverityFor(c Class) types.Severity {
	if c == ClassText {
		return types.SeverityLow
	}
	return types.SeverityHigh
}

// Resolve applies the first matching field rule to (recordType, field),
// falling back to free text. Threshold and decisiveness come from the rule
// effect when set, otherwise from class defaults.
func Resolve(p Policy, recordType types.RecordType, field string) FieldDecision {
	decision := FieldDecision{Type: types.FieldText}

	for _, rule := range p.Rules {
		if !matchField(rule.Match, recordType, field) {
			continue
		}
		decision.MatchedRuleID = rule.ID
		if rule.Effect.Type != "" {
			decision.Type = types.FieldType(rule.Effect.Type)
		}
		decision.Class = ClassOf(decision.Type)
		decision.Threshold = p.thresholdFor(decision.Class)
		decision.Decisive = defaultDecisive(decision.Class)
		if rule.Effect.Threshold != nil {
			decision.Threshold = *rule.Effect.Threshold
		}
		if rule.Effect.Decisive != nil {
			decision.Decisive = *rule.Effect.Decisive
		}
		return decision
	}

	decision.Class = ClassOf(decision.Type)
	decision.Threshold = p.thresholdFor(decision.Class)
	decision.Decisive = defaultDecisive(decision.Class)
	return decision
}

// RecordRuleFor returns the record rule for a record type, if any.
func RecordRuleFor(p Policy, recordType types.RecordType) (RecordRule, bool) {
	for _, rr := range p.Records {
		if rr.RecordType == string(recordType) {
			return rr, true
		}
	}
	return RecordRule{}, false
}

// Reconciled reports whether a field participates in cross-record
// reconciliation for its record type.
func Reconciled(p Policy, recordType types.RecordType, field string) bool {
	rr, ok := RecordRuleFor(p, recordType)
	if !ok {
		return false
	}
	for _, name := range rr.Reconcile {
		if name == field {
			return true
		}
	}
	return false
}

func (p Policy) thresholdFor(c Class) float64 {
	if v, ok := p.Defaults.Thresholds[string(c)]; ok {
		return v
	}
	switch c {
	case ClassIdentity, ClassContact:
		return 0.95
	case ClassDate, ClassAmount:
		return 0.90
	default:
		return 0.80
	}
}

func defaultDecisive(c Class) bool {
	return c == ClassAmount || c == ClassDate
}

func matchField(match FieldMatch, recordType types.RecordType, field string) bool {
	if match.RecordType != "" && match.RecordType != string(recordType) {
		return false
	}
	if match.Field != "" && match.Field != field {
		return false
	}
	return true
}
