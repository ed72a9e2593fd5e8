package autofix

import (
	"testing"

	"github.com/dverna/verita/internal/normalize"
	"github.com/dverna/verita/internal/policy"
	"github.com/dverna/verita/internal/score"
	"github.com/dverna/verita/pkg/types"
)

var testOpts = normalize.Options{DefaultCountry: "+39", DefaultCurrency: "EUR"}

func TestProposePhoneFix(t *testing.T) {
	p := policy.Default().Policy
	rec := types.ExtractedRecord{
		RecordID:   "cust-1",
		RecordType: types.RecordCustomer,
		Fields: []types.RawField{
			{Name: "nome", Value: "Mario"},
			{Name: "cognome", Value: "Rossi"},
			{Name: "codice_fiscale", Value: "RSSMRA85T10A562S"},
			{Name: "telefono", Value: "+39 333 1234567"},
		},
	}
	outcomes := []score.RecordOutcome{score.EvaluateRecord(p, testOpts, rec)}

	fixes := Propose(testOpts, outcomes, nil)
	if len(fixes) != 1 {
		t.Fatalf("expected one fix, got %+v", fixes)
	}

	fix := fixes[0]
	if fix.Field != "telefono" {
		t.Fatalf("expected telefono fix, got %s", fix.Field)
	}
	if fix.Original != "+39 333 1234567" || fix.Suggested != "+393331234567" {
		t.Fatalf("unexpected rewrite: %+v", fix)
	}
	if fix.Transform != normalize.TransformPhoneFormat {
		t.Fatalf("expected phone_format, got %s", fix.Transform)
	}
	if fix.Confidence < 0.8 {
		t.Fatalf("fix confidence must stay above the proposal floor, got %v", fix.Confidence)
	}
	if fix.IssueID != "" {
		t.Fatalf("clean field fix must not reference an issue, got %s", fix.IssueID)
	}
}

func TestProposeSkipsFailedAndCanonicalFields(t *testing.T) {
	p := policy.Default().Policy
	rec := types.ExtractedRecord{
		RecordID:   "tx-1",
		RecordType: types.RecordTransaction,
		Fields: []types.RawField{
			{Name: "data", Value: "domani"},
			{Name: "importo", Value: "1200.00 EUR"},
			{Name: "tipo", Value: "pagamento"},
		},
	}
	outcomes := []score.RecordOutcome{score.EvaluateRecord(p, testOpts, rec)}

	if fixes := Propose(testOpts, outcomes, nil); len(fixes) != 0 {
		t.Fatalf("expected no fixes, got %+v", fixes)
	}
}

func TestProposeLinksIssue(t *testing.T) {
	p := policy.Default().Policy
	rec := types.ExtractedRecord{
		RecordID:   "tx-1",
		RecordType: types.RecordTransaction,
		Fields: []types.RawField{
			{Name: "data", Value: "01/13/2024"},
			{Name: "importo", Value: "1200.00 EUR"},
			{Name: "tipo", Value: "pagamento"},
		},
	}
	outcome := score.EvaluateRecord(p, testOpts, rec)
	if len(outcome.Issues) != 1 {
		t.Fatalf("expected a low-confidence date issue, got %+v", outcome.Issues)
	}

	fixes := Propose(testOpts, []score.RecordOutcome{outcome}, outcome.Issues)
	if len(fixes) != 1 {
		t.Fatalf("expected one fix, got %+v", fixes)
	}
	fix := fixes[0]
	if fix.IssueID != outcome.Issues[0].IssueID {
		t.Fatalf("fix must link the issue on its field: %q vs %q", fix.IssueID, outcome.Issues[0].IssueID)
	}
	if fix.Transform != normalize.TransformDayMonthSwap {
		t.Fatalf("expected day_month_swap label, got %s", fix.Transform)
	}
	if fix.Confidence != 0.80 {
		t.Fatalf("expected 0.80, got %v", fix.Confidence)
	}
}

func TestProposeRoundTrips(t *testing.T) {
	p := policy.Default().Policy
	rec := types.ExtractedRecord{
		RecordID:   "tx-1",
		RecordType: types.RecordTransaction,
		Fields: []types.RawField{
			{Name: "data", Value: "13 gennaio 2024"},
			{Name: "importo", Value: "1.200,50"},
			{Name: "tipo", Value: "pagamento"},
		},
	}
	outcomes := []score.RecordOutcome{score.EvaluateRecord(p, testOpts, rec)}

	for _, fix := range Propose(testOpts, outcomes, nil) {
		decision := policy.Resolve(p, fix.RecordType, fix.Field)
		again := normalize.Normalize(decision.Type, fix.Suggested, testOpts)
		if again.Failure != nil || again.Value != fix.Suggested {
			t.Fatalf("fix does not round-trip: %+v -> %+v", fix, again)
		}
		if len(again.Transforms) != 0 {
			t.Fatalf("suggested value must already be canonical, got %v", again.Transforms)
		}
	}
}
