package consistency

import (
	"strings"
	"testing"

	"github.com/dverna/verita/internal/normalize"
	"github.com/dverna/verita/internal/policy"
	"github.com/dverna/verita/internal/score"
	"github.com/dverna/verita/pkg/types"
)

var testOpts = normalize.Options{DefaultCountry: "+39", DefaultCurrency: "EUR"}

func evaluate(t *testing.T, p policy.Policy, records ...types.ExtractedRecord) []score.RecordOutcome {
	t.Helper()
	outcomes := make([]score.RecordOutcome, 0, len(records))
	for _, rec := range records {
		outcomes = append(outcomes, score.EvaluateRecord(p, testOpts, rec))
	}
	return outcomes
}

func transaction(id, data, importo, tipo string, page int) types.ExtractedRecord {
	return types.ExtractedRecord{
		RecordID:   id,
		RecordType: types.RecordTransaction,
		Fields: []types.RawField{
			{Name: "riferimento_polizza", Value: "PLZ-RCA-77821"},
			{Name: "data", Value: data, Source: types.SourceRef{Page: page}},
			{Name: "importo", Value: importo},
			{Name: "tipo", Value: tipo},
		},
	}
}

func TestCheckDateGranularityConflict(t *testing.T) {
	p := policy.Default().Policy
	outcomes := evaluate(t, p,
		transaction("tx-1", "13/01/24", "1200.00 EUR", "pagamento", 3),
		transaction("tx-2", "13-01-2024", "1200.00 EUR", "pagamento", 5),
		transaction("tx-3", "01/2024", "1200.00 EUR", "pagamento", 7),
	)

	issues := Check(p, outcomes)
	if len(issues) != 1 {
		t.Fatalf("expected exactly one issue, got %d: %+v", len(issues), issues)
	}

	issue := issues[0]
	if issue.Type != types.IssueInconsistency {
		t.Fatalf("expected inconsistency, got %s", issue.Type)
	}
	if issue.Severity != types.SeverityHigh {
		t.Fatalf("dates are decisive, expected high severity, got %s", issue.Severity)
	}
	if issue.Confidence != nil {
		t.Fatalf("inconsistency must carry no confidence, got %v", *issue.Confidence)
	}
	if issue.Field != "data" {
		t.Fatalf("expected data field, got %s", issue.Field)
	}
	if issue.Entity == nil || issue.Entity.Kind != "policy_number" || issue.Entity.Value != "PLZ-RCA-77821" {
		t.Fatalf("unexpected entity: %+v", issue.Entity)
	}
	if len(issue.Records) != 3 {
		t.Fatalf("expected 3 records, got %+v", issue.Records)
	}
	if !strings.Contains(issue.Reason, "granularity") {
		t.Fatalf("expected granularity reason, got %q", issue.Reason)
	}

	if len(issue.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %+v", issue.Variants)
	}
	if issue.Variants[0].Value != "2024-01-13" || issue.Variants[0].Count != 2 {
		t.Fatalf("expected majority variant first, got %+v", issue.Variants[0])
	}
	if issue.Variants[1].Value != "2024-01" || issue.Variants[1].Count != 1 {
		t.Fatalf("unexpected minority variant: %+v", issue.Variants[1])
	}
	if issue.Suggestion != "2024-01-13" {
		t.Fatalf("expected majority suggestion, got %q", issue.Suggestion)
	}
}

func TestCheckAgreementRaisesNothing(t *testing.T) {
	p := policy.Default().Policy
	outcomes := evaluate(t, p,
		transaction("tx-1", "13/01/2024", "1200.00 EUR", "pagamento", 1),
		transaction("tx-2", "2024-01-13", "1.200,00", "pagamento", 2),
	)

	if issues := Check(p, outcomes); len(issues) != 0 {
		t.Fatalf("normalized agreement must raise nothing, got %+v", issues)
	}
}

func TestCheckSingleRecordEntitySkipped(t *testing.T) {
	p := policy.Default().Policy
	outcomes := evaluate(t, p,
		transaction("tx-1", "13/01/2024", "1200.00 EUR", "pagamento", 1),
	)

	if issues := Check(p, outcomes); len(issues) != 0 {
		t.Fatalf("single-member entity must raise nothing, got %+v", issues)
	}
}

func TestCheckTieBreaksOnEarliestPage(t *testing.T) {
	p := policy.Default().Policy
	outcomes := evaluate(t, p,
		transaction("tx-1", "14/01/2024", "1200.00 EUR", "pagamento", 9),
		transaction("tx-2", "15/01/2024", "1200.00 EUR", "pagamento", 2),
	)

	issues := Check(p, outcomes)
	if len(issues) != 1 {
		t.Fatalf("expected one issue, got %+v", issues)
	}
	issue := issues[0]
	if issue.Variants[0].Value != "2024-01-15" {
		t.Fatalf("tie must break on earliest page, got %+v", issue.Variants)
	}
	if issue.Suggestion != "" {
		t.Fatalf("no majority means no suggestion, got %q", issue.Suggestion)
	}
	if !strings.Contains(issue.Reason, "differs across 2 records") {
		t.Fatalf("unexpected reason: %q", issue.Reason)
	}
}

func TestCheckCustomerReconciliation(t *testing.T) {
	p := policy.Default().Policy
	customer := func(id, email string) types.ExtractedRecord {
		return types.ExtractedRecord{
			RecordID:   id,
			RecordType: types.RecordCustomer,
			Fields: []types.RawField{
				{Name: "nome", Value: "Mario"},
				{Name: "cognome", Value: "Rossi"},
				{Name: "codice_fiscale", Value: "RSSMRA85T10A562S"},
				{Name: "email", Value: email},
			},
		}
	}
	outcomes := evaluate(t, p,
		customer("cust-1", "mario.rossi@gmail.com"),
		customer("cust-2", "m.rossi@libero.it"),
	)

	issues := Check(p, outcomes)
	if len(issues) != 1 {
		t.Fatalf("expected one issue, got %+v", issues)
	}
	issue := issues[0]
	if issue.Field != "email" {
		t.Fatalf("expected email conflict, got %s", issue.Field)
	}
	if issue.Severity != types.SeverityMedium {
		t.Fatalf("email is not decisive, expected medium, got %s", issue.Severity)
	}
	if issue.Entity == nil || issue.Entity.Kind != "fiscal_code" {
		t.Fatalf("unexpected entity: %+v", issue.Entity)
	}
}

func TestCheckFailedFieldsExcluded(t *testing.T) {
	p := policy.Default().Policy
	outcomes := evaluate(t, p,
		transaction("tx-1", "13/01/2024", "1200.00 EUR", "pagamento", 1),
		transaction("tx-2", "domani", "1200.00 EUR", "pagamento", 2),
	)

	for _, issue := range Check(p, outcomes) {
		if issue.Type == types.IssueInconsistency {
			t.Fatalf("failed field must not join reconciliation, got %+v", issue)
		}
	}
}

func TestCheckRefundSign(t *testing.T) {
	p := policy.Default().Policy
	outcomes := evaluate(t, p,
		transaction("tx-1", "13/01/2024", "120.00 EUR", "rimborso", 1),
	)

	issues := Check(p, outcomes)
	if len(issues) != 1 {
		t.Fatalf("expected one issue, got %+v", issues)
	}
	issue := issues[0]
	if issue.Type != types.IssueInconsistency || issue.Field != "importo" {
		t.Fatalf("expected importo inconsistency, got %+v", issue)
	}
	if issue.Severity != types.SeverityHigh {
		t.Fatalf("expected high severity, got %s", issue.Severity)
	}
	if issue.Suggestion != "-120.00 EUR" {
		t.Fatalf("expected negated suggestion, got %q", issue.Suggestion)
	}

	outcomes = evaluate(t, p,
		transaction("tx-2", "13/01/2024", "-120.00 EUR", "rimborso", 1),
	)
	if issues := Check(p, outcomes); len(issues) != 0 {
		t.Fatalf("negative refund is fine, got %+v", issues)
	}
}

func TestCheckIssueIDStable(t *testing.T) {
	p := policy.Default().Policy
	build := func() []types.Issue {
		return Check(p, evaluate(t, p,
			transaction("tx-1", "13/01/24", "1200.00 EUR", "pagamento", 3),
			transaction("tx-2", "01/2024", "1200.00 EUR", "pagamento", 5),
		))
	}
	a, b := build(), build()
	if len(a) != 1 || len(b) != 1 || a[0].IssueID != b[0].IssueID {
		t.Fatalf("issue ids must be stable: %+v vs %+v", a, b)
	}
}
