//go:build e2e

package e2e

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/dverna/verita/internal/api"
	"github.com/dverna/verita/internal/auth"
	"github.com/dverna/verita/internal/policy"
)

const bundle = `{
  "schema": "verita.submission.v0.1",
  "source": {"kind": "api", "document": "case-77821.pdf", "extractor": "docparse-2.1"},
  "records": [
    {
      "record_id": "cust-1",
      "record_type": "customer",
      "fields": [
        {"name": "nome", "value": "Mario", "source": {"page": 1}},
        {"name": "cognome", "value": "Rossi", "source": {"page": 1}},
        {"name": "codice_fiscale", "value": "RSSMRA85T10A562S", "source": {"page": 1}},
        {"name": "email", "value": "mario.rossi@gmail", "source": {"page": 2}},
        {"name": "telefono", "value": "+39 333 1234567", "source": {"page": 2}}
      ]
    }
  ]
}`

type submitResult struct {
	RunID          string `json:"run_id"`
	ReceiptID      string `json:"receipt_id"`
	Recommendation string `json:"recommendation"`
}

type runStatus struct {
	Recommendation string `json:"recommendation"`
	OpenIssues     int    `json:"open_issues"`
	Issues         []struct {
		IssueID          string `json:"issue_id"`
		State            string `json:"state"`
		DecisionRequired bool   `json:"decision_required"`
	} `json:"issues"`
	Decisions []struct {
		DecisionID string `json:"decision_id"`
		Resolution string `json:"resolution"`
	} `json:"decisions"`
}

func TestE2EReviewDecideVerifyPack(t *testing.T) {
	os.Setenv("VERITA_API_TOKEN", "test-token")
	defer os.Unsetenv("VERITA_API_TOKEN")

	loaded, err := policy.Load("../../policies/verita.yaml")
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	service, err := api.NewDevService(loaded)
	if err != nil {
		t.Fatalf("review service: %v", err)
	}

	router := api.NewRouter(&api.Handler{
		Auth:    auth.NewAuthenticatorFromEnv(),
		Service: service,
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	first := submit(t, srv.URL)
	second := submit(t, srv.URL)
	if first.RunID != second.RunID || first.ReceiptID != second.ReceiptID {
		t.Fatalf("expected idempotent run, got %+v vs %+v", first, second)
	}
	if first.Recommendation != "REVIEW_REQUIRED" {
		t.Fatalf("expected REVIEW_REQUIRED, got %s", first.Recommendation)
	}

	status := getRun(t, srv.URL, first.RunID)
	var decisions []map[string]string
	for _, issue := range status.Issues {
		if issue.DecisionRequired && issue.State != "resolved" {
			decisions = append(decisions, map[string]string{
				"issue_id":       issue.IssueID,
				"resolution":     "accepted",
				"resolved_value": "mario.rossi@gmail.com",
			})
		}
	}
	if len(decisions) == 0 {
		t.Fatalf("expected decision-required issues, got %+v", status.Issues)
	}

	applied := decide(t, srv.URL, first.RunID, decisions)
	if applied.Recommendation != "APPROVE" {
		t.Fatalf("expected APPROVE after decisions, got %s", applied.Recommendation)
	}
	if applied.SupersedesReceiptID != first.ReceiptID {
		t.Fatalf("expected superseded receipt %s, got %s", first.ReceiptID, applied.SupersedesReceiptID)
	}

	verify(t, srv.URL, first.ReceiptID)
	verify(t, srv.URL, applied.ReceiptID)

	after := getRun(t, srv.URL, first.RunID)
	if after.Recommendation != "APPROVE" || after.OpenIssues != 0 {
		t.Fatalf("expected settled run, got %+v", after)
	}
	if len(after.Decisions) != len(decisions) {
		t.Fatalf("expected %d decisions, got %d", len(decisions), len(after.Decisions))
	}

	pack(t, srv.URL, first.RunID)
}

func submit(t *testing.T, baseURL string) submitResult {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/reviews", bytes.NewBufferString(bundle))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status: %d", res.StatusCode)
	}

	var payload submitResult
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.RunID == "" || payload.ReceiptID == "" {
		t.Fatalf("missing ids: %+v", payload)
	}
	return payload
}

func getRun(t *testing.T, baseURL, runID string) runStatus {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/v1/reviews/"+runID, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-token")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("get run status: %d", res.StatusCode)
	}

	var payload runStatus
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return payload
}

type decideResult struct {
	ReceiptID           string `json:"receipt_id"`
	SupersedesReceiptID string `json:"supersedes_receipt_id"`
	Recommendation      string `json:"recommendation"`
	Applied             int    `json:"applied"`
}

func decide(t *testing.T, baseURL, runID string, decisions []map[string]string) decideResult {
	t.Helper()

	body, err := json.Marshal(map[string]any{"reviewer": "ana", "decisions": decisions})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/reviews/"+runID+"/decisions", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("decide status: %d", res.StatusCode)
	}

	var payload decideResult
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Applied != len(decisions) {
		t.Fatalf("expected %d applied, got %d", len(decisions), payload.Applied)
	}
	return payload
}

func verify(t *testing.T, baseURL, receiptID string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/v1/verify/"+receiptID, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-token")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify status: %d", res.StatusCode)
	}

	var payload struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.Valid {
		t.Fatalf("expected valid receipt %s", receiptID)
	}
}

func pack(t *testing.T, baseURL, runID string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/v1/pack/"+runID, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-token")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("pack status: %d", res.StatusCode)
	}

	zipBytes, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}

	want := map[string]bool{
		"report.json":     false,
		"submission.json": false,
		"receipt.json":    false,
		"decisions.json":  false,
		"policy.yaml":     false,
		"manifest.json":   false,
		"sha256sums.txt":  false,
	}
	for _, f := range reader.File {
		if _, ok := want[f.Name]; ok {
			want[f.Name] = true
		}
	}
	for name, ok := range want {
		if !ok {
			t.Fatalf("missing %s", name)
		}
	}
}
