package pack

import (
	"archive/zip"
	"bytes"
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/dverna/verita/internal/ledger"
)

type testSigner struct {
	keyID string
	priv  ed25519.PrivateKey
}

func (s testSigner) KeyID() string {
	return s.keyID
}

func (s testSigner) SignEd25519(message []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, message), nil
}

func testInput(t *testing.T) Input {
	t.Helper()

	seed := make([]byte, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)

	receipt, err := ledger.MakeReviewReceipt(ledger.MakeReceiptInput{
		CreatedAt:      "2025-08-20T16:34:14Z",
		Event:          ledger.EventSubmitted,
		RunID:          "sha256:run",
		SubmissionID:   "sha256:sub",
		ReportID:       "sha256:rep",
		PolicyID:       "verita-default",
		PolicyVersion:  "2025-08-01",
		PolicyHash:     "sha256:policy",
		Recommendation: "REVIEW_REQUIRED",
		Issues:         ledger.IssueCounts{Total: 1, Open: 1, DecisionRequired: 1},
	}, testSigner{keyID: "test", priv: priv})
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}

	return Input{
		RunID:      "sha256:run",
		Report:     []byte(`{"report_id":"sha256:rep"}`),
		Submission: []byte(`{"records":[]}`),
		Receipt:    receipt,
		Decisions: []DecisionView{
			{DecisionID: "sha256:dec", IssueID: "sha256:issue", Resolution: "accepted", ResolvedValue: "+393331234567", Reviewer: "ana", CreatedAt: "2025-08-21T09:00:00Z"},
		},
		Policy: []byte("policy_id: verita-default\n"),
	}
}

func TestBuildZipIncludesArtifacts(t *testing.T) {
	zipBytes, err := BuildZip(testInput(t), "http://localhost:8080")
	if err != nil {
		t.Fatalf("build zip: %v", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		t.Fatalf("zip reader: %v", err)
	}

	expected := map[string]bool{
		"report.json":     false,
		"submission.json": false,
		"receipt.json":    false,
		"decisions.json":  false,
		"policy.yaml":     false,
		"manifest.json":   false,
		"sha256sums.txt":  false,
	}

	for _, file := range reader.File {
		if _, ok := expected[file.Name]; ok {
			expected[file.Name] = true
		}
	}

	for name, seen := range expected {
		if !seen {
			t.Fatalf("missing %s", name)
		}
	}
}

func TestBuildZipDeterministic(t *testing.T) {
	in := testInput(t)

	first, err := BuildZip(in, "http://localhost:8080")
	if err != nil {
		t.Fatalf("build zip: %v", err)
	}
	second, err := BuildZip(in, "http://localhost:8080")
	if err != nil {
		t.Fatalf("build zip again: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("same input should produce identical archives")
	}
}

func TestBuildFilesChecksumsAndManifest(t *testing.T) {
	files, err := BuildFiles(testInput(t), "https://verita.example.com")
	if err != nil {
		t.Fatalf("build files: %v", err)
	}

	sums := string(files["sha256sums.txt"])
	for name := range files {
		if name == "sha256sums.txt" {
			continue
		}
		if !strings.Contains(sums, "  "+name+"\n") {
			t.Fatalf("sha256sums missing %s:\n%s", name, sums)
		}
	}

	manifest := string(files["manifest.json"])
	if !strings.Contains(manifest, ManifestSchema) {
		t.Fatalf("manifest missing schema: %s", manifest)
	}
	if !strings.Contains(manifest, "https://verita.example.com/v1/verify/") {
		t.Fatalf("manifest missing verify url: %s", manifest)
	}

	// Stored bodies are packed verbatim.
	if string(files["report.json"]) != `{"report_id":"sha256:rep"}` {
		t.Fatalf("report body re-encoded: %s", files["report.json"])
	}
}

func TestBuildFilesRequiresPolicy(t *testing.T) {
	in := testInput(t)
	in.Policy = nil
	if _, err := BuildFiles(in, ""); err == nil {
		t.Fatalf("expected error for missing policy")
	}
}

func TestWriteZip(t *testing.T) {
	files := map[string][]byte{
		"a.txt": []byte("alpha"),
		"b.txt": []byte("bravo"),
	}
	buf := bytes.NewBuffer(nil)
	if err := WriteZip(buf, files); err != nil {
		t.Fatalf("write zip: %v", err)
	}
	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip reader: %v", err)
	}
	if len(reader.File) != 2 {
		t.Fatalf("expected 2 files, got %d", len(reader.File))
	}
}
