// Package pack assembles the zip evidence pack for a review run: the
// canonical report and submission, the latest receipt, applied decisions,
// the policy, a manifest, and a sha256sums index. Packs are deterministic
// for a given run state.
package pack

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/dverna/verita/internal/crypto"
	"github.com/dverna/verita/internal/ledger"
)

const ManifestSchema = "verita.pack.v0.1"

// Input carries the stored artifacts for one run. Report and Submission are
// the canonical bodies as persisted; they are packed verbatim so their
// digests keep matching.
type Input struct {
	RunID      string
	Report     []byte
	Submission []byte
	Receipt    ledger.ReceiptRecord
	Decisions  []DecisionView
	Policy     []byte
}

type DecisionView struct {
	DecisionID    string `json:"decision_id"`
	IssueID       string `json:"issue_id"`
	Resolution    string `json:"resolution"`
	ResolvedValue string `json:"resolved_value,omitempty"`
	Reviewer      string `json:"reviewer,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type Manifest struct {
	Schema    string   `json:"schema"`
	RunID     string   `json:"run_id"`
	ReceiptID string   `json:"receipt_id"`
	Files     []string `json:"files"`
	VerifyURL string   `json:"verify_url,omitempty"`
	PackURL   string   `json:"pack_url,omitempty"`
}

type receiptView struct {
	ReceiptID           string          `json:"receipt_id"`
	RunID               string          `json:"run_id"`
	SupersedesReceiptID *string         `json:"supersedes_receipt_id,omitempty"`
	PolicyHash          string          `json:"policy_hash"`
	Recommendation      string          `json:"recommendation"`
	Body                json.RawMessage `json:"body"`
	BodyDigest          string          `json:"body_digest"`
	KeyID               string          `json:"key_id"`
	Sig                 []byte          `json:"sig"`
	CreatedAt           string          `json:"created_at"`
}

// BuildFiles renders the pack contents keyed by file name.
func BuildFiles(in Input, baseURL string) (map[string][]byte, error) {
	if len(in.Policy) == 0 {
		return nil, fmt.Errorf("missing policy")
	}
	if len(in.Report) == 0 {
		return nil, fmt.Errorf("missing report")
	}
	if len(in.Receipt.BodyJSON) == 0 {
		return nil, fmt.Errorf("missing receipt body")
	}

	files := map[string][]byte{
		"report.json": in.Report,
		"policy.yaml": in.Policy,
	}

	if len(in.Submission) > 0 {
		files["submission.json"] = in.Submission
	}

	receiptBytes, err := json.MarshalIndent(receiptView{
		ReceiptID:           in.Receipt.ReceiptID,
		RunID:               in.Receipt.RunID,
		SupersedesReceiptID: in.Receipt.SupersedesReceiptID,
		PolicyHash:          in.Receipt.PolicyHash,
		Recommendation:      in.Receipt.Recommendation,
		Body:                json.RawMessage(in.Receipt.BodyJSON),
		BodyDigest:          in.Receipt.BodyDigest,
		KeyID:               in.Receipt.KeyID,
		Sig:                 in.Receipt.Sig,
		CreatedAt:           in.Receipt.CreatedAt,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	files["receipt.json"] = receiptBytes

	decisions := in.Decisions
	if decisions == nil {
		decisions = []DecisionView{}
	}
	decisionBytes, err := json.MarshalIndent(decisions, "", "  ")
	if err != nil {
		return nil, err
	}
	files["decisions.json"] = decisionBytes

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	manifest := Manifest{
		Schema:    ManifestSchema,
		RunID:     in.RunID,
		ReceiptID: in.Receipt.ReceiptID,
		Files:     names,
	}
	if baseURL != "" {
		manifest.VerifyURL = baseURL + "/v1/verify/" + in.Receipt.ReceiptID
		manifest.PackURL = baseURL + "/v1/pack/" + in.RunID
	}
	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	files["manifest.json"] = manifestBytes

	files["sha256sums.txt"] = checksums(files)
	return files, nil
}

// WriteZip writes files in name order with zeroed timestamps, so the same
// contents produce the same archive.
func WriteZip(w io.Writer, files map[string][]byte) error {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)
	for _, name := range names {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return err
		}
		if _, err := fw.Write(files[name]); err != nil {
			return err
		}
	}
	return zw.Close()
}

func BuildZip(in Input, baseURL string) ([]byte, error) {
	files, err := BuildFiles(in, baseURL)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(nil)
	if err := WriteZip(buf, files); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func checksums(files map[string][]byte) []byte {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := bytes.NewBuffer(nil)
	for _, name := range names {
		fmt.Fprintf(buf, "%s  %s\n", crypto.DigestHex(files[name]), name)
	}
	return buf.Bytes()
}
