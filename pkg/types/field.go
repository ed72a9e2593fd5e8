package types

// FieldType tags an extracted field with the validation class used to
// normalize and score it.
type FieldType string

const (
	FieldPhone      FieldType = "phone"
	FieldDate       FieldType = "date"
	FieldAmount     FieldType = "amount"
	FieldFiscalCode FieldType = "fiscal_code"
	FieldIBAN       FieldType = "iban"
	FieldVAT        FieldType = "vat"
	FieldEmail      FieldType = "email"
	FieldCode       FieldType = "code"
	FieldText       FieldType = "text"
)

// RecordType labels the business shape of an extracted record.
type RecordType string

const (
	RecordCustomer    RecordType = "customer"
	RecordPolicy      RecordType = "policy"
	RecordTransaction RecordType = "transaction"
	RecordTicket      RecordType = "ticket"
)

// SourceRef points back into the source document a value was extracted from.
type SourceRef struct {
	Page    int    `json:"page"`
	Section string `json:"section,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// RawField is an unvalidated value as produced by the extraction collaborator.
type RawField struct {
	Name   string    `json:"name"`
	Value  string    `json:"value"`
	Source SourceRef `json:"source"`
}

// ExtractedRecord groups the raw fields extracted for one logical record.
type ExtractedRecord struct {
	RecordID   string     `json:"record_id"`
	RecordType RecordType `json:"record_type"`
	Fields     []RawField `json:"fields"`
}

type SubmissionSource struct {
	Kind      string `json:"kind"`
	Document  string `json:"document"`
	Extractor string `json:"extractor,omitempty"`
	Batch     string `json:"batch,omitempty"`
}

// Submission is one extraction bundle handed to the engine. SubmissionID is
// content-addressed over source and records, so resubmitting identical input
// maps onto the same review run.
type Submission struct {
	Schema       string            `json:"schema"`
	SubmissionID string            `json:"submission_id"`
	Source       SubmissionSource  `json:"source"`
	Records      []ExtractedRecord `json:"records"`
}
