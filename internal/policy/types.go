package policy

// Policy controls how extracted records are validated: how fields are
// classified, which fields a record type requires, which fields are
// reconciled across records of the same entity, and when suggestions may be
// auto-applied.
type Policy struct {
	PolicyID      string       `yaml:"policy_id"`
	PolicyVersion string       `yaml:"policy_version"`
	Defaults      Defaults     `yaml:"defaults"`
	Records       []RecordRule `yaml:"records"`
	Rules         []FieldRule  `yaml:"rules"`
	AutoApply     AutoApply    `yaml:"auto_apply"`
}

type Defaults struct {
	CountryCode string             `yaml:"country_code"`
	Currency    string             `yaml:"currency"`
	Thresholds  map[string]float64 `yaml:"thresholds"`
}

// RecordRule describes one record type: fields that must be present, the
// fields that identify the entity the record belongs to, and the fields
// expected to agree across all records of that entity.
type RecordRule struct {
	RecordType string          `yaml:"record_type"`
	Required   []string        `yaml:"required"`
	EntityKeys []EntityKeyRule `yaml:"entity_keys"`
	Reconcile  []string        `yaml:"reconcile"`
}

type EntityKeyRule struct {
	Field string `yaml:"field"`
	Kind  string `yaml:"kind"`
}

// FieldRule assigns a validation class to matching fields. Rules are
// evaluated first-match; unmatched fields are treated as free text.
type FieldRule struct {
	ID     string      `yaml:"id"`
	Match  FieldMatch  `yaml:"match"`
	Effect FieldEffect `yaml:"effect"`
}

type FieldMatch struct {
	RecordType string `yaml:"record_type"`
	Field      string `yaml:"field"`
}

type FieldEffect struct {
	Type      string   `yaml:"type"`
	Threshold *float64 `yaml:"threshold"`
	Decisive  *bool    `yaml:"decisive"`
}

// AutoApply opts the caller into resolving non-blocking issues whose
// suggestion confidence meets the threshold. Off by default: suggestions are
// never applied silently.
type AutoApply struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"`
}
