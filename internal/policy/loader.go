package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dverna/verita/internal/crypto"
	"github.com/dverna/verita/pkg/types"
)

type LoadedPolicy struct {
	Policy Policy
	Hash   string
	Bytes  []byte
}

// Load reads a YAML policy and computes its hash from raw bytes.
func Load(path string) (LoadedPolicy, error) {
	// #nosec G304 -- path comes from operator-configured policy path.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedPolicy{}, err
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return LoadedPolicy{}, err
	}
	if err := p.Validate(); err != nil {
		return LoadedPolicy{}, err
	}

	return LoadedPolicy{
		Policy: p,
		Hash:   crypto.DigestWithPrefix(data),
		Bytes:  data,
	}, nil
}

// Default returns the built-in policy for the insurance case-file schema, so
// the engine runs without a policy file on disk.
func Default() LoadedPolicy {
	p := defaultPolicy()
	data, err := yaml.Marshal(p)
	if err != nil {
		// Marshaling a static struct cannot fail.
		panic(err)
	}
	return LoadedPolicy{Policy: p, Hash: crypto.DigestWithPrefix(data), Bytes: data}
}

func (p Policy) Validate() error {
	for class, v := range p.Defaults.Thresholds {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold for %s out of range: %v", class, v)
		}
	}
	for _, rule := range p.Rules {
		if rule.Effect.Type != "" && !validFieldType(rule.Effect.Type) {
			return fmt.Errorf("rule %s: unknown field type %q", rule.ID, rule.Effect.Type)
		}
		if rule.Effect.Threshold != nil && (*rule.Effect.Threshold < 0 || *rule.Effect.Threshold > 1) {
			return fmt.Errorf("rule %s: threshold out of range", rule.ID)
		}
	}
	seen := map[string]bool{}
	for _, rr := range p.Records {
		if rr.RecordType == "" {
			return fmt.Errorf("record rule missing record_type")
		}
		if seen[rr.RecordType] {
			return fmt.Errorf("duplicate record rule for %s", rr.RecordType)
		}
		seen[rr.RecordType] = true
	}
	if p.AutoApply.Threshold < 0 || p.AutoApply.Threshold > 1 {
		return fmt.Errorf("auto_apply.threshold out of range")
	}
	return nil
}

func validFieldType(s string) bool {
	switch types.FieldType(s) {
	case types.FieldPhone, types.FieldDate, types.FieldAmount, types.FieldFiscalCode,
		types.FieldIBAN, types.FieldVAT, types.FieldEmail, types.FieldCode, types.FieldText:
		return true
	default:
		return false
	}
}

func defaultPolicy() Policy {
	return Policy{
		PolicyID:      "verita-default",
		PolicyVersion: "2025-08-01",
		Defaults: Defaults{
			CountryCode: "+39",
			Currency:    "EUR",
			Thresholds: map[string]float64{
				"identity": 0.95,
				"contact":  0.95,
				"date":     0.90,
				"amount":   0.90,
				"text":     0.80,
			},
		},
		Records: []RecordRule{
			{
				RecordType: "customer",
				Required:   []string{"nome", "cognome", "codice_fiscale"},
				EntityKeys: []EntityKeyRule{{Field: "codice_fiscale", Kind: "fiscal_code"}},
				Reconcile:  []string{"nome", "cognome", "email", "telefono"},
			},
			{
				RecordType: "policy",
				Required:   []string{"polizza_numero", "tipo"},
				EntityKeys: []EntityKeyRule{{Field: "polizza_numero", Kind: "policy_number"}},
				Reconcile:  []string{"tipo"},
			},
			{
				RecordType: "transaction",
				Required:   []string{"data", "importo", "tipo"},
				EntityKeys: []EntityKeyRule{{Field: "riferimento_polizza", Kind: "policy_number"}},
				Reconcile:  []string{"data", "importo"},
			},
			{
				RecordType: "ticket",
				Required:   []string{"ticket_id", "stato"},
				EntityKeys: []EntityKeyRule{{Field: "ticket_id", Kind: "ticket"}},
				Reconcile:  []string{"stato"},
			},
		},
		Rules: []FieldRule{
			{ID: "fiscal-code", Match: FieldMatch{Field: "codice_fiscale"}, Effect: FieldEffect{Type: "fiscal_code"}},
			{ID: "vat", Match: FieldMatch{Field: "partita_iva"}, Effect: FieldEffect{Type: "vat"}},
			{ID: "iban", Match: FieldMatch{Field: "iban"}, Effect: FieldEffect{Type: "iban"}},
			{ID: "email", Match: FieldMatch{Field: "email"}, Effect: FieldEffect{Type: "email"}},
			{ID: "phone", Match: FieldMatch{Field: "telefono"}, Effect: FieldEffect{Type: "phone"}},
			{ID: "date", Match: FieldMatch{Field: "data"}, Effect: FieldEffect{Type: "date"}},
			{ID: "date-start", Match: FieldMatch{Field: "data_inizio"}, Effect: FieldEffect{Type: "date"}},
			{ID: "date-end", Match: FieldMatch{Field: "data_fine"}, Effect: FieldEffect{Type: "date"}},
			{ID: "amount", Match: FieldMatch{Field: "importo"}, Effect: FieldEffect{Type: "amount"}},
			{ID: "premium", Match: FieldMatch{Field: "premio"}, Effect: FieldEffect{Type: "amount"}},
			{ID: "policy-number", Match: FieldMatch{Field: "polizza_numero"}, Effect: FieldEffect{Type: "code"}},
			{ID: "policy-ref", Match: FieldMatch{Field: "riferimento_polizza"}, Effect: FieldEffect{Type: "code"}},
			{ID: "ticket-id", Match: FieldMatch{Field: "ticket_id"}, Effect: FieldEffect{Type: "code"}},
		},
		AutoApply: AutoApply{Enabled: false, Threshold: 0.9},
	}
}
