// Package fields defines the extraction profile: which fields the oracle
// is asked to read off a check, the hint text each one gets in the
// prompt, and the alternate key spellings models answer with.
package fields

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/check-recon/internal/model"
)

// Spec describes one extraction field.
type Spec struct {
	Key      model.FieldKey `yaml:"key"`
	Prompt   string         `yaml:"prompt"`
	Synonyms []string       `yaml:"synonyms,omitempty"`
}

// Profile is the ordered set of fields extracted from every check.
type Profile struct {
	Fields []Spec `yaml:"fields"`

	// canonical maps folded key spellings to the canonical field key.
	canonical map[string]model.FieldKey
}

// Default returns the built-in profile covering all eight check fields.
// The synonym lists carry the spellings vision models actually answer
// with when they ignore the requested key names.
func Default() Profile {
	p := Profile{Fields: []Spec{
		{
			Key:      model.FieldCheckNumber,
			Prompt:   "the check number printed in the top right corner",
			Synonyms: []string{"check_no", "check", "number", "chk_no"},
		},
		{
			Key:      model.FieldAmount,
			Prompt:   "the numeric dollar amount in the amount box, e.g. 1,234.56",
			Synonyms: []string{"amt", "total", "dollar_amount", "payment_amount"},
		},
		{
			Key:      model.FieldDate,
			Prompt:   "the date the check was written",
			Synonyms: []string{"check_date", "dated", "date_written"},
		},
		{
			Key:      model.FieldPayee,
			Prompt:   "who the check is made out to, from the pay-to-the-order-of line",
			Synonyms: []string{"pay_to", "pay_to_the_order_of", "paid_to", "payable_to"},
		},
		{
			Key:      model.FieldRemitter,
			Prompt:   "the name of the person who wrote the check, from the printed block in the top left",
			Synonyms: []string{"from", "remitter_name", "payer", "sender", "account_holder", "name"},
		},
		{
			Key:      model.FieldRemitterAddress,
			Prompt:   "the remitter's street address from the top left block",
			Synonyms: []string{"address", "from_address", "payer_address"},
		},
		{
			Key:      model.FieldMemo,
			Prompt:   "the memo line text, if any",
			Synonyms: []string{"memo_line", "note", "for"},
		},
		{
			Key:      model.FieldBankName,
			Prompt:   "the bank name printed on the check",
			Synonyms: []string{"bank", "issuing_bank", "bank_name"},
		},
	}}
	p.buildIndex()
	return p
}

// Load reads a field profile from a YAML file. Fields omitted from the
// file keep their built-in prompt and synonyms, so a site profile only
// has to say what differs.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, eris.Wrapf(err, "fields: read profile %s", path)
	}

	// The YAML has a top-level "fields" key.
	var wrapper struct {
		Fields []Spec `yaml:"fields"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Profile{}, eris.Wrap(err, "fields: parse profile")
	}

	p := Default()
	for _, override := range wrapper.Fields {
		idx := -1
		for i, spec := range p.Fields {
			if spec.Key == override.Key {
				idx = i
				break
			}
		}
		if idx < 0 {
			return Profile{}, eris.Errorf("fields: unknown field key %q in %s", override.Key, path)
		}
		if override.Prompt != "" {
			p.Fields[idx].Prompt = override.Prompt
		}
		if len(override.Synonyms) > 0 {
			p.Fields[idx].Synonyms = append(p.Fields[idx].Synonyms, override.Synonyms...)
		}
	}
	p.buildIndex()
	return p, nil
}

// Canonical resolves a key spelling from a model answer to its canonical
// field key. Matching ignores case, spaces, underscores and dashes.
func (p Profile) Canonical(key string) (model.FieldKey, bool) {
	fk, ok := p.canonical[foldKey(key)]
	return fk, ok
}

// PromptLines renders the field list for injection into an oracle prompt,
// one "key: hint" line per field.
func (p Profile) PromptLines() string {
	var sb strings.Builder
	for _, spec := range p.Fields {
		fmt.Fprintf(&sb, "- %s: %s\n", spec.Key, spec.Prompt)
	}
	return sb.String()
}

// Keys returns the canonical field keys in profile order.
func (p Profile) Keys() []model.FieldKey {
	keys := make([]model.FieldKey, len(p.Fields))
	for i, spec := range p.Fields {
		keys[i] = spec.Key
	}
	return keys
}

func (p *Profile) buildIndex() {
	p.canonical = make(map[string]model.FieldKey)
	for _, spec := range p.Fields {
		p.canonical[foldKey(string(spec.Key))] = spec.Key
		for _, syn := range spec.Synonyms {
			p.canonical[foldKey(syn)] = spec.Key
		}
	}
}

// foldKey reduces a key spelling to lowercase letters and digits so that
// "Check Number", "check_number" and "checkNumber" all collide.
func foldKey(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
