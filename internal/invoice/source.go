// Package invoice lists outstanding billing records from the configured
// system of record so the match engine has candidates to claim.
package invoice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/pkg/knack"
	"github.com/sells-group/check-recon/pkg/salesforce"
)

// Provider names accepted in config.
const (
	ProviderKnack      = "knack"
	ProviderSalesforce = "salesforce"
	ProviderFile       = "file"
)

// Source lists the outstanding invoices a reconciliation run matches
// against. Implementations are read-only; writing outcomes back is the
// sinks' job.
type Source interface {
	List(ctx context.Context) ([]model.InvoiceRecord, error)
}

// Config selects and tunes the invoice source.
type Config struct {
	// Provider is "knack", "salesforce", or "file".
	Provider string `yaml:"provider" mapstructure:"provider"`

	Knack      KnackConfig      `yaml:"knack" mapstructure:"knack"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	File       FileConfig       `yaml:"file" mapstructure:"file"`
}

// KnackConfig points the source at a Knack application's billing object.
type KnackConfig struct {
	AppID string `yaml:"app_id" mapstructure:"app_id"`

	// APIKey comes from the environment, never from config files.
	APIKey string `yaml:"-" mapstructure:"-"`

	// BaseURL overrides the public Knack API endpoint.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	BillingObject string  `yaml:"billing_object" mapstructure:"billing_object"`
	RowsPerPage   int     `yaml:"rows_per_page" mapstructure:"rows_per_page"`
	RPS           float64 `yaml:"rps" mapstructure:"rps"`

	Fields KnackFields `yaml:"fields" mapstructure:"fields"`

	// Filters select the billing records still open for matching. Empty
	// means the default unpaid-approved rule set.
	Filters []knack.Rule `yaml:"filters" mapstructure:"filters"`

	// PaidFlags are the yes/no fields the knack sink flips to "Yes" when a
	// billing is matched and paid.
	PaidFlags []string `yaml:"paid_flags" mapstructure:"paid_flags"`
}

// KnackFields names the fields the billing object stores invoice data in.
// The raw variants ("<field>_raw") are derived, never configured.
type KnackFields struct {
	Amount        string `yaml:"amount" mapstructure:"amount"`
	Payee         string `yaml:"payee" mapstructure:"payee"`
	Date          string `yaml:"date" mapstructure:"date"`
	InvoiceNumber string `yaml:"invoice_number" mapstructure:"invoice_number"`
}

// SalesforceConfig points the source at a billing SObject. The credential
// fields feed the session the caller opens; the source itself only needs
// the object name and optional extra filter.
type SalesforceConfig struct {
	Domain   string `yaml:"domain" mapstructure:"domain"`
	Username string `yaml:"username" mapstructure:"username"`
	ClientID string `yaml:"client_id" mapstructure:"client_id"`

	// KeyPath is the JWT bearer-flow private key file.
	KeyPath string `yaml:"key_path" mapstructure:"key_path"`

	BillingObject string `yaml:"billing_object" mapstructure:"billing_object"`

	// ExtraWhere narrows the open-billing query, e.g. to one community.
	ExtraWhere string `yaml:"extra_where" mapstructure:"extra_where"`
}

// FileConfig reads invoices from a local JSON fixture.
type FileConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// DefaultConfig returns the invoice-source defaults: the production Knack
// billing object and its field layout.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderKnack,
		Knack: KnackConfig{
			BillingObject: "object_108",
			Fields: KnackFields{
				Amount:        "field_1411",
				Payee:         "field_1350",
				Date:          "field_1351",
				InvoiceNumber: "field_1418",
			},
			Filters:   DefaultKnackFilters(),
			PaidFlags: []string{"field_2389", "field_2379"},
		},
		Salesforce: SalesforceConfig{
			BillingObject: "Billing__c",
		},
	}
}

// DefaultKnackFilters selects approved billings that are unpaid, not
// written off, not deleted, and not matched by a prior run.
func DefaultKnackFilters() []knack.Rule {
	return []knack.Rule{
		{Field: "field_1440", Operator: "is", Value: "Yes"}, // billing approved
		{Field: "field_2389", Operator: "is", Value: "No"},  // paid in full
		{Field: "field_2968", Operator: "is", Value: "No"},  // write off
		{Field: "field_1751", Operator: "is", Value: "No"},  // delete billing
		{Field: "field_2379", Operator: "is", Value: "No"},  // matched
	}
}

// Validate checks the invoice-source configuration.
func (c Config) Validate() error {
	var errs []string

	switch c.Provider {
	case "", ProviderKnack, ProviderSalesforce, ProviderFile:
	default:
		errs = append(errs, fmt.Sprintf("provider must be %q, %q, or %q, got %q",
			ProviderKnack, ProviderSalesforce, ProviderFile, c.Provider))
	}
	if c.Knack.RowsPerPage < 0 {
		errs = append(errs, "knack rows_per_page must not be negative")
	}
	if c.Knack.RPS < 0 {
		errs = append(errs, "knack rps must not be negative")
	}

	if len(errs) > 0 {
		return eris.Errorf("invoice: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NewSource builds the configured invoice source. The salesforce provider
// requires the session the caller opened; the other providers build their
// own clients.
func NewSource(cfg Config, sf salesforce.Client) (Source, error) {
	switch cfg.Provider {
	case "", ProviderKnack:
		if cfg.Knack.AppID == "" || cfg.Knack.APIKey == "" {
			return nil, eris.New("invoice: knack app ID and API key are not set")
		}
		var opts []knack.Option
		if cfg.Knack.BaseURL != "" {
			opts = append(opts, knack.WithBaseURL(cfg.Knack.BaseURL))
		}
		if cfg.Knack.RowsPerPage > 0 {
			opts = append(opts, knack.WithRowsPerPage(cfg.Knack.RowsPerPage))
		}
		if cfg.Knack.RPS > 0 {
			opts = append(opts, knack.WithRateLimit(cfg.Knack.RPS))
		}
		return NewKnackSource(knack.NewClient(cfg.Knack.AppID, cfg.Knack.APIKey, opts...), cfg.Knack), nil
	case ProviderSalesforce:
		if sf == nil {
			return nil, eris.New("invoice: salesforce session is required")
		}
		return NewSalesforceSource(sf, cfg.Salesforce), nil
	case ProviderFile:
		if cfg.File.Path == "" {
			return nil, eris.New("invoice: file path is not set")
		}
		return NewFileSource(cfg.File.Path), nil
	default:
		return nil, eris.Errorf("invoice: unknown provider %q", cfg.Provider)
	}
}
