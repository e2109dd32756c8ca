package main

import (
	"context"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/check-recon/internal/store"
	sfpkg "github.com/sells-group/check-recon/pkg/salesforce"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "sqlite":
		dsn := cfg.Store.Path
		if dsn == "" {
			dsn = "check-recon.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initSalesforce opens a JWT bearer-flow session with the credentials under
// invoices.salesforce. One session serves both the invoice source and the
// mark-paid sink.
func initSalesforce() (sfpkg.Client, error) {
	sfCfg := cfg.Invoice.Salesforce
	if sfCfg.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (invoices.salesforce.client_id)")
	}

	pemData, err := os.ReadFile(sfCfg.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         sfCfg.Domain,
		Username:       sfCfg.Username,
		ConsumerKey:    sfCfg.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}
