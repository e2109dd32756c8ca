package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Billing represents one receivable record on the configured billing SObject.
// Name carries the invoice number (the object's auto-number field).
type Billing struct {
	ID          string  `json:"Id" salesforce:"Id"`
	Name        string  `json:"Name" salesforce:"Name"`
	Amount      float64 `json:"Amount__c" salesforce:"Amount__c"`
	Payee       string  `json:"Payee__c" salesforce:"Payee__c"`
	Resident    string  `json:"Resident__c" salesforce:"Resident__c"`
	InvoiceDate string  `json:"Invoice_Date__c" salesforce:"Invoice_Date__c"`
}

// billingFields are the SOQL fields selected for billing queries.
var billingFields = []string{
	"Id", "Name", "Amount__c", "Payee__c", "Resident__c", "Invoice_Date__c",
}

// openBillingWhere selects approved billings that have not been paid,
// written off, or matched by a prior run.
const openBillingWhere = "Approved__c = true AND Paid__c = false" +
	" AND Written_Off__c = false AND Matched__c = false"

// FindOpenBillings queries the billing object for records still awaiting
// payment. An optional extra WHERE clause narrows the result further.
func FindOpenBillings(ctx context.Context, c Client, object, extraWhere string) ([]Billing, error) {
	where := openBillingWhere
	if extraWhere != "" {
		where += " AND (" + extraWhere + ")"
	}
	soql := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s",
		strings.Join(billingFields, ", "),
		object,
		where,
	)

	var billings []Billing
	if err := c.Query(ctx, soql, &billings); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find open billings in %s", object))
	}
	return billings, nil
}
