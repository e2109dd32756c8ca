package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSFClient creates an sfClient backed by an httptest server.
func newTestSFClient(t *testing.T, handler http.Handler) (Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)

	sf, err := gosf.Init(gosf.Creds{
		AccessToken: "test-token",
		Domain:      ts.URL,
	},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	require.NotNil(t, sf)

	return NewClient(sf), ts
}

func TestSFClient_Query(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/query")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"done":      true,
			"records": []map[string]any{
				{
					"attributes":      map[string]any{"type": "Billing__c"},
					"Id":              "a01xx",
					"Name":            "Andover1001094",
					"Amount__c":       1025.0,
					"Payee__c":        "Mapleton Senior Living",
					"Resident__c":     "Dixie Nespor 275",
					"Invoice_Date__c": "2024-03-01",
				},
			},
		})
	})

	client, ts := newTestSFClient(t, handler)
	defer ts.Close()

	var billings []Billing
	err := client.Query(context.Background(), "SELECT Id, Name FROM Billing__c", &billings)
	require.NoError(t, err)
	require.Len(t, billings, 1)
	assert.Equal(t, "a01xx", billings[0].ID)
	assert.Equal(t, "Andover1001094", billings[0].Name)
	assert.Equal(t, 1025.0, billings[0].Amount)
}

func TestSFClient_Query_Error(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "invalid SOQL", "errorCode": "MALFORMED_QUERY"},
		})
	})

	client, ts := newTestSFClient(t, handler)
	defer ts.Close()

	var billings []Billing
	err := client.Query(context.Background(), "INVALID SOQL", &billings)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sf: query")
}

func TestSFClient_UpdateCollection(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"id": "a01xx", "success": true, "errors": []any{}},
				{"id": "a02xx", "success": true, "errors": []any{}},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	client, ts := newTestSFClient(t, handler)
	defer ts.Close()

	records := []CollectionRecord{
		{ID: "a01xx", Fields: map[string]any{"Paid__c": true}},
		{ID: "a02xx", Fields: map[string]any{"Paid__c": true}},
	}
	results, err := client.UpdateCollection(context.Background(), "Billing__c", records)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.Equal(t, "a01xx", results[0].ID)
}

func TestSFClient_UpdateCollection_Error(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "batch error"},
		})
	})

	client, ts := newTestSFClient(t, handler)
	defer ts.Close()

	records := []CollectionRecord{
		{ID: "a01xx", Fields: map[string]any{"Paid__c": true}},
	}
	_, err := client.UpdateCollection(context.Background(), "Billing__c", records)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sf: update collection")
}

func TestSFClient_DescribeSObject(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// go-salesforce constructs URL as: InstanceUrl + /services/data/vXX.X + uri
		assert.Contains(t, r.URL.Path, "/sobjects/Billing__c/describe")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":  "Billing__c",
			"label": "Billing",
			"fields": []map[string]any{
				{"name": "Id", "label": "Record ID", "type": "id", "length": 18, "updateable": false},
				{"name": "Amount__c", "label": "Amount", "type": "currency", "length": 0, "updateable": true},
			},
		})
	})

	client, ts := newTestSFClient(t, handler)
	defer ts.Close()

	desc, err := client.DescribeSObject(context.Background(), "Billing__c")
	require.NoError(t, err)
	require.NotNil(t, desc)
	assert.Equal(t, "Billing__c", desc.Name)
	assert.Equal(t, "Billing", desc.Label)
	require.Len(t, desc.Fields, 2)
	assert.Equal(t, "Id", desc.Fields[0].Name)
	assert.False(t, desc.Fields[0].Updateable)
	assert.Equal(t, "Amount__c", desc.Fields[1].Name)
	assert.True(t, desc.Fields[1].Updateable)
}

func TestSFClient_DescribeSObject_Error(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "sobject not found", "errorCode": "NOT_FOUND"},
		})
	})

	client, ts := newTestSFClient(t, handler)
	defer ts.Close()

	_, err := client.DescribeSObject(context.Background(), "NonExistent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sf: describe")
}
