package sink

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/check-recon/internal/model"
)

type fakeNotionClient struct {
	queryFn  func(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	createFn func(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	updateFn func(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

func (f *fakeNotionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if f.queryFn != nil {
		return f.queryFn(ctx, dbID, req)
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func (f *fakeNotionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return &notionapi.Page{ID: "page-1"}, nil
}

func (f *fakeNotionClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, pageID, req)
	}
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func richText(props notionapi.Properties, key string) string {
	rp, ok := props[key].(notionapi.RichTextProperty)
	if !ok || len(rp.RichText) == 0 {
		return ""
	}
	return rp.RichText[0].Text.Content
}

func TestNotionSinkPublish(t *testing.T) {
	var created []*notionapi.PageCreateRequest
	client := &fakeNotionClient{
		createFn: func(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
			created = append(created, req)
			return &notionapi.Page{ID: "page-1"}, nil
		},
	}
	s := NewNotionSink(client, "db-review")

	results := []model.MatchResult{matchedResult(), unmatchedResult()}
	err := s.Publish(context.Background(), runFixture(), results)
	require.NoError(t, err)

	// Only the unmatched check lands in the review queue.
	require.Len(t, created, 1)
	req := created[0]
	assert.Equal(t, notionapi.DatabaseID("db-review"), req.Parent.DatabaseID)
	assert.Equal(t, "check_0002.png", richText(req.Properties, "Image"))
	assert.Equal(t, "$950.25", richText(req.Properties, "Amount"))
	assert.Equal(t, "best candidate scored 0.41", richText(req.Properties, "Reason"))
}

func TestNotionSinkPublish_RefreshesExisting(t *testing.T) {
	var updatedPage string
	client := &fakeNotionClient{
		queryFn: func(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{
				Results: []notionapi.Page{{ID: "page-9"}},
			}, nil
		},
		createFn: func(context.Context, *notionapi.PageCreateRequest) (*notionapi.Page, error) {
			t.Fatal("expected refresh, not create")
			return nil, nil
		},
		updateFn: func(_ context.Context, pageID string, _ *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
			updatedPage = pageID
			return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
		},
	}
	s := NewNotionSink(client, "db-review")

	err := s.Publish(context.Background(), runFixture(), []model.MatchResult{unmatchedResult()})
	require.NoError(t, err)
	assert.Equal(t, "page-9", updatedPage)
}

func TestNotionSinkPublish_PartialFailure(t *testing.T) {
	second := unmatchedResult()
	second.Check.Source = "check_0009.png"

	var created []string
	client := &fakeNotionClient{
		createFn: func(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
			image := richText(req.Properties, "Image")
			if image == "check_0002.png" {
				return nil, eris.New("validation_error")
			}
			created = append(created, image)
			return &notionapi.Page{ID: "page-1"}, nil
		},
	}
	s := NewNotionSink(client, "db-review")

	err := s.Publish(context.Background(), runFixture(), []model.MatchResult{unmatchedResult(), second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 review pages failed")
	assert.Contains(t, err.Error(), "check_0002.png")
	assert.Equal(t, []string{"check_0009.png"}, created, "later checks still queue after a failure")
}

func TestNotionSinkPublish_AllMatched(t *testing.T) {
	client := &fakeNotionClient{
		queryFn: func(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			t.Fatal("no lookup expected")
			return nil, nil
		},
	}
	s := NewNotionSink(client, "db-review")

	err := s.Publish(context.Background(), runFixture(), []model.MatchResult{matchedResult()})
	require.NoError(t, err)
}
