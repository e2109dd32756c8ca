package notion

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// StatusNeedsReview is the queue status applied to pages for checks that
// could not be matched automatically.
const StatusNeedsReview = "Needs Review"

// ReviewEntry is one unmatched check queued for manual review. Image is the
// source scan's file name and doubles as the queue's dedupe key.
type ReviewEntry struct {
	Image       string
	CheckNumber string
	Payee       string
	Amount      string
	Date        string
	Confidence  float64
	BestScore   float64
	BestInvoice string
	Reason      string
}

// Title returns the page title: the check number when one was read, the
// image name otherwise.
func (e ReviewEntry) Title() string {
	if e.CheckNumber != "" {
		return "Check " + e.CheckNumber
	}
	return e.Image
}

// UpsertReviewPage creates a review page for the entry, or refreshes the
// existing page carrying the same image name so reruns do not stack
// duplicates. Returns the created or updated page.
func UpsertReviewPage(ctx context.Context, c Client, dbID string, entry ReviewEntry) (*notionapi.Page, error) {
	existing, err := findReviewPage(ctx, c, dbID, entry.Image)
	if err != nil {
		return nil, err
	}

	props := buildReviewProperties(entry)

	if existing != nil {
		page, err := c.UpdatePage(ctx, string(existing.ID), &notionapi.PageUpdateRequest{
			Properties: props,
		})
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("notion: refresh review page for %s", entry.Image))
		}
		return page, nil
	}

	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	})
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("notion: create review page for %s", entry.Image))
	}
	return page, nil
}

// findReviewPage looks up the review page for an image name. Returns nil
// when the queue has none.
func findReviewPage(ctx context.Context, c Client, dbID, image string) (*notionapi.Page, error) {
	if image == "" {
		return nil, nil
	}

	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Image",
			RichText: &notionapi.TextFilterCondition{
				Equals: image,
			},
		},
		PageSize: 1,
	})
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("notion: find review page for %s", image))
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

// QueryOpenReviews fetches all pages still awaiting review.
func QueryOpenReviews(ctx context.Context, c Client, dbID string) ([]notionapi.Page, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status: &notionapi.StatusFilterCondition{
				Equals: StatusNeedsReview,
			},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query open reviews")
	}
	return pages, nil
}

// buildReviewProperties converts an entry into page properties. Field reads
// are stored as rich_text exactly as extracted; scores are numbers.
func buildReviewProperties(entry ReviewEntry) notionapi.Properties {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: entry.Title()}},
			},
		},
		"Status": notionapi.StatusProperty{
			Status: notionapi.Status{
				Name: StatusNeedsReview,
			},
		},
		"Confidence": notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: entry.Confidence,
		},
		"Best Score": notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: entry.BestScore,
		},
	}

	text := map[string]string{
		"Image":        entry.Image,
		"Check Number": entry.CheckNumber,
		"Payee":        entry.Payee,
		"Amount":       entry.Amount,
		"Date":         entry.Date,
		"Best Invoice": entry.BestInvoice,
		"Reason":       entry.Reason,
	}
	for k, v := range text {
		if v == "" {
			continue
		}
		props[k] = notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}},
			},
		}
	}

	return props
}
