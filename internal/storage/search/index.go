// Package search indexes notification text in Elasticsearch and resolves
// free-text queries to notification ids. All operations are best-effort from
// the caller's point of view; a failed index never fails a create.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"notifyhub/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

type Index struct {
	client *elasticsearch.Client
	index  string
}

func NewIndex(client *elasticsearch.Client, index string) *Index {
	return &Index{client: client, index: index}
}

type document struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipientId"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Content     string `json:"content"`
}

func (i *Index) Index(ctx context.Context, n *models.Notification) error {
	doc := document{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        n.Type,
		Title:       n.Title,
		Content:     n.Content,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: n.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index document: %s", res.String())
	}
	return nil
}

func (i *Index) Search(ctx context.Context, recipientID, query string, limit int) ([]string, error) {
	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"multi_match": map[string]interface{}{
							"query":  query,
							"fields": []string{"title", "content"},
						},
					},
				},
				"filter": []interface{}{
					map[string]interface{}{
						"term": map[string]interface{}{"recipientId.keyword": recipientID},
					},
				},
			},
		},
		"size":    limit,
		"_source": false,
	}

	body, err := json.Marshal(queryBody)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]string, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (i *Index) Delete(ctx context.Context, notificationID string) error {
	req := esapi.DeleteRequest{
		Index:      i.index,
		DocumentID: notificationID,
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	defer res.Body.Close()

	// A missing document is fine; the notification may never have been
	// indexed.
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete document: %s", res.String())
	}
	return nil
}
