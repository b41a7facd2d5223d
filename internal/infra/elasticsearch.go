package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/stakehouse/platform/internal/domain"
)

const auditMapping = `{
	"mappings": {
		"properties": {
			"seq":           { "type": "long" },
			"eventId":       { "type": "keyword" },
			"aggregateType": { "type": "keyword" },
			"aggregateId":   { "type": "keyword" },
			"eventType":     { "type": "keyword" },
			"partitionKey":  { "type": "keyword" },
			"occurredAt":    { "type": "date" },
			"payload":       { "type": "object", "enabled": false }
		}
	}
}`

// ElasticsearchSink indexes every outbox record into an audit index. The
// document id is the event id, so replays overwrite instead of duplicating.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

// NewElasticsearchSink connects to url and creates index if it is missing.
func NewElasticsearchSink(ctx context.Context, url, index string) (*ElasticsearchSink, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	s := &ElasticsearchSink{client: client, index: index}
	if err := s.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ElasticsearchSink) ensureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{s.index}}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("check audit index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		return nil
	}

	req := esapi.IndicesCreateRequest{
		Index: s.index,
		Body:  bytes.NewReader([]byte(auditMapping)),
	}
	res, err = req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("create audit index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create audit index: %s", res.String())
	}
	return nil
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Publish(ctx context.Context, records []domain.OutboxRecord) error {
	for _, r := range records {
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode outbox event %s: %w", r.EventID, err)
		}
		req := esapi.IndexRequest{
			Index:      s.index,
			DocumentID: r.EventID.String(),
			Body:       bytes.NewReader(body),
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return fmt.Errorf("index %s: %w", r.EventID, err)
		}
		if res.IsError() {
			msg := res.String()
			res.Body.Close()
			return fmt.Errorf("index %s: %s", r.EventID, msg)
		}
		res.Body.Close()
	}
	return nil
}
