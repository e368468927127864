package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"fleetcmd/internal/types"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

const defaultHistoryIndex = "fleetcmd-executions"

// HistoryIndexer writes terminal execution records into Elasticsearch so
// operators can search the fleet's command history.
type HistoryIndexer struct {
	client *elasticsearch.Client
	index  string
	logger *zap.Logger
}

// NewHistoryIndexer creates an indexer. Returns nil when Elasticsearch is
// not configured.
func NewHistoryIndexer(d *Data, logger *zap.Logger) *HistoryIndexer {
	if d == nil || d.ES == nil {
		return nil
	}

	index := defaultHistoryIndex
	if d.cfg != nil && d.cfg.Elasticsearch != nil && d.cfg.Elasticsearch.Index != "" {
		index = d.cfg.Elasticsearch.Index
	}
	return &HistoryIndexer{client: d.ES, index: index, logger: logger}
}

// Index stores one terminal execution record. The document ID combines
// agent and command ID so re-indexing is idempotent.
func (h *HistoryIndexer) Index(ctx context.Context, exec *types.CommandExecution) error {
	var b strings.Builder
	if err := json.NewEncoder(&b).Encode(exec); err != nil {
		return fmt.Errorf("error encoding execution: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      h.index,
		DocumentID: exec.AgentID + ":" + exec.CommandID,
		Body:       strings.NewReader(b.String()),
	}

	res, err := req.Do(ctx, h.client)
	if err != nil {
		return fmt.Errorf("elasticsearch indexing error: %w", err)
	}
	defer closeResponseBody(res.Body, h.logger)

	if res.IsError() {
		return fmt.Errorf("elasticsearch indexing error: %s", res.Status())
	}
	return nil
}

// SearchResponse represents the hits of an Elasticsearch search query.
type SearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a match query against the resolved command text and returns
// matching execution records.
func (h *HistoryIndexer) Search(ctx context.Context, text string, limit int) ([]*types.CommandExecution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`{"size": %d, "query": {"match": {"command": %q}}, "sort": [{"created_at": {"order": "desc"}}]}`,
		limit, text)

	res, err := h.client.Search(
		h.client.Search.WithContext(ctx),
		h.client.Search.WithIndex(h.index),
		h.client.Search.WithBody(strings.NewReader(query)),
		h.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search error: %w", err)
	}
	defer closeResponseBody(res.Body, h.logger)

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.Status())
	}

	var sr SearchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("error parsing the response body: %w", err)
	}

	executions := make([]*types.CommandExecution, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		var exec types.CommandExecution
		if err := json.Unmarshal(hit.Source, &exec); err != nil {
			h.logger.Warn("Skipping malformed history document",
				zap.String("doc_id", hit.ID),
				zap.Error(err))
			continue
		}
		executions = append(executions, &exec)
	}
	return executions, nil
}

// closeResponseBody is a helper to close esapi response bodies
func closeResponseBody(body io.ReadCloser, logger *zap.Logger) {
	if err := body.Close(); err != nil {
		logger.Warn("Error closing response body", zap.Error(err))
	}
}
