// Package vector upserts article embeddings into Qdrant over its REST API.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"NewsCrawler/internal/config"
	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

// pointNamespace derives stable point ids from article fingerprints.
var pointNamespace = uuid.MustParse("6f1c3e4a-8d2b-5a7e-9c40-1b2d3e4f5a6b")

// QdrantStore implements ports.ArticleStore on a Qdrant collection.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	vectorSize int
	http       *http.Client
	logger     *zap.Logger
}

var (
	_ ports.ArticleStore  = (*QdrantStore)(nil)
	_ ports.ArticlePruner = (*QdrantStore)(nil)
)

// NewQdrantStore builds a store from configuration.
func NewQdrantStore(cfg config.QdrantConfig, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QdrantStore{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		vectorSize: cfg.VectorSize,
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// PointID maps a fingerprint to its UUIDv5 point id.
func PointID(fingerprint string) string {
	return uuid.NewSHA1(pointNamespace, []byte(fingerprint)).String()
}

// EnsureCollection creates the collection with cosine distance when it is missing.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodGet, s.collectionPath(), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.vectorSize,
			"distance": "Cosine",
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionPath(), body, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	s.logger.Info("qdrant collection created",
		zap.String("collection", s.collection),
		zap.Int("vector_size", s.vectorSize))
	return nil
}

// Store upserts the point; the id is derived from the fingerprint, so repeats overwrite.
func (s *QdrantStore) Store(ctx context.Context, record domain.ArticleRecord, vector []float32) error {
	if len(vector) == 0 {
		return errors.New("empty vector")
	}
	if s.vectorSize > 0 && len(vector) != s.vectorSize {
		return fmt.Errorf("vector has %d dimensions, collection expects %d", len(vector), s.vectorSize)
	}

	payload := map[string]any{
		"fingerprint": record.Fingerprint,
		"source":      record.Source,
		"category":    record.Category,
		"url":         record.URL,
		"title":       record.Title,
		"content":     record.Content,
		"tags":        record.Tags,
		"crawled_at":  record.CrawledAt.UTC().Format(time.RFC3339),
	}
	if record.PublishedAt != nil {
		payload["published_at"] = record.PublishedAt.UTC().Format(time.RFC3339)
	}

	body := map[string]any{
		"points": []map[string]any{{
			"id":      PointID(record.Fingerprint),
			"vector":  vector,
			"payload": payload,
		}},
	}

	if _, err := s.do(ctx, http.MethodPut, s.collectionPath()+"/points?wait=true", body, nil); err != nil {
		return fmt.Errorf("upsert point: %w", err)
	}
	return nil
}

// DeleteOlderThan removes points whose crawled_at payload is before cutoff and returns
// how many matched. Qdrant compares RFC 3339 payload strings as datetimes in range filters.
func (s *QdrantStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := map[string]any{
		"must": []map[string]any{{
			"key":   "crawled_at",
			"range": map[string]any{"lt": cutoff.UTC().Format(time.RFC3339)},
		}},
	}

	var counted struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	count := map[string]any{"filter": filter, "exact": true}
	if _, err := s.do(ctx, http.MethodPost, s.collectionPath()+"/points/count", count, &counted); err != nil {
		return 0, fmt.Errorf("count expired points: %w", err)
	}
	if counted.Result.Count == 0 {
		return 0, nil
	}

	if _, err := s.do(ctx, http.MethodPost, s.collectionPath()+"/points/delete?wait=true", map[string]any{"filter": filter}, nil); err != nil {
		return 0, fmt.Errorf("delete expired points: %w", err)
	}
	return counted.Result.Count, nil
}

func (s *QdrantStore) collectionPath() string {
	return "/collections/" + url.PathEscape(s.collection)
}

// do returns the response status alongside any error so callers can branch on 404.
func (s *QdrantStore) do(ctx context.Context, method, path string, payload any, v any) (int, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal payload: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
