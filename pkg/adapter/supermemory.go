package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/interfaces"
	"github.com/m-mizutani/kioku/pkg/model"
)

const DefaultSupermemoryBaseURL = "https://api.supermemory.ai"

// Supermemory is a client of the hosted Supermemory v3 API
type Supermemory struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ interfaces.MemoryClient = (*Supermemory)(nil)

type SupermemoryOption func(*Supermemory)

// WithSupermemoryBaseURL overrides the API endpoint
func WithSupermemoryBaseURL(baseURL string) SupermemoryOption {
	return func(s *Supermemory) {
		s.baseURL = baseURL
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(client *http.Client) SupermemoryOption {
	return func(s *Supermemory) {
		s.httpClient = client
	}
}

// NewSupermemory creates a new Supermemory API client
func NewSupermemory(apiKey string, opts ...SupermemoryOption) *Supermemory {
	s := &Supermemory{
		apiKey:  apiKey,
		baseURL: DefaultSupermemoryBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type smMemory struct {
	ID            string    `json:"id"`
	Content       string    `json:"content"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary"`
	Status        string    `json:"status"`
	ContainerTags []string  `json:"containerTags"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (m *smMemory) toModel() *model.Memory {
	return &model.Memory{
		ID:            model.MemoryID(m.ID),
		Content:       m.Content,
		Title:         m.Title,
		Summary:       m.Summary,
		Status:        m.Status,
		ContainerTags: m.ContainerTags,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

type smListRequest struct {
	ContainerTags []string `json:"containerTags"`
	Limit         int      `json:"limit"`
	Page          int      `json:"page,omitempty"`
}

type smListResponse struct {
	Memories   []*smMemory `json:"memories"`
	Pagination struct {
		CurrentPage int `json:"currentPage"`
		Limit       int `json:"limit"`
		TotalItems  int `json:"totalItems"`
		TotalPages  int `json:"totalPages"`
	} `json:"pagination"`
}

type smAddRequest struct {
	Content       string   `json:"content"`
	ContainerTags []string `json:"containerTags,omitempty"`
}

type smAddResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type smSearchRequest struct {
	Query         string   `json:"q"`
	ContainerTags []string `json:"containerTags"`
}

type smSearchResponse struct {
	Results []struct {
		DocumentID string  `json:"documentId"`
		Title      string  `json:"title"`
		Score      float64 `json:"score"`
		Chunks     []struct {
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"chunks"`
	} `json:"results"`
}

func (s *Supermemory) List(ctx context.Context, tag string, limit int) ([]*model.Memory, error) {
	var resp smListResponse
	req := smListRequest{ContainerTags: []string{tag}, Limit: limit}
	if err := s.do(ctx, http.MethodPost, "/v3/memories/list", req, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to list memories", goerr.V("tag", tag))
	}

	memories := make([]*model.Memory, 0, len(resp.Memories))
	for _, m := range resp.Memories {
		memories = append(memories, m.toModel())
	}
	return memories, nil
}

func (s *Supermemory) Count(ctx context.Context, tag string) (int, error) {
	var resp smListResponse
	req := smListRequest{ContainerTags: []string{tag}, Limit: 1}
	if err := s.do(ctx, http.MethodPost, "/v3/memories/list", req, &resp); err != nil {
		return 0, goerr.Wrap(err, "failed to count memories", goerr.V("tag", tag))
	}
	return resp.Pagination.TotalItems, nil
}

func (s *Supermemory) Add(ctx context.Context, tag string, content string) (model.MemoryID, error) {
	var resp smAddResponse
	req := smAddRequest{Content: content, ContainerTags: []string{tag}}
	if err := s.do(ctx, http.MethodPost, "/v3/memories", req, &resp); err != nil {
		return "", goerr.Wrap(err, "failed to add memory", goerr.V("tag", tag))
	}
	return model.MemoryID(resp.ID), nil
}

func (s *Supermemory) Get(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	var resp smMemory
	if err := s.do(ctx, http.MethodGet, memoryPath(id), nil, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("id", id))
	}
	return resp.toModel(), nil
}

func (s *Supermemory) Update(ctx context.Context, id model.MemoryID, content string) error {
	req := smAddRequest{Content: content}
	if err := s.do(ctx, http.MethodPatch, memoryPath(id), req, nil); err != nil {
		return goerr.Wrap(err, "failed to update memory", goerr.V("id", id))
	}
	return nil
}

func (s *Supermemory) Delete(ctx context.Context, id model.MemoryID) error {
	if err := s.do(ctx, http.MethodDelete, memoryPath(id), nil, nil); err != nil {
		return goerr.Wrap(err, "failed to delete memory", goerr.V("id", id))
	}
	return nil
}

func (s *Supermemory) Search(ctx context.Context, tag string, query string) ([]*model.SearchResult, error) {
	var resp smSearchResponse
	req := smSearchRequest{Query: query, ContainerTags: []string{tag}}
	if err := s.do(ctx, http.MethodPost, "/v3/search", req, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to search memories", goerr.V("tag", tag))
	}

	results := make([]*model.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		result := &model.SearchResult{
			DocumentID: model.MemoryID(r.DocumentID),
			Title:      r.Title,
			Score:      r.Score,
			Chunks:     make([]model.Chunk, 0, len(r.Chunks)),
		}
		for _, c := range r.Chunks {
			result.Chunks = append(result.Chunks, model.Chunk{Content: c.Content, Score: c.Score})
		}
		results = append(results, result)
	}
	return results, nil
}

func memoryPath(id model.MemoryID) string {
	return "/v3/memories/" + url.PathEscape(id.String())
}

// do sends one JSON request. A 404 is reported as model.ErrMemoryNotFound,
// any other non-2xx status as an error carrying status and body.
func (s *Supermemory) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return goerr.Wrap(err, "failed to create request", goerr.V("path", path))
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to send request", goerr.V("method", method), goerr.V("path", path))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return goerr.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode == http.StatusNotFound {
		return goerr.Wrap(model.ErrMemoryNotFound, "supermemory returned not found",
			goerr.V("path", path))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return goerr.New("supermemory returned error status",
			goerr.V("status", strconv.Itoa(resp.StatusCode)),
			goerr.V("path", path),
			goerr.V("body", string(data)))
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return goerr.Wrap(err, "failed to unmarshal response", goerr.V("path", path))
	}
	return nil
}
