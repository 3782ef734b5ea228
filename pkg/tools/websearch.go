package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SearchResult is a single ranked result snippet.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// WebSearch queries the Tavily search API.
type WebSearch struct {
	APIKey     string
	BaseURL    string
	Depth      string
	MaxResults int
	Client     *http.Client
}

func NewWebSearch(apiKey string) *WebSearch {
	return &WebSearch{
		APIKey:     apiKey,
		BaseURL:    "https://api.tavily.com",
		Depth:      "advanced",
		MaxResults: 5,
		Client:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Spec declares the tool for the model.
func (w *WebSearch) Spec() Spec {
	return Spec{
		Name:        "web_search",
		Description: "Search the web for recent and relevant public information on a topic. Returns ranked result snippets as JSON.",
		Params: []Param{
			{Name: "query", Type: TypeString, Required: true, Description: "A natural language question or topic for the search engine."},
		},
	}
}

// Handle runs a search and renders the results as a JSON snippet list.
func (w *WebSearch) Handle(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", errors.New("web_search: empty query")
	}
	results, err := w.search(ctx, query)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(map[string]any{"results": results})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (w *WebSearch) search(ctx context.Context, query string) ([]SearchResult, error) {
	if strings.TrimSpace(w.APIKey) == "" {
		return nil, errors.New("web_search: API key is missing")
	}
	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"api_key":      w.APIKey,
		"search_depth": w.depth(),
		"max_results":  w.maxResults(),
	})
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	delay := 1 * time.Second
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL()+"/search", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = w.client().Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		// Back off and retry on 429, doubling the delay each time up to 30 s.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web_search: http %d", resp.StatusCode)
	}

	var response struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}
	if len(response.Results) > w.maxResults() {
		response.Results = response.Results[:w.maxResults()]
	}
	return response.Results, nil
}

func (w *WebSearch) baseURL() string {
	if w.BaseURL != "" {
		return w.BaseURL
	}
	return "https://api.tavily.com"
}

func (w *WebSearch) depth() string {
	if w.Depth != "" {
		return w.Depth
	}
	return "basic"
}

func (w *WebSearch) maxResults() int {
	if w.MaxResults > 0 {
		return w.MaxResults
	}
	return 5
}

func (w *WebSearch) client() *http.Client {
	if w.Client != nil {
		return w.Client
	}
	return http.DefaultClient
}
