package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jwebster45206/infinite-story/pkg/narrative"
	"github.com/jwebster45206/infinite-story/pkg/story"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type sessionInfo struct {
	SessionID string             `json:"session_id"`
	Context   *narrative.Summary `json:"context"`
}

type segmentResult struct {
	Segment story.Segment     `json:"segment"`
	Context narrative.Summary `json:"context"`
}

type contextResponse struct {
	Context narrative.Summary `json:"context"`
}

type fullStoryResponse struct {
	Story string `json:"story"`
}

// apiClient talks to the story API on behalf of one session.
type apiClient struct {
	http      *http.Client
	baseURL   string
	sessionID string
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/api/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func (c *apiClient) createSession() (*sessionInfo, error) {
	var info sessionInfo
	if err := c.do(http.MethodPost, "/api/session", nil, http.StatusCreated, &info); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	c.sessionID = info.SessionID
	return &info, nil
}

func (c *apiClient) startStory() (*segmentResult, error) {
	var result segmentResult
	body := map[string]string{"session_id": c.sessionID}
	if err := c.do(http.MethodPost, "/api/story/start", body, http.StatusOK, &result); err != nil {
		return nil, fmt.Errorf("failed to start story: %w", err)
	}
	return &result, nil
}

func (c *apiClient) continueStory(in *narrative.Interaction) (*segmentResult, error) {
	var result segmentResult
	body := map[string]any{"session_id": c.sessionID}
	if in != nil {
		body["interaction"] = in
	}
	if err := c.do(http.MethodPost, "/api/story/continue", body, http.StatusOK, &result); err != nil {
		return nil, fmt.Errorf("failed to continue story: %w", err)
	}
	return &result, nil
}

func (c *apiClient) setGenre(genre narrative.Genre) (*narrative.Summary, error) {
	var resp contextResponse
	body := map[string]string{"session_id": c.sessionID, "genre": string(genre)}
	if err := c.do(http.MethodPost, "/api/story/genre", body, http.StatusOK, &resp); err != nil {
		return nil, fmt.Errorf("failed to set genre: %w", err)
	}
	return &resp.Context, nil
}

func (c *apiClient) fullStory() (string, error) {
	var resp fullStoryResponse
	if err := c.do(http.MethodGet, "/api/story/"+c.sessionID+"/full", nil, http.StatusOK, &resp); err != nil {
		return "", fmt.Errorf("failed to load story: %w", err)
	}
	return resp.Story, nil
}

func (c *apiClient) do(method, path string, reqBody any, wantStatus int, out any) error {
	var body io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		var errorResp ErrorResponse
		if err := json.Unmarshal(data, &errorResp); err != nil || errorResp.Error == "" {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(data))
		}
		return fmt.Errorf("%s", errorResp.Error)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
