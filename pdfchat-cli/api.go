package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	httpadapter "github.com/satriahrh/cocoa-fruit/pdfchat/adapters/http"
)

type apiClient struct {
	baseURL string
	apiKey  string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

func (a *apiClient) createSession() (httpadapter.CreateSessionResponse, error) {
	var resp httpadapter.CreateSessionResponse

	req, err := http.NewRequest(http.MethodPost, a.baseURL+"/api/v1/sessions", nil)
	if err != nil {
		return resp, fmt.Errorf("failed to create request: %v", err)
	}
	if a.apiKey != "" {
		req.Header.Set("X-API-Key", a.apiKey)
	}

	if err := a.do(req, http.StatusCreated, &resp); err != nil {
		return resp, err
	}
	a.token = resp.Token
	return resp, nil
}

func (a *apiClient) uploadDocument(path string) (httpadapter.UploadResponse, error) {
	var resp httpadapter.UploadResponse

	file, err := os.Open(path)
	if err != nil {
		return resp, fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return resp, fmt.Errorf("failed to create form file: %v", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return resp, fmt.Errorf("failed to copy file: %v", err)
	}
	if err := writer.Close(); err != nil {
		return resp, fmt.Errorf("failed to close writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, a.baseURL+"/api/v1/session/document", &body)
	if err != nil {
		return resp, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.token)

	err = a.do(req, http.StatusOK, &resp)
	return resp, err
}

// websocketURL is the /ws endpoint of the server with the token as query
// parameter.
func (a *apiClient) websocketURL() (string, error) {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {a.token}}.Encode()
	return u.String(), nil
}

func (a *apiClient) do(req *http.Request, want int, out interface{}) error {
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %v", err)
	}
	if resp.StatusCode != want {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %v", err)
	}
	return nil
}
