package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// chatTimeout covers a full model round trip on the server.
const chatTimeout = 5 * time.Minute

// errorResponse matches the body echo writes for an HTTPError.
type errorResponse struct {
	Message string `json:"message"`
}

func newClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// postJSON sends body as JSON to path and decodes the response into out.
func postJSON(client *http.Client, path string, body, out any) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := serverURL + path
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return do(client, req, out)
}

// postImage uploads the file at imagePath as the "image" form field.
func postImage(client *http.Client, path, imagePath string, fields map[string]string, out any) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", imagePath, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read image %s: %w", imagePath, err)
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finish multipart body: %w", err)
	}

	url := serverURL + path
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return do(client, req, out)
}

func do(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		var er errorResponse
		if json.Unmarshal(body, &er) == nil && er.Message != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, er.Message)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
