// Package api publishes recordings to the OCAP web frontend.
package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/OCAP2/inspector/internal/storage/memory"
)

// Metadata describes an uploaded recording.
type Metadata struct {
	Name     string
	Scene    string
	Duration float64 // seconds of server time
	Frames   int
	Tag      string
}

// MetadataFor derives upload metadata from a loaded recording. The name is
// the file name without its .json or .json.gz suffix.
func MetadataFor(path string, rec *memory.Recording, tag string) Metadata {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".gz")
	name = strings.TrimSuffix(name, ".json")

	meta := Metadata{Name: name, Frames: rec.Size(), Tag: tag}
	if scenes := rec.Scenes(); len(scenes) > 0 {
		meta.Scene = scenes[0]
	}
	if frames := rec.Frames(); len(frames) > 1 {
		meta.Duration = frames[len(frames)-1].ServerTime - frames[0].ServerTime
	}
	return meta
}

// Client handles communication with the OCAP web frontend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Healthcheck checks if the OCAP web frontend is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Upload streams the recording file at path to the frontend as a multipart
// form.
func (c *Client) Upload(ctx context.Context, path string, meta Metadata) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		err := writeForm(writer, file, filepath.Base(path), c.apiKey, meta)
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
		errCh <- err
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/operations/add", pr)
	if err != nil {
		pr.CloseWithError(err)
		<-errCh
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		<-errCh
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if writeErr := <-errCh; writeErr != nil {
		return writeErr
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func writeForm(w *multipart.Writer, src io.Reader, filename, secret string, meta Metadata) error {
	fields := [][2]string{
		{"secret", secret},
		{"filename", filename},
		{"worldName", meta.Scene},
		{"missionName", meta.Name},
		{"missionDuration", strconv.FormatFloat(meta.Duration, 'f', -1, 64)},
		{"frames", strconv.Itoa(meta.Frames)},
		{"tag", meta.Tag},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return nil
}
