package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// VisionEngine is the accurate recognition path: a remote vision model
// service reached over HTTP. Inference can take tens of seconds, so the
// client timeout is configurable.
type VisionEngine struct {
	serviceURL string
	httpClient *http.Client
}

// NewVisionEngine creates a vision-service client with the given base URL.
func NewVisionEngine(serviceURL string, timeout time.Duration) *VisionEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VisionEngine{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (e *VisionEngine) Name() string { return EngineAccurate }

// Recognize sends the page image to the vision service as a multipart
// upload and returns the recognized text.
func (e *VisionEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	var imgBuf bytes.Buffer
	if err := png.Encode(&imgBuf, in.Image); err != nil {
		return Result{}, fmt.Errorf("vision: encode image: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "page.png")
	if err != nil {
		return Result{}, fmt.Errorf("vision: create form file: %w", err)
	}
	if _, err := part.Write(imgBuf.Bytes()); err != nil {
		return Result{}, fmt.Errorf("vision: write image data: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := writer.WriteField("languages", strings.Join(in.Languages, ",")); err != nil {
			return Result{}, fmt.Errorf("vision: write languages field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("vision: close multipart writer: %w", err)
	}

	url := e.serviceURL + "/api/v1/ocr"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return Result{}, fmt.Errorf("vision: create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("vision: service request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("vision: read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("vision: service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var visionResp visionOCRResponse
	if err := json.Unmarshal(respBody, &visionResp); err != nil {
		return Result{}, fmt.Errorf("vision: parse response: %w", err)
	}

	return Result{
		Text:       strings.TrimSpace(visionResp.Text),
		Confidence: visionResp.Confidence,
	}, nil
}

// visionOCRResponse mirrors the vision service's response model.
type visionOCRResponse struct {
	Text             string  `json:"text"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}
