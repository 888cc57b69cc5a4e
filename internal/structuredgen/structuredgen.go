// Package structuredgen implements the structured model-generation path:
// a direct HTTP call to a large-model streaming endpoint (through the
// filtering proxy) that returns structured JSON describing files and
// images to write, bypassing the CLI agent entirely.
package structuredgen

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dreamcore/orchestrator/internal/agentdriver"
	"dreamcore/orchestrator/internal/applypath"
	"dreamcore/orchestrator/internal/sandbox"
)

// FileSpec is a generated file (has Content).
type FileSpec struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ImageSpec is a generated image request (has Prompt+Name, no Content).
type ImageSpec struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// Normalized is the tagged-union result of parsing the model's streamed
// JSON document, covering all three accepted shapes: an array of file
// objects, an object carrying files/images/mode/summary, or a single bare
// file object.
type Normalized struct {
	Files   []FileSpec
	Images  []ImageSpec
	Mode    string
	Summary string
}

// ErrFallbackToCLI signals the structured path failed and the caller
// should retry via the ordinary CLI agent path.
var ErrFallbackToCLI = fmt.Errorf("structured generation failed, fall back to cli")

// Client drives the structured-generation HTTP call.
type Client struct {
	HTTPClient *http.Client
	Endpoint   string // the filtering-proxy-fronted large-model streaming endpoint
}

func New(endpoint string) *Client {
	return &Client{HTTPClient: &http.Client{Timeout: 2 * time.Minute}, Endpoint: endpoint}
}

// Generate sends prompt to the large model with responseMimeType
// application/json, accumulates the streamed fragments into one document,
// and normalizes it.
func (c *Client) Generate(ctx context.Context, prompt string) (Normalized, error) {
	body, err := json.Marshal(map[string]any{
		"prompt":           prompt,
		"responseMimeType": "application/json",
		"stream":           true,
	})
	if err != nil {
		return Normalized{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Normalized{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Normalized{}, fmt.Errorf("%w: %v", ErrFallbackToCLI, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Normalized{}, fmt.Errorf("%w: upstream status %d", ErrFallbackToCLI, resp.StatusCode)
	}

	var accumulated strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		accumulated.WriteString(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Normalized{}, fmt.Errorf("%w: reading stream: %v", ErrFallbackToCLI, err)
	}

	norm, err := normalize([]byte(accumulated.String()))
	if err != nil {
		return Normalized{}, fmt.Errorf("%w: %v", ErrFallbackToCLI, err)
	}
	return norm, nil
}

func normalize(raw json.RawMessage) (Normalized, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Normalized{}, fmt.Errorf("empty response")
	}

	// Shape 1: array of file objects.
	var arr []FileSpec
	if err := json.Unmarshal(trimmed, &arr); err == nil && len(arr) > 0 {
		return Normalized{Files: arr}, nil
	}

	// Shape 2: object with files/images/mode/summary.
	var obj struct {
		Files   []FileSpec  `json:"files"`
		Images  []ImageSpec `json:"images"`
		Mode    string      `json:"mode"`
		Summary string      `json:"summary"`
		Path    string      `json:"path"`
		Content string      `json:"content"`
	}
	if err := json.Unmarshal(trimmed, &obj); err == nil {
		if len(obj.Files) > 0 || len(obj.Images) > 0 {
			return Normalized{Files: obj.Files, Images: obj.Images, Mode: obj.Mode, Summary: obj.Summary}, nil
		}
		// Shape 3: single bare file object.
		if obj.Path != "" && obj.Content != "" {
			return Normalized{Files: []FileSpec{{Path: obj.Path, Content: obj.Content}}}, nil
		}
	}

	return Normalized{}, fmt.Errorf("unrecognized response shape")
}

// MaxImages caps how many images one generation will produce.
const MaxImages = 3

// WriteAndGenerateImages writes every file in norm to workspaceRoot and
// invokes the image-generation subprocess (inside the sandbox identified
// by h) for up to MaxImages images into assets/.
func WriteAndGenerateImages(ctx context.Context, rt *sandbox.Runtime, h sandbox.Handle, workspaceRoot string, norm Normalized) ([]string, error) {
	var changed []string
	for _, f := range norm.Files {
		if err := applypath.ValidatePath(f.Path); err != nil {
			return changed, fmt.Errorf("%s: %w", f.Path, err)
		}
		full := filepath.Join(workspaceRoot, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return changed, err
		}
		if err := os.WriteFile(full, []byte(f.Content), 0o644); err != nil {
			return changed, err
		}
		changed = append(changed, f.Path)
	}

	images := norm.Images
	if len(images) > MaxImages {
		images = images[:MaxImages]
	}
	for _, img := range images {
		name := strings.TrimSpace(img.Name)
		if name == "" {
			continue
		}
		if err := applypath.ValidatePath("assets/" + name); err != nil {
			continue
		}
		cmd := fmt.Sprintf(
			"image-gen --prompt %s --out %s",
			agentdriver.ShellQuote(img.Prompt),
			agentdriver.ShellQuote("/workspace/assets/"+name),
		)
		if _, err := rt.Exec(ctx, h.ContainerID, []string{"sh", "-c", cmd}, sandbox.ExecOptions{}, nil, io.Discard, io.Discard); err != nil {
			continue // a failed image is not fatal to the overall generation
		}
		changed = append(changed, "assets/"+name)
	}
	return changed, nil
}
