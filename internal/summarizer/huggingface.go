package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HuggingFace calls a Hugging Face style inference endpoint serving a
// summarization pipeline.
type HuggingFace struct {
	httpClient *http.Client
	baseURL    string
	model      string
	token      string
}

type HuggingFaceConfig struct {
	BaseURL  string
	Model    string
	APIToken string
	Timeout  time.Duration
}

func NewHuggingFace(cfg HuggingFaceConfig) *HuggingFace {
	return &HuggingFace{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		token:      cfg.APIToken,
	}
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
	Options    hfOptions    `json:"options"`
}

type hfParameters struct {
	Truncation         string       `json:"truncation"`
	GenerateParameters hfGeneration `json:"generate_parameters"`
}

type hfGeneration struct {
	MinLength     int  `json:"min_length"`
	MaxLength     int  `json:"max_length"`
	NumBeams      int  `json:"num_beams"`
	EarlyStopping bool `json:"early_stopping"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type hfSummary struct {
	SummaryText string `json:"summary_text"`
}

func (h *HuggingFace) Generate(ctx context.Context, text string, cfg GenerationConfig) (string, error) {
	body, err := json.Marshal(hfRequest{
		Inputs: text,
		Parameters: hfParameters{
			Truncation: "only_first",
			GenerateParameters: hfGeneration{
				MinLength:     cfg.MinLength,
				MaxLength:     cfg.MaxLength,
				NumBeams:      cfg.NumBeams,
				EarlyStopping: cfg.EarlyStopping,
			},
		},
		Options: hfOptions{WaitForModel: true},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := h.baseURL + "/models/" + h.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("unexpected status: %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out []hfSummary
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return out[0].SummaryText, nil
}
