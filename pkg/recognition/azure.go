package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrEmptySpeechCredentials = errors.New("empty speech key or region")

type AzureConfig struct {
	Key       string
	Region    string
	Language  string
	Profanity string

	// SampleRate of the WAV recordings sent to the service.
	SampleRate int

	// Endpoint overrides the regional short-audio endpoint.
	Endpoint string
	Client   *http.Client
}

// AzureService calls the Azure Speech short-audio REST endpoint, one request per recording.
type AzureService struct {
	endpoint    string
	key         string
	contentType string
	client      *http.Client
}

func NewAzureService(cfg AzureConfig) (*AzureService, error) {
	if cfg.Key == "" || (cfg.Region == "" && cfg.Endpoint == "") {
		return nil, ErrEmptySpeechCredentials
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.Profanity == "" {
		cfg.Profanity = "raw"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = fmt.Sprintf("https://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1", cfg.Region)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}

	query := url.Values{}
	query.Set("language", cfg.Language)
	query.Set("format", "simple")
	query.Set("profanity", cfg.Profanity)

	return &AzureService{
		endpoint:    cfg.Endpoint + "?" + query.Encode(),
		key:         cfg.Key,
		contentType: "audio/wav; codecs=audio/pcm; samplerate=" + strconv.Itoa(cfg.SampleRate),
		client:      cfg.Client,
	}, nil
}

type azureResult struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
}

func (s *AzureService) RecognizeOnce(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.key)
	req.Header.Set("Content-Type", s.contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling speech service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading speech response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrQuotaExceeded
	}
	if resp.StatusCode != http.StatusOK {
		if strings.Contains(strings.ToLower(string(body)), "quota exceeded") {
			return "", ErrQuotaExceeded
		}
		return "", fmt.Errorf("speech service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result azureResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding speech response: %w", err)
	}

	switch result.RecognitionStatus {
	case "Success":
		if strings.TrimSpace(result.DisplayText) == "" {
			return "", ErrNoMatch
		}
		return result.DisplayText, nil
	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		return "", ErrNoMatch
	default:
		return "", fmt.Errorf("speech recognition failed: %s", result.RecognitionStatus)
	}
}
