package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/concordium/eur2ccd-service/internal/model"
)

const liveCoinWatchURL = "https://api.livecoinwatch.com/coins/single"

// LiveCoinWatchPoller parses LiveCoinWatch's symbol-keyed single-coin
// endpoint, a POST with a JSON body rather than query parameters.
type LiveCoinWatchPoller struct {
	httpClient *retryablehttp.Client
	apiKey     string
}

func NewLiveCoinWatchPoller(apiKey string) *LiveCoinWatchPoller {
	return &LiveCoinWatchPoller{httpClient: newRetryClient(), apiKey: apiKey}
}

func (p *LiveCoinWatchPoller) Describe() string { return "live-coin-watch" }

func (p *LiveCoinWatchPoller) FetchOnce(ctx context.Context) (model.Rate, error) {
	payload, err := json.Marshal(map[string]any{
		"currency": "EUR",
		"code":     "CCD",
		"meta":     false,
	})
	if err != nil {
		return model.Rate{}, fmt.Errorf("encode livecoinwatch request: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, liveCoinWatchURL, bytes.NewReader(payload))
	if err != nil {
		return model.Rate{}, fmt.Errorf("build livecoinwatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return model.Rate{}, fmt.Errorf("livecoinwatch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Rate{}, fmt.Errorf("livecoinwatch unexpected status: %d", resp.StatusCode)
	}

	var body struct {
		Rate float64 `json:"rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Rate{}, fmt.Errorf("decode livecoinwatch response: %w", err)
	}

	rate, ok := model.RateFromFloat(body.Rate)
	if !ok {
		return model.Rate{}, fmt.Errorf("livecoinwatch returned an invalid rate: %v", body.Rate)
	}
	return rate, nil
}
