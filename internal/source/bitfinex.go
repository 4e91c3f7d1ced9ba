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

const bitfinexURL = "https://api-pub.bitfinex.com/v2/calc/fx"

// BitfinexPoller queries Bitfinex's FX calculator endpoint, whose
// response is a ticker array: [rate]. The EUR/CCD pair replaces the
// EUR/ADA placeholder the original implementation carried as a TODO.
type BitfinexPoller struct {
	httpClient *retryablehttp.Client
}

// NewBitfinexPoller constructs a Bitfinex poller.
func NewBitfinexPoller() *BitfinexPoller {
	return &BitfinexPoller{httpClient: newRetryClient()}
}

func (p *BitfinexPoller) Describe() string { return "bitfinex" }

func (p *BitfinexPoller) FetchOnce(ctx context.Context) (model.Rate, error) {
	body, err := json.Marshal(map[string]string{"ccy1": "EUR", "ccy2": "CCD"})
	if err != nil {
		return model.Rate{}, fmt.Errorf("encode bitfinex request: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, bitfinexURL, bytes.NewReader(body))
	if err != nil {
		return model.Rate{}, fmt.Errorf("build bitfinex request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return model.Rate{}, fmt.Errorf("bitfinex request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Rate{}, fmt.Errorf("bitfinex unexpected status: %d", resp.StatusCode)
	}

	// Bitfinex returns a bare ticker array, e.g. [0.41].
	var ticker []float64
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return model.Rate{}, fmt.Errorf("decode bitfinex response: %w", err)
	}
	if len(ticker) == 0 {
		return model.Rate{}, fmt.Errorf("bitfinex response has no ticker entries")
	}

	rate, ok := model.RateFromFloat(ticker[0])
	if !ok {
		return model.Rate{}, fmt.Errorf("bitfinex returned an invalid rate: %v", ticker[0])
	}
	return rate, nil
}
