package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/concordium/eur2ccd-service/internal/model"
)

const coinGeckoURL = "https://api.coingecko.com/api/v3/simple/price?ids=concordium&vs_currencies=eur"

// CoinGeckoPoller parses CoinGecko's simple-price endpoint, which is
// keyed by the coin's symbol-like id ("concordium") and currency code.
type CoinGeckoPoller struct {
	httpClient *retryablehttp.Client
}

func NewCoinGeckoPoller() *CoinGeckoPoller {
	return &CoinGeckoPoller{httpClient: newRetryClient()}
}

func (p *CoinGeckoPoller) Describe() string { return "coin-gecko" }

func (p *CoinGeckoPoller) FetchOnce(ctx context.Context) (model.Rate, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, coinGeckoURL, nil)
	if err != nil {
		return model.Rate{}, fmt.Errorf("build coingecko request: %w", err)
	}

	resp, err := p.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return model.Rate{}, fmt.Errorf("coingecko request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Rate{}, fmt.Errorf("coingecko unexpected status: %d", resp.StatusCode)
	}

	var payload map[string]struct {
		EUR float64 `json:"eur"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.Rate{}, fmt.Errorf("decode coingecko response: %w", err)
	}

	entry, ok := payload["concordium"]
	if !ok {
		return model.Rate{}, fmt.Errorf("coingecko response missing concordium entry")
	}

	rate, ok := model.RateFromFloat(entry.EUR)
	if !ok {
		return model.Rate{}, fmt.Errorf("coingecko returned an invalid rate: %v", entry.EUR)
	}
	return rate, nil
}
