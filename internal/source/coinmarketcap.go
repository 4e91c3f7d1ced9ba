package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/concordium/eur2ccd-service/internal/model"
)

const coinMarketCapURL = "https://pro-api.coinmarketcap.com/v2/cryptocurrency/quotes/latest?slug=concordium&convert=EUR"

// statusEnvelope is CoinMarketCap's documented response wrapper. The
// error_message field may be entirely absent on success, which is not
// itself an error (spec.md section 6).
type statusEnvelope struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// CoinMarketCapPoller parses CoinMarketCap's slug-keyed quotes endpoint.
type CoinMarketCapPoller struct {
	httpClient *retryablehttp.Client
	apiKey     string
}

func NewCoinMarketCapPoller(apiKey string) *CoinMarketCapPoller {
	return &CoinMarketCapPoller{httpClient: newRetryClient(), apiKey: apiKey}
}

func (p *CoinMarketCapPoller) Describe() string { return "coin-market-cap" }

func (p *CoinMarketCapPoller) FetchOnce(ctx context.Context) (model.Rate, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, coinMarketCapURL, nil)
	if err != nil {
		return model.Rate{}, fmt.Errorf("build coinmarketcap request: %w", err)
	}
	req.Header.Set("X-CMC_PRO_API_KEY", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return model.Rate{}, fmt.Errorf("coinmarketcap request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Rate{}, fmt.Errorf("coinmarketcap unexpected status: %d", resp.StatusCode)
	}

	var body struct {
		Status statusEnvelope `json:"status"`
		Data   map[string]struct {
			Quote map[string]struct {
				Price float64 `json:"price"`
			} `json:"quote"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Rate{}, fmt.Errorf("decode coinmarketcap response: %w", err)
	}
	if body.Status.ErrorCode != 0 {
		return model.Rate{}, fmt.Errorf("coinmarketcap error %d: %s", body.Status.ErrorCode, body.Status.ErrorMessage)
	}

	entry, ok := body.Data["concordium"]
	if !ok {
		return model.Rate{}, fmt.Errorf("coinmarketcap response missing concordium entry")
	}
	quote, ok := entry.Quote["EUR"]
	if !ok {
		return model.Rate{}, fmt.Errorf("coinmarketcap response missing EUR quote")
	}

	rate, ok := model.RateFromFloat(quote.Price)
	if !ok {
		return model.Rate{}, fmt.Errorf("coinmarketcap returned an invalid rate: %v", quote.Price)
	}
	return rate, nil
}
