package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/concordium/eur2ccd-service/internal/model"
)

// TestSourcePoller polls a URL-driven test harness that exposes
// GET /rate -> float (spec.md section 6). The harness may answer with a
// bare JSON number or a plain-text decimal; both are accepted. The
// harness's other documented endpoints (POST /add, PUT /reset,
// PUT /update-resort/:f64) are operator-facing and not consumed here.
type TestSourcePoller struct {
	id         string
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewTestSourcePoller constructs a poller against a test-harness base
// URL, identified by id so that multiple test sources can coexist.
func NewTestSourcePoller(id, baseURL string) *TestSourcePoller {
	return &TestSourcePoller{id: id, baseURL: strings.TrimRight(baseURL, "/"), httpClient: newRetryClient()}
}

func (p *TestSourcePoller) Describe() string { return p.id }

func (p *TestSourcePoller) FetchOnce(ctx context.Context) (model.Rate, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, p.baseURL+"/rate", nil)
	if err != nil {
		return model.Rate{}, fmt.Errorf("build test-source request: %w", err)
	}

	resp, err := p.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return model.Rate{}, fmt.Errorf("test-source request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Rate{}, fmt.Errorf("test-source unexpected status: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Rate{}, fmt.Errorf("read test-source response: %w", err)
	}

	f, err := parseRate(raw)
	if err != nil {
		return model.Rate{}, fmt.Errorf("parse test-source response: %w", err)
	}

	rate, ok := model.RateFromFloat(f)
	if !ok {
		return model.Rate{}, fmt.Errorf("test-source returned an invalid rate: %v", f)
	}
	return rate, nil
}

func parseRate(raw []byte) (float64, error) {
	trimmed := strings.TrimSpace(string(raw))
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}
