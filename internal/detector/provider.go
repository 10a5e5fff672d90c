package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"time"
)

// Provider answers external lookup queries for detectors. Lookup kinds
// are free-form strings ("existence", "breach", "sanctions", ...); the
// key is the identifier being checked.
type Provider interface {
	Name() string
	Query(ctx context.Context, kind string, key string) (*ProviderResponse, error)
}

// ProviderResponse is the normalized answer of a provider lookup.
type ProviderResponse struct {
	Found      bool           `json:"found"`
	Score      float64        `json:"score"` // provider-local 0-100 risk signal
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LiveProvider queries a real HTTP endpoint. Selected by configuration
// when an endpoint is set; otherwise detectors run on the simulator.
type LiveProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewLiveProvider builds a provider against the given endpoint.
func NewLiveProvider(name, baseURL, apiKey string, timeout time.Duration) *LiveProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LiveProvider{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *LiveProvider) Name() string { return p.name }

// Query performs GET {base}/{kind}/{key} and decodes the normalized
// response. Any transport or decode problem is returned as an error;
// the calling detector degrades, it never propagates.
func (p *LiveProvider) Query(ctx context.Context, kind string, key string) (*ProviderResponse, error) {
	u := fmt.Sprintf("%s/%s/%s", p.baseURL, url.PathEscape(kind), url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider %s query: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &ProviderResponse{Found: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider %s returned status %d", p.name, resp.StatusCode)
	}

	var out ProviderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode provider %s response: %w", p.name, err)
	}
	return &out, nil
}

// SimulatedProvider is a deterministic stand-in for external services:
// the same kind/key pair always yields the same answer, derived from a
// hash of the inputs. Used when no provider endpoint is configured and
// throughout the test suite.
type SimulatedProvider struct {
	name string
	seed uint64
}

// NewSimulatedProvider builds a simulator. The seed shifts the whole
// answer space, letting tests carve out distinct provider behaviors.
func NewSimulatedProvider(name string, seed uint64) *SimulatedProvider {
	return &SimulatedProvider{name: name, seed: seed}
}

func (p *SimulatedProvider) Name() string { return p.name }

// Query derives a stable response from hash(seed|kind|key).
func (p *SimulatedProvider) Query(_ context.Context, kind string, key string) (*ProviderResponse, error) {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%s", p.seed, kind, key)
	sum := h.Sum64()

	// Found for ~70% of keys; score spread over 0-100 with the found
	// population skewed lower (existing things are usually benign).
	found := sum%10 < 7
	score := float64(sum % 101)
	if found {
		score = score * 0.6
	}

	return &ProviderResponse{
		Found: found,
		Score: score,
		Attributes: map[string]any{
			"simulated": true,
			"reports":   int(sum % 7),
		},
	}, nil
}
