// Package viacep resolves Brazilian postal codes through the public
// ViaCEP API (https://viacep.com.br).
package viacep

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pharmacy-intake-bot/internal/domain"
	"pharmacy-intake-bot/internal/domain/model"
	"pharmacy-intake-bot/internal/domain/ports/adapter"
	"pharmacy-intake-bot/internal/infra/metrics"
)

var _ adapter.AddressResolver = (*Client)(nil)

type Client struct {
	baseURL string
	client  *http.Client
	log     *zerolog.Logger
}

// NewClient builds the resolver. timeout bounds the whole lookup; the
// conversation engine adds no timeout of its own.
func NewClient(baseURL string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     logger,
	}
}

// viaCEPResponse mirrors the ViaCEP JSON payload. On an unknown CEP the
// service answers 200 with {"erro": true} instead of a 404.
type viaCEPResponse struct {
	Logradouro string          `json:"logradouro"`
	Bairro     string          `json:"bairro"`
	Localidade string          `json:"localidade"`
	UF         string          `json:"uf"`
	Erro       json.RawMessage `json:"erro"`
}

// Resolve looks up the CEP. Every failure mode — transport error,
// non-2xx status, undecodable body, explicit "erro" payload — collapses
// into domain.ErrAddressNotFound; the cause is only visible in the log.
func (c *Client) Resolve(ctx context.Context, cep string) (*model.Address, error) {
	start := time.Now()

	addr, outcome, err := c.resolve(ctx, cep)

	metrics.IncCEPLookup(outcome)
	metrics.ObserveCEPLookupLatency(float64(time.Since(start).Milliseconds()))
	return addr, err
}

func (c *Client) resolve(ctx context.Context, cep string) (*model.Address, string, error) {
	url := fmt.Sprintf("%s/ws/%s/json/", c.baseURL, cep)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "error", domain.ErrAddressNotFound
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("cep", cep).Msg("viacep request failed")
		return nil, "error", domain.ErrAddressNotFound
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Str("cep", cep).Msg("viacep returned non-OK status")
		return nil, "error", domain.ErrAddressNotFound
	}

	var payload viaCEPResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.log.Warn().Err(err).Str("cep", cep).Msg("viacep body decode failed")
		return nil, "error", domain.ErrAddressNotFound
	}

	// "erro" arrives as bool or string depending on the API version.
	if len(payload.Erro) > 0 && string(payload.Erro) != "false" && string(payload.Erro) != `"false"` {
		c.log.Warn().Str("cep", cep).Msg("viacep: CEP not found")
		return nil, "not_found", domain.ErrAddressNotFound
	}

	return &model.Address{
		Street:   payload.Logradouro,
		District: payload.Bairro,
		City:     payload.Localidade,
		Region:   payload.UF,
	}, "ok", nil
}
