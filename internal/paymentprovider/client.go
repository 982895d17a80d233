// Package paymentprovider talks to the external card and direct debit provider.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/internal/core/datamodel/paymentprovider"
	"github.com/frahmantamala/caz-payments/internal/credentials"
)

const maxErrorBody = 4 << 10

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls the provider with the API key of the zone a request belongs to.
type Client struct {
	baseURL     string
	timeout     time.Duration
	httpClient  *http.Client
	credentials credentials.Resolver
	logger      *slog.Logger
}

func NewClient(cfg Config, resolver credentials.Resolver, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		timeout:     cfg.Timeout,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		credentials: resolver,
		logger:      logger,
	}
}

type paymentResponse struct {
	PaymentID string `json:"payment_id"`
	Email     string `json:"email"`
	State     struct {
		Status string `json:"status"`
	} `json:"state"`
	Links struct {
		NextURL struct {
			Href string `json:"href"`
		} `json:"next_url"`
	} `json:"_links"`
}

func (r *paymentResponse) toPayment() *paymentprovider.Payment {
	return &paymentprovider.Payment{
		ID:      r.PaymentID,
		Status:  paymentprovider.Status(r.State.Status),
		Email:   r.Email,
		NextURL: r.Links.NextURL.Href,
	}
}

type mandateResponse struct {
	MandateID string `json:"mandate_id"`
	State     struct {
		Status string `json:"status"`
	} `json:"state"`
	Links struct {
		NextURL struct {
			Href string `json:"href"`
		} `json:"next_url"`
	} `json:"_links"`
}

func (r *mandateResponse) toMandate() *paymentprovider.Mandate {
	return &paymentprovider.Mandate{
		ID:      r.MandateID,
		Status:  r.State.Status,
		NextURL: r.Links.NextURL.Href,
	}
}

func (c *Client) CreateCardPayment(ctx context.Context, req paymentprovider.CreateCardPaymentRequest) (*paymentprovider.Payment, error) {
	body := map[string]interface{}{
		"amount":      req.Amount,
		"reference":   req.Reference,
		"description": req.Description,
		"return_url":  req.ReturnURL,
	}
	if req.Email != "" {
		body["email"] = req.Email
	}

	var resp paymentResponse
	if err := c.do(ctx, req.CleanAirZoneID, http.MethodPost, "/v1/payments", body, &resp); err != nil {
		return nil, err
	}
	c.logger.Info("card payment created",
		"external_id", resp.PaymentID,
		"reference", req.Reference,
		"clean_air_zone_id", req.CleanAirZoneID,
		"status", resp.State.Status)
	return resp.toPayment(), nil
}

// FindByID returns ErrNotFound when the provider has no such payment.
func (c *Client) FindByID(ctx context.Context, cleanAirZoneID, externalID string) (*paymentprovider.Payment, error) {
	var resp paymentResponse
	if err := c.do(ctx, cleanAirZoneID, http.MethodGet, "/v1/payments/"+url.PathEscape(externalID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.toPayment(), nil
}

func (c *Client) CreateMandate(ctx context.Context, req paymentprovider.CreateMandateRequest) (*paymentprovider.Mandate, error) {
	body := map[string]interface{}{
		"return_url": req.ReturnURL,
		"reference":  req.Reference,
	}

	var resp mandateResponse
	if err := c.do(ctx, req.CleanAirZoneID, http.MethodPost, "/v1/directdebit/mandates", body, &resp); err != nil {
		return nil, err
	}
	c.logger.Info("direct debit mandate created",
		"mandate_id", resp.MandateID,
		"clean_air_zone_id", req.CleanAirZoneID)
	return resp.toMandate(), nil
}

func (c *Client) GetMandate(ctx context.Context, cleanAirZoneID, mandateID string) (*paymentprovider.Mandate, error) {
	var resp mandateResponse
	if err := c.do(ctx, cleanAirZoneID, http.MethodGet, "/v1/directdebit/mandates/"+url.PathEscape(mandateID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.toMandate(), nil
}

func (c *Client) CollectDirectDebitPayment(ctx context.Context, req paymentprovider.CollectDirectDebitPaymentRequest) (*paymentprovider.Payment, error) {
	body := map[string]interface{}{
		"mandate_id":  req.MandateID,
		"amount":      req.Amount,
		"reference":   req.Reference,
		"description": req.Description,
	}

	var resp paymentResponse
	if err := c.do(ctx, req.CleanAirZoneID, http.MethodPost, "/v1/directdebit/payments", body, &resp); err != nil {
		return nil, err
	}
	c.logger.Info("direct debit payment collected",
		"external_id", resp.PaymentID,
		"mandate_id", req.MandateID,
		"clean_air_zone_id", req.CleanAirZoneID,
		"status", resp.State.Status)
	return resp.toPayment(), nil
}

// do sends one request and decodes a 2xx body into out. Transport errors,
// timeouts and 5xx map to ErrUnavailable, 404 to ErrNotFound and any other
// 4xx to ErrRejected.
func (c *Client) do(ctx context.Context, cleanAirZoneID, method, path string, body, out interface{}) error {
	apiKey, err := c.credentials.APIKey(ctx, cleanAirZoneID)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal provider request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	ctx, cancel := internal.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("payment provider request failed",
			"method", method,
			"path", path,
			"error", err)
		return fmt.Errorf("%w: %s %s: %v", paymentprovider.ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("payment provider responded",
		"method", method,
		"path", path,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		detail := fmt.Sprintf("%s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", paymentprovider.ErrNotFound, detail)
		case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", paymentprovider.ErrUnavailable, detail)
		default:
			return fmt.Errorf("%w: %s", paymentprovider.ErrRejected, detail)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s response: %v", paymentprovider.ErrUnavailable, method, path, err)
	}
	return nil
}
