// Package shopify talks to the Shopify Storefront GraphQL cart API.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	StoreDomain     string
	StorefrontToken string
	APIVersion      string
	Timeout         time.Duration
}

type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	log        *slog.Logger
}

// NewClient builds a client. A nil httpClient gets an instrumented one using
// config.Timeout; a nil breaker disables circuit breaking.
func NewClient(config Config, httpClient *http.Client, breaker *circuitbreaker.Breaker, log *slog.Logger) *Client {
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		breaker:    breaker,
		log:        log.With(slog.String("component", "shopify")),
	}
}

func (c *Client) CreateCart(ctx context.Context, lines []domain.CartLineInput) (*domain.RemoteCart, error) {
	var data cartCreateData
	err := c.graphqlRequest(ctx, cartCreateMutation, map[string]any{
		"input": map[string]any{"lines": linesVariable(lines)},
	}, &data)
	if err != nil {
		return nil, err
	}
	if err := userErrorsToError("cartCreate", data.CartCreate.UserErrors); err != nil {
		return nil, err
	}
	if data.CartCreate.Cart == nil || strings.TrimSpace(data.CartCreate.Cart.ID) == "" {
		return nil, errors.New("shopify cartCreate returned empty cart")
	}
	return data.CartCreate.Cart.toDomain(), nil
}

// ReplaceCartLines removes every existing line of the cart and adds lines.
func (c *Client) ReplaceCartLines(ctx context.Context, cartID string, lines []domain.CartLineInput) (*domain.RemoteCart, error) {
	current, err := c.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	if len(current.Lines) > 0 {
		lineIDs := make([]string, 0, len(current.Lines))
		for _, l := range current.Lines {
			lineIDs = append(lineIDs, l.ID)
		}
		var data cartLinesRemoveData
		err := c.graphqlRequest(ctx, cartLinesRemoveMutation, map[string]any{
			"cartId":  cartID,
			"lineIds": lineIDs,
		}, &data)
		if err != nil {
			return nil, err
		}
		if err := userErrorsToError("cartLinesRemove", data.CartLinesRemove.UserErrors); err != nil {
			return nil, err
		}
		if data.CartLinesRemove.Cart != nil {
			current = data.CartLinesRemove.Cart.toDomain()
		}
	}

	if len(lines) == 0 {
		return current, nil
	}

	var data cartLinesAddData
	err = c.graphqlRequest(ctx, cartLinesAddMutation, map[string]any{
		"cartId": cartID,
		"lines":  linesVariable(lines),
	}, &data)
	if err != nil {
		return nil, err
	}
	if err := userErrorsToError("cartLinesAdd", data.CartLinesAdd.UserErrors); err != nil {
		return nil, err
	}
	if data.CartLinesAdd.Cart == nil {
		return nil, errors.New("shopify cartLinesAdd returned empty cart")
	}
	return data.CartLinesAdd.Cart.toDomain(), nil
}

func (c *Client) GetCart(ctx context.Context, cartID string) (*domain.RemoteCart, error) {
	var data cartQueryData
	if err := c.graphqlRequest(ctx, cartQuery, map[string]any{"id": cartID}, &data); err != nil {
		return nil, err
	}
	if data.Cart == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrCartNotFound, cartID)
	}
	return data.Cart.toDomain(), nil
}

func (c *Client) endpoint() (string, error) {
	host := strings.TrimSpace(c.config.StoreDomain)
	if host == "" {
		return "", errors.New("shopify store domain is empty")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	host = strings.TrimRight(host, "/")
	if c.config.APIVersion == "" {
		return "", errors.New("shopify api version is empty")
	}
	return host + "/api/" + c.config.APIVersion + "/graphql.json", nil
}

func (c *Client) graphqlRequest(ctx context.Context, query string, variables map[string]any, out any) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	payload := graphQLRequest{
		Query:     strings.TrimSpace(query),
		Variables: variables,
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	raw, err := c.execute(ctx, endpoint, bodyBytes)
	if err != nil {
		return err
	}

	var resp graphQLResponse[json.RawMessage]
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("failed to decode shopify response: %w", err)
	}
	if len(resp.Errors) > 0 {
		if isThrottleGraphQLError(resp.Errors) {
			c.log.WarnContext(ctx, "shopify request throttled")
			return fmt.Errorf("shopify graphql throttled: %s", formatGraphQLErrors(resp.Errors))
		}
		return fmt.Errorf("%w: shopify graphql errors: %s", domain.ErrRemoteRejected, formatGraphQLErrors(resp.Errors))
	}
	if out == nil {
		return nil
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return errors.New("shopify graphql response missing data")
	}
	return json.Unmarshal(resp.Data, out)
}

func (c *Client) execute(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	call := func() ([]byte, error) {
		return c.storefrontRequest(ctx, endpoint, body)
	}
	if c.breaker == nil {
		return call()
	}
	return c.breaker.Execute(call)
}

func (c *Client) storefrontRequest(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Storefront-Access-Token", c.config.StorefrontToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPStatusError(resp.StatusCode, resp.Status, respBody)
	}
	return respBody, nil
}
