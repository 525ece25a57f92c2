package paystack

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"resty.dev/v3"

	"bastion-server/internal/domain/billing"
	"bastion-server/internal/utils/httpclients"
	"bastion-server/internal/utils/platformerrors"
)

const DefaultBaseURL = "https://api.paystack.co"

// Client calls the Paystack transaction API.
type Client struct {
	client    *resty.Client
	baseURL   string
	secretKey string
}

var _ billing.Gateway = (*Client)(nil)

func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		client:    httpclients.NewClient("PaystackClient", timeout),
		baseURL:   baseURL,
		secretKey: strings.TrimSpace(secretKey),
	}
}

func (c *Client) InitializeTransaction(ctx context.Context, req billing.InitializeRequest) (*billing.GatewayResponse, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.secretKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(c.baseURL + "/transaction/initialize")
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "paystack initialize request failed")
	}
	return decodeResponse(ctx, resp.StatusCode(), resp.Bytes())
}

func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*billing.GatewayResponse, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.secretKey).
		Get(c.baseURL + "/transaction/verify/" + url.PathEscape(reference))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "paystack verify request failed")
	}
	return decodeResponse(ctx, resp.StatusCode(), resp.Bytes())
}

// decodeResponse keeps both the typed envelope and the raw document. Non-2xx answers become a
// billing.GatewayError carrying the gateway's message.
func decodeResponse(ctx context.Context, statusCode int, body []byte) (*billing.GatewayResponse, error) {
	var out billing.GatewayResponse
	decodeErr := json.Unmarshal(body, &out)
	if decodeErr == nil {
		decodeErr = json.Unmarshal(body, &out.Raw)
	}

	if statusCode < 200 || statusCode >= 300 {
		message := out.Message
		if message == "" {
			message = strings.TrimSpace(string(body))
		}
		return nil, &billing.GatewayError{StatusCode: statusCode, Message: message}
	}
	if decodeErr != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "invalid paystack response", decodeErr, "c6627153-ef10-4611-b716-cfbe50f5e6ce")
	}
	return &out, nil
}
