package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// InitializeRequest is the body of a transaction initialisation.
type InitializeRequest struct {
	Email       string         `json:"email"`
	Amount      string         `json:"amount"`
	Currency    string         `json:"currency"`
	Channels    []string       `json:"channels"`
	Metadata    map[string]any `json:"metadata"`
	Plan        string         `json:"plan,omitempty"`
	CallbackURL string         `json:"callback_url,omitempty"`
}

// GatewayResponse is the decoded JSON envelope of a gateway call. Raw keeps the complete
// document so it can be relayed to clients unchanged.
type GatewayResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    TransactionData `json:"data"`
	Raw     map[string]any  `json:"-"`
}

// TransactionData is the subset of transaction fields the service reads.
type TransactionData struct {
	Reference        string          `json:"reference"`
	AuthorizationURL string          `json:"authorization_url"`
	AccessCode       string          `json:"access_code"`
	Status           string          `json:"status"`
	Amount           json.Number     `json:"amount"`
	Currency         string          `json:"currency"`
	Channel          string          `json:"channel"`
	Metadata         json.RawMessage `json:"metadata"`
}

// GatewayError is a response the gateway answered with a failure.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway returned %d: %s", e.StatusCode, e.Message)
}

// Gateway is the payment provider API.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req InitializeRequest) (*GatewayResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*GatewayResponse, error)
}

// SignPayload returns the hex HMAC-SHA512 of body, the value of the x-paystack-signature header.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares signature to the expected HMAC in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := SignPayload(secret, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// UserID reads metadata.user_id. Metadata may arrive as an object or as a JSON encoded string.
func (d TransactionData) UserID() string {
	metadata := d.metadataMap()
	if id, ok := metadata["user_id"].(string); ok {
		return strings.TrimSpace(id)
	}
	return ""
}

func (d TransactionData) metadataMap() map[string]any {
	if len(d.Metadata) == 0 {
		return nil
	}
	var metadata map[string]any
	if err := json.Unmarshal(d.Metadata, &metadata); err == nil {
		return metadata
	}
	var encoded string
	if err := json.Unmarshal(d.Metadata, &encoded); err == nil && encoded != "" {
		if err := json.Unmarshal([]byte(encoded), &metadata); err == nil {
			return metadata
		}
	}
	return nil
}

// AmountSubunit parses the amount. ok is false when the gateway did not send a number.
func (d TransactionData) AmountSubunit() (int64, bool) {
	if d.Amount == "" {
		return 0, false
	}
	if n, err := d.Amount.Int64(); err == nil {
		return n, true
	}
	f, err := d.Amount.Float64()
	if err != nil {
		return 0, false
	}
	return int64(f), true
}
