// Package notify is the client for the templated notification service. The
// service is an external collaborator: delivery failures never abort the
// calling operation, they degrade to a logged warning.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// Client sends templated notifications over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type sendRequest struct {
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Variables map[string]string `json:"variables,omitempty"`
}

// Send delivers one templated notification and reports whether delivery was
// accepted. It never returns an error: an unconfigured or unreachable
// notification service must not fail provisioning.
func (c *Client) Send(ctx context.Context, template, recipient string, vars map[string]string) bool {
	if c.baseURL == "" {
		log.Printf("[warn] operation=notify message=notification service not configured, skipping %s", template)
		return false
	}

	body, err := json.Marshal(sendRequest{
		Template:  template,
		Recipient: recipient,
		Variables: vars,
	})
	if err != nil {
		log.Printf("[warn] operation=notify template=%s error=%v", template, err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/send", bytes.NewReader(body))
	if err != nil {
		log.Printf("[warn] operation=notify template=%s error=%v", template, err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("[warn] operation=notify template=%s recipient=%s error=%v", template, recipient, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[warn] operation=notify template=%s recipient=%s status=%d", template, recipient, resp.StatusCode)
		return false
	}
	return true
}
