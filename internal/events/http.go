package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwsmith1983/releasepub/pkg/types"
)

// HTTP topic delivery defaults.
const (
	httpTimeout      = 10 * time.Second
	accessKeyHeader  = "aeg-sas-key"
	breakerFailures  = 3
	breakerOpenDelay = 30 * time.Second
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type httpTransport struct {
	client    HTTPDoer
	endpoint  string
	accessKey string
	breaker   *gobreaker.CircuitBreaker
}

func (r *Raiser) newHTTP(ctx context.Context, t types.TopicConfig) (Transport, error) {
	key := t.TopicAccessKey
	if IsSecretRef(key) {
		if r.secrets == nil {
			cfg, err := r.loadAWSConfig(ctx)
			if err != nil {
				return nil, err
			}
			r.secrets = NewSecretResolver(newSecretsClient(cfg))
		}
		resolved, err := r.secrets.Resolve(ctx, key)
		if err != nil {
			return nil, err
		}
		key = resolved
	}

	client := r.httpClient
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}
	return &httpTransport{
		client:    client,
		endpoint:  t.TopicEndpoint,
		accessKey: key,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    t.TopicEndpoint,
			Timeout: breakerOpenDelay,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= breakerFailures
			},
		}),
	}, nil
}

// Send posts every envelope as one JSON array.
func (t *httpTransport) Send(ctx context.Context, envs []Envelope) error {
	data, err := json.Marshal(envs)
	if err != nil {
		return fmt.Errorf("marshaling events: %w", err)
	}
	_, err = t.breaker.Execute(func() (interface{}, error) {
		return nil, t.post(ctx, data)
	})
	if err != nil {
		return fmt.Errorf("POST %s: %w", t.endpoint, err)
	}
	return nil
}

func (t *httpTransport) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.accessKey != "" {
		req.Header.Set(accessKeyHeader, t.accessKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("topic returned status %d", resp.StatusCode)
	}
	return nil
}
