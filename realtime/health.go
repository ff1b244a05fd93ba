package realtime

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go"
)

// HealthPoller checks a collaborator-provided health endpoint on a fixed
// period, independently of the live socket. A healthy report while the
// client sits disconnected requests a connect; an unhealthy report forces
// the client disconnected even if the socket still looks open at the
// transport layer.
type HealthPoller struct {
	client *Client
	url    string
	period time.Duration
	httpc  *http.Client
	logger *slog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

type HealthOption func(*HealthPoller)

func WithHealthPeriod(d time.Duration) HealthOption {
	return func(p *HealthPoller) {
		p.period = d
	}
}

func WithHealthHTTPClient(httpc *http.Client) HealthOption {
	return func(p *HealthPoller) {
		p.httpc = httpc
	}
}

// NewHealthPoller builds a poller for the given client. A nil client is
// allowed for callers that only want Check.
func NewHealthPoller(client *Client, healthURL string, opts ...HealthOption) *HealthPoller {
	p := &HealthPoller{
		client: client,
		url:    healthURL,
		period: 10 * time.Second,
		httpc:  &http.Client{Timeout: 5 * time.Second},
		logger: slog.Default(),
	}
	if client != nil {
		p.logger = client.logger
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling in the background. Idempotent.
func (p *HealthPoller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		return
	}
	p.stopCh = make(chan struct{})
	go p.run(p.stopCh)
}

// Stop halts polling. Idempotent; the in-flight check, if any, completes.
func (p *HealthPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh == nil {
		return
	}
	close(p.stopCh)
	p.stopCh = nil
}

func (p *HealthPoller) run(stopCh chan struct{}) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *HealthPoller) poll() {
	if err := p.Check(); err != nil {
		p.logger.Warn("health check failed, forcing disconnect", "error", err)
		p.client.Disconnect()
		return
	}
	if p.client.State() == StateDisconnected {
		p.logger.Info("server healthy, requesting connect")
		if err := p.client.Connect(); err != nil {
			p.logger.Warn("health-triggered connect failed", "error", err)
		}
	}
}

// Check performs one out-of-band request against the health endpoint, with
// a single retry to ride out transient blips. Any 2xx status is healthy.
func (p *HealthPoller) Check() error {
	return retry.Do(
		func() error {
			resp, err := p.httpc.Get(p.url)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return fmt.Errorf("health endpoint returned %s", resp.Status)
			}
			return nil
		},
		retry.Attempts(2),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}
