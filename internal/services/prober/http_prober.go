package prober

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/forgefleet/fleetops/internal/domain/probe"
	"github.com/forgefleet/fleetops/internal/domain/workerresult"
)

const maxBodyBytes = 64 << 10

type Config struct {
	UserAgent       string        `mapstructure:"user_agent"`
	Timeout         time.Duration `mapstructure:"timeout"`
	FollowRedirects bool          `mapstructure:"follow_redirects"`
	VerifyTLS       bool          `mapstructure:"verify_tls"`
}

// HTTPProber checks a worker's health endpoint over HTTP. It never
// returns an error: an unreachable or slow worker is a timed-out
// outcome with score 0, so one dead worker cannot stall a run.
type HTTPProber struct {
	c   *http.Client
	cfg Config
	log *zap.Logger
}

var _ probe.Prober = (*HTTPProber)(nil)

func New(cfg Config, log *zap.Logger) *HTTPProber {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.VerifyTLS,
			MinVersion:         tls.VersionTLS12,
		},
	}
	client := &http.Client{Transport: transport}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &HTTPProber{c: client, cfg: cfg, log: log}
}

// healthBody is the optional self-report a worker may answer with.
type healthBody struct {
	Status      *string  `json:"status"`
	HealthScore *float64 `json:"health_score"`
}

func (p *HTTPProber) Probe(ctx context.Context, endpoint string, timeout time.Duration) probe.Outcome {
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return timedOut()
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	resp, err := p.c.Do(req)
	if err != nil {
		p.log.Debug("probe failed", zap.String("endpoint", endpoint), zap.Error(err))
		return timedOut()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return probe.Outcome{
			Status:         workerresult.StatusCompleted,
			Classification: workerresult.ClassUnhealthy,
			Score:          0,
		}
	}

	out := probe.Outcome{
		Status:         workerresult.StatusCompleted,
		Classification: workerresult.ClassHealthy,
		Score:          1,
	}

	// a worker may refine the verdict with a JSON self-report
	var body healthBody
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil || json.Unmarshal(raw, &body) != nil {
		return out
	}
	if body.HealthScore != nil && *body.HealthScore >= 0 && *body.HealthScore <= 1 {
		out.Score = *body.HealthScore
	}
	if body.Status != nil {
		switch workerresult.Classification(*body.Status) {
		case workerresult.ClassHealthy:
			out.Classification = workerresult.ClassHealthy
		case workerresult.ClassDegraded:
			out.Classification = workerresult.ClassDegraded
		case workerresult.ClassUnhealthy:
			out.Classification = workerresult.ClassUnhealthy
		}
	}
	return out
}

func timedOut() probe.Outcome {
	return probe.Outcome{
		Status:         workerresult.StatusTimedOut,
		Classification: workerresult.ClassUnhealthy,
		Score:          0,
	}
}
