package testinvoke

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hibikido/hibikido/pkg/logger"
)

// Run executes the complete invocation exercise: seed the demo catalog,
// listen on /ws, fire invocations and report what manifested.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting hibikido invocation exercise",
		logger.String("baseURL", config.BaseURL),
		logger.Int("invocations", config.NumInvocations),
		logger.Duration("settle", config.SettleTime))

	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	if err := seedCatalog(ctx, config, stats); err != nil {
		return fmt.Errorf("catalog seeding failed: %w", err)
	}

	stopListener, err := listenManifestations(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("websocket listen failed: %w", err)
	}
	defer stopListener()

	if err := fireInvocations(ctx, config, stats); err != nil {
		return fmt.Errorf("invocation submission failed: %w", err)
	}

	waitForSettle(ctx, config, stats)

	if err := reportServerStats(ctx, config); err != nil {
		log.Warn(ctx, "server stats unavailable", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return nil
}

func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	_, _ = readResponseBody(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status %d", resp.StatusCode)
	}
	return nil
}

// listenManifestations connects to /ws and counts manifest pushes until
// stopped.
func listenManifestations(ctx context.Context, config *Config, stats *Stats) (func(), error) {
	wsURL := "ws" + strings.TrimPrefix(config.BaseURL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	log := logger.Get()
	listenCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var msg struct {
				Type        string  `json:"type"`
				Description string  `json:"description"`
				Score       float64 `json:"score"`
			}
			if err := wsjson.Read(listenCtx, conn, &msg); err != nil {
				return
			}
			if msg.Type != "manifest" {
				continue
			}
			atomic.AddInt64(&stats.Manifested, 1)
			if config.Verbose {
				log.Info(listenCtx, "manifested",
					logger.String("description", msg.Description),
					logger.Float64("score", msg.Score))
			}
		}
	}()

	return func() {
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		<-done
	}, nil
}

func fireInvocations(ctx context.Context, config *Config, stats *Stats) error {
	log := logger.Get()
	client := newHTTPClient(config.Timeout)

	for i := 0; i < config.NumInvocations; i++ {
		phrase := invocationPhrases[i%len(invocationPhrases)]
		resp, err := client.Post(ctx, config.BaseURL+"/invoke", map[string]string{"text": phrase})
		if err != nil {
			stats.InvokeFailures++
			log.Warn(ctx, "invoke failed", logger.String("phrase", phrase), logger.Error(err))
			continue
		}

		body, err := readResponseBody(resp)
		if err != nil || resp.StatusCode != http.StatusAccepted {
			stats.InvokeFailures++
			log.Warn(ctx, "invoke rejected",
				logger.String("phrase", phrase), logger.Int("status", resp.StatusCode))
			continue
		}

		var ack struct {
			InvocationID string `json:"invocation_id"`
			Queued       int    `json:"queued"`
		}
		if err := json.Unmarshal(body, &ack); err != nil {
			stats.InvokeFailures++
			continue
		}

		stats.InvocationsSent++
		stats.TotalQueued += ack.Queued
		if config.Verbose {
			log.Info(ctx, "invoked",
				logger.String("phrase", phrase),
				logger.String("invocation", ack.InvocationID),
				logger.Int("queued", ack.Queued))
		}
	}
	return nil
}

// waitForSettle gives the scheduler time to drain. Returns early once the
// manifestation count stops growing.
func waitForSettle(ctx context.Context, config *Config, stats *Stats) {
	deadline := time.Now().Add(config.SettleTime)
	var last int64 = -1

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
		current := atomic.LoadInt64(&stats.Manifested)
		if current == last && current >= int64(stats.TotalQueued) {
			return
		}
		last = current
	}
}

func reportServerStats(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/stats")
	if err != nil {
		return err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return err
	}
	logger.Get().Info(ctx, "server stats", logger.String("stats", string(body)))
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	logger.Get().Info(ctx, "exercise finished",
		logger.Duration("duration", stats.Duration),
		logger.Int("invocations", stats.InvocationsSent),
		logger.Int("failures", stats.InvokeFailures),
		logger.Int("queued", stats.TotalQueued),
		logger.Int("manifested", int(atomic.LoadInt64(&stats.Manifested))),
		logger.Int("seeded_segments", stats.SeededSegments),
		logger.Int("seeded_presets", stats.SeededPresets))
}
