package readiness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NetworkProber measures reachability and rough throughput against the
// platform. The default implementation downloads the probe URL and times
// it; tests substitute their own.
type NetworkProber interface {
	Probe(ctx context.Context) (NetworkReport, error)
}

type NetworkReport struct {
	Latency        time.Duration
	ThroughputMbps float64
}

type httpNetworkProber struct {
	client   *http.Client
	probeURL string
}

func NewHTTPNetworkProber(client *http.Client, probeURL string) NetworkProber {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &httpNetworkProber{client: client, probeURL: probeURL}
}

func (p *httpNetworkProber) Probe(ctx context.Context) (NetworkReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.probeURL, nil)
	if err != nil {
		return NetworkReport{}, fmt.Errorf("build probe request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return NetworkReport{}, fmt.Errorf("probe %s: %w", p.probeURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return NetworkReport{}, fmt.Errorf("probe %s: status %d", p.probeURL, resp.StatusCode)
	}

	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return NetworkReport{}, fmt.Errorf("read probe body: %w", err)
	}
	elapsed := time.Since(start)

	report := NetworkReport{Latency: elapsed}
	if seconds := elapsed.Seconds(); seconds > 0 {
		report.ThroughputMbps = float64(n) * 8 / 1e6 / seconds
	}
	return report, nil
}

func checkNetwork(ctx context.Context, prober NetworkProber, floorMbps float64) *CheckError {
	report, err := prober.Probe(ctx)
	if err != nil {
		return newCheckError(CodeNetworkOffline,
			"the platform is not reachable",
			"Check the internet connection and try again.", err)
	}
	if floorMbps > 0 && report.ThroughputMbps > 0 && report.ThroughputMbps < floorMbps {
		return newCheckError(CodeNetworkSlow,
			fmt.Sprintf("measured %.1f Mbps, below the %.1f Mbps floor", report.ThroughputMbps, floorMbps),
			"Move closer to the router or switch to a faster connection.", nil)
	}
	return nil
}
