package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/talentview/sessionkit/internal/config"
	"github.com/talentview/sessionkit/internal/readiness"
	"github.com/talentview/sessionkit/internal/tools/common"
	"github.com/talentview/sessionkit/internal/tools/ui"
)

// Default user agent for terminal runs, where no real browser is in
// play. Embedders pass the actual user agent of the host environment.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

type options struct {
	userAgent   string
	audioSource string
	skipAudio   bool
	probeURL    string
	ci          bool
}

func NewCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Run the interview readiness checks",
		Long: "Runs the browser, network, microphone and audio checks in order.\n" +
			"Pass --audio-source a raw 16-bit mono PCM stream (for example a pipe\n" +
			"from arecord) to exercise the audio level test, or --skip-audio to\n" +
			"assume a working capture device.",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts)
			if opts.ci {
				common.PrintCIResult(err == nil, "preflight", details, err)
				if err != nil {
					os.Exit(4)
				}
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&opts.userAgent, "user-agent", defaultUserAgent, "user agent to evaluate for browser compatibility")
	cmd.Flags().StringVar(&opts.audioSource, "audio-source", "", "path to a raw PCM16 mono audio source")
	cmd.Flags().BoolVar(&opts.skipAudio, "skip-audio", false, "skip the audio level test")
	cmd.Flags().StringVar(&opts.probeURL, "probe-url", "", "override the network probe URL")
	cmd.Flags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	return cmd
}

func run(opts *options) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		return runChecks(ctx, opts, nil)
	}
	return ui.Run("preflight checks", func(ctx context.Context) ([]string, error) {
		return runChecks(ctx, opts, nil)
	})
}

func runChecks(ctx context.Context, opts *options, onUpdate func(readiness.SystemCheck)) ([]string, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if opts.probeURL != "" {
		cfg.NetworkProbeURL = opts.probeURL
	}
	if opts.skipAudio {
		cfg.SkipAudioTest = true
	}

	audio, note := audioInput(opts, cfg)
	prober := readiness.NewHTTPNetworkProber(&http.Client{Timeout: cfg.RequestTimeout}, cfg.NetworkProbeURL)
	orch := readiness.NewOrchestrator(cfg, readiness.ParseUserAgent(opts.userAgent), prober, audio, onUpdate, nil)

	result := orch.Run(ctx)

	var details []string
	if note != "" {
		details = append(details, note)
	}
	for _, c := range result.Checks {
		line := fmt.Sprintf("%s: %s", c.Name, c.Status)
		if c.Err != nil {
			line += " (" + string(c.Err.Code) + ")"
			if c.Err.Advice != "" {
				line += " - " + c.Err.Advice
			}
		}
		details = append(details, line)
	}
	if !cfg.SkipAudioTest {
		details = append(details, fmt.Sprintf("peak audio level: %.1f", result.PeakLevel))
	}

	if !result.Passed() {
		return details, fmt.Errorf("readiness checks did not pass")
	}
	return details, nil
}

// audioInput picks the capture source. Without one the audio test is
// forced off and the microphone check is satisfied by a silent stub, so
// terminal runs without audio plumbing still produce a useful report.
func audioInput(opts *options, cfg *config.Config) (readiness.AudioInput, string) {
	if opts.audioSource != "" {
		return &fileAudioInput{path: opts.audioSource}, ""
	}
	cfg.SkipAudioTest = true
	return stubAudioInput{}, "no --audio-source given; audio level test skipped"
}

// fileAudioInput opens the PCM source on demand so a FIFO only blocks
// once the microphone check actually runs.
type fileAudioInput struct {
	path string
}

func (f *fileAudioInput) Open(ctx context.Context) (readiness.AudioStream, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, readiness.ErrMicrophoneNotFound
		}
		if os.IsPermission(err) {
			return nil, readiness.ErrMicrophoneDenied
		}
		return nil, err
	}
	stream, err := (&readiness.PCMAudioInput{Source: file}).Open(ctx)
	if err != nil {
		file.Close()
		return nil, err
	}
	return stream, nil
}

type stubAudioInput struct{}

func (stubAudioInput) Open(context.Context) (readiness.AudioStream, error) {
	return stubStream{}, nil
}

type stubStream struct{}

func (stubStream) Level() (float64, error) { return 0, nil }
func (stubStream) Close() error            { return nil }
