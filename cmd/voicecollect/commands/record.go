package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/haivivi/voicecollect/cmd/voicecollect/internal/config"
	"github.com/haivivi/voicecollect/pkg/assets"
	"github.com/haivivi/voicecollect/pkg/audio/portaudio"
	"github.com/haivivi/voicecollect/pkg/audio/wav"
	"github.com/haivivi/voicecollect/pkg/cli"
	"github.com/haivivi/voicecollect/pkg/metrics"
	"github.com/haivivi/voicecollect/pkg/playback"
	"github.com/haivivi/voicecollect/pkg/storage"
	"github.com/haivivi/voicecollect/pkg/wizard"
)

var (
	recordContext     string
	recordAffiliated  bool
	recordOrg         string
	recordCategory    string
	recordPhrase      string
	recordDuration    int
	recordDryRun      string
	recordSamples     string
	recordMetricsAddr string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a pronunciation sample and upload it",
	Long: `Run the collection wizard in the terminal.

Steps:
  Info    who is recording and which phrase
  Sample  listen to the reference pronunciation
  Record  record your own take, listen back, retake or upload
  Success the upload location

Metadata flags pre-fill the Info step; missing fields are prompted for.
With --dry-run recordings are written under a local directory instead of
the configured storage.

Examples:
  voicecollect record
  voicecollect record -c prod --category male --phrase hello
  voicecollect record --affiliated --org Acme --category female --phrase thanks
  voicecollect record --dry-run ./out --samples ./samples --metrics-addr :9090`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	f := recordCmd.Flags()
	f.StringVarP(&recordContext, "context", "c", "", "context name (default: current context)")
	f.BoolVar(&recordAffiliated, "affiliated", false, "record on behalf of an organization")
	f.StringVar(&recordOrg, "org", "", "organization name (implies --affiliated)")
	f.StringVar(&recordCategory, "category", "", "speaker category, e.g. female")
	f.StringVar(&recordPhrase, "phrase", "", "word or phrase to record")
	f.IntVar(&recordDuration, "duration", 0, "recording length in seconds (default from recorder config)")
	f.StringVar(&recordDryRun, "dry-run", "", "write recordings under this directory instead of uploading")
	f.StringVar(&recordSamples, "samples", "", "reference sample directory (overrides assets config)")
	f.StringVar(&recordMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.AddCommand(recordCmd)
}

// recordSettings is everything record needs from the context and flags.
type recordSettings struct {
	storage  *config.StorageConfig
	assets   config.AssetsConfig
	recorder config.RecorderConfig
}

func loadRecordSettings(cfg *config.Config) (*recordSettings, error) {
	var s recordSettings
	contextDir, ctxErr := cfg.ResolveContext(recordContext)
	needContext := recordDryRun == "" || recordSamples == ""
	if ctxErr != nil && needContext {
		return nil, ctxErr
	}

	if ctxErr == nil {
		rc, err := config.LoadOptionalService[config.RecorderConfig](contextDir, config.ServiceRecorder)
		if err != nil {
			return nil, err
		}
		s.recorder = *rc

		ac, err := config.LoadOptionalService[config.AssetsConfig](contextDir, config.ServiceAssets)
		if err != nil {
			return nil, err
		}
		s.assets = ac.Resolve(contextDir)
	}
	if recordDuration != 0 {
		s.recorder.Duration = recordDuration
	}
	if err := s.recorder.Validate(); err != nil {
		return nil, err
	}
	s.recorder = s.recorder.WithDefaults()

	if recordSamples != "" {
		s.assets = config.AssetsConfig{SampleDir: recordSamples}
	}
	if err := s.assets.Validate(); err != nil {
		return nil, fmt.Errorf("%w (set it with 'voicecollect config set <context> assets sample_dir <dir>' or --samples)", err)
	}

	if recordDryRun != "" {
		s.storage = &config.StorageConfig{Backend: config.BackendLocal, LocalDir: recordDryRun}
		return &s, nil
	}
	sc, err := loadStorageConfig(contextDir)
	if err != nil {
		return nil, err
	}
	s.storage = sc
	return &s, nil
}

// loadStorageConfig reads the storage service of a context with environment
// overrides applied.
func loadStorageConfig(contextDir string) (*config.StorageConfig, error) {
	sc, err := config.LoadService[config.StorageConfig](contextDir, config.ServiceStorage)
	if err != nil {
		return nil, err
	}
	sc.ApplyEnv(os.Getenv)
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// newObjectStore builds the upload backend described by sc.
func newObjectStore(sc *config.StorageConfig) (storage.ObjectStore, error) {
	if sc.BackendName() == config.BackendLocal {
		return storage.NewLocal(sc.LocalDir)
	}
	ttl, err := sc.PresignDuration()
	if err != nil {
		return nil, err
	}
	client := newS3Client(sc)
	return storage.NewS3(client, storage.S3Options{
		Bucket:        sc.Bucket,
		Prefix:        sc.Prefix,
		PublicBaseURL: sc.PublicBaseURL,
		Presigner:     s3.NewPresignClient(client),
		PresignTTL:    ttl,
	}), nil
}

func newS3Client(sc *config.StorageConfig) *s3.Client {
	opts := s3.Options{
		Region:       sc.Region,
		UsePathStyle: sc.PathStyle,
	}
	if sc.Endpoint != "" {
		opts.BaseEndpoint = aws.String(sc.Endpoint)
	}
	if sc.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     sc.AccessKeyID,
			SecretAccessKey: sc.SecretAccessKey,
			SessionToken:    sc.SessionToken,
			Source:          "voicecollect",
		}
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		})
	}
	return s3.New(opts)
}

func newSampleLibrary(ac config.AssetsConfig) (*assets.Catalog, error) {
	if ac.Catalog != "" {
		return assets.Load(ac.Catalog)
	}
	return assets.NewDir(ac.SampleDir), nil
}

// serveMetrics serves m on addr until the returned stop function is called.
func serveMetrics(addr string, m *metrics.Metrics, log *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics: server failed", "addr", addr, "error", err)
		}
	}()
	log.Info("metrics: serving", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	settings, err := loadRecordSettings(cfg)
	if err != nil {
		return err
	}
	log := slog.Default()

	store, err := newObjectStore(settings.storage)
	if err != nil {
		return err
	}
	samples, err := newSampleLibrary(settings.assets)
	if err != nil {
		return err
	}

	m := metrics.New()
	if recordMetricsAddr != "" {
		stop := serveMetrics(recordMetricsAddr, m, log)
		defer stop()
	}

	printer := &cli.Printer{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr(), Styles: cli.NewStyles(cli.DefaultTheme)}

	opts := wizard.Options{
		Microphone: &portaudio.Microphone{
			Format: wav.Format{SampleRate: settings.recorder.SampleRate, Channels: 1, BitsPerSample: 16},
		},
		Player:         playback.NewController(&portaudio.Speaker{}, log),
		Samples:        samples,
		Uploader:       storage.NewSink(store, storage.SinkOptions{Logger: log, Metrics: m}),
		Metrics:        m,
		RecordDuration: settings.recorder.Duration,
		Logger:         log,
	}
	if l, closeLedger, err := openLedger(cfg); err != nil {
		printer.Warn("submissions will not be recorded locally: %v", err)
	} else {
		defer closeLedger()
		opts.Journal = l
	}

	ui := newRecordUI(printer, readLines(cmd.InOrStdin()))
	ui.preset = presetMetadata()
	opts.OnEvent = ui.onEvent
	ui.w = wizard.New(opts)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if recordDryRun != "" {
		printer.Info("dry run: recordings are written under %s", recordDryRun)
	}
	err = ui.run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// presetMetadata returns the metadata given on the command line, or nil
// when no metadata flag was set.
func presetMetadata() *wizard.Metadata {
	if !recordAffiliated && recordOrg == "" && recordCategory == "" && recordPhrase == "" {
		return nil
	}
	return &wizard.Metadata{
		Affiliated:   recordAffiliated || recordOrg != "",
		Organization: recordOrg,
		Category:     recordCategory,
		Phrase:       recordPhrase,
	}
}
