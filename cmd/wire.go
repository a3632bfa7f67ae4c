package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/frhnm/tgfleet/internal/adapters/memory"
	"github.com/frhnm/tgfleet/internal/adapters/notify"
	tomlrepo "github.com/frhnm/tgfleet/internal/adapters/repo/toml"
	filestore "github.com/frhnm/tgfleet/internal/adapters/secrets/file"
	"github.com/frhnm/tgfleet/internal/bulk"
	"github.com/frhnm/tgfleet/internal/convo"
	"github.com/frhnm/tgfleet/internal/lifecycle"
	"github.com/frhnm/tgfleet/internal/logging"
	"github.com/frhnm/tgfleet/internal/monitor"
	"github.com/frhnm/tgfleet/internal/ports"
	"github.com/frhnm/tgfleet/internal/registry"
)

type app struct {
	cfg       *viper.Viper
	logger    *slog.Logger
	closeLogs func() error

	registry  *registry.Registry
	accounts  ports.AccountRepository
	secrets   ports.SecretStore
	dialer    ports.Dialer
	notifier  ports.Notifier
	lifecycle *lifecycle.Manager
	executor  *bulk.Executor
	tracker   *convo.Tracker
	monitor   *monitor.Monitor
}

func wireApp() (*app, error) {
	cfg := viper.New()
	cfg.SetEnvPrefix("TGFLEET")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()
	cfg.SetDefault("bulk.concurrency", 3)
	cfg.SetDefault("bulk.pacing_min", "1s")
	cfg.SetDefault("bulk.pacing_max", "3s")
	cfg.SetDefault("bulk.retry_attempts", 3)
	cfg.SetDefault("vendor.transport", "offline")

	repo, err := tomlrepo.NewRepository(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire account repository: %w", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	secretsPath := cfg.GetString("secrets.path")
	if secretsPath == "" {
		secretsPath = filepath.Join(homeDir, ".tgfleet", "secrets")
	}
	secrets := filestore.NewStore(secretsPath)

	logger, closeLogs := logging.New(logging.Config{
		Dir:   cfg.GetString("log.dir"),
		Level: cfg.GetString("log.level"),
	})

	dialer, err := wireDialer(cfg)
	if err != nil {
		return nil, err
	}

	var notifier ports.Notifier = ports.NopNotifier{}
	token := cfg.GetString("telegram.bot_token")
	channelID := cfg.GetInt64("telegram.channel_id")
	if token != "" && channelID != 0 {
		channelNotifier, err := notify.NewChannelNotifier(token, channelID)
		if err != nil {
			return nil, fmt.Errorf("wire operator channel notifier: %w", err)
		}
		notifier = channelNotifier
	}

	reg := registry.New()
	manager := lifecycle.NewManager(reg, repo, secrets, dialer, notifier, logger, ports.SystemClock{})
	executor := bulk.NewExecutor(reg, manager, logger, bulk.Config{
		MaxConcurrent: cfg.GetInt64("bulk.concurrency"),
		PacingMin:     cfg.GetDuration("bulk.pacing_min"),
		PacingMax:     cfg.GetDuration("bulk.pacing_max"),
		Retry: bulk.RetryPolicy{
			MaxAttempts: cfg.GetInt("bulk.retry_attempts"),
		},
	})

	tracker := convo.NewTracker(logger)
	mon := monitor.New(monitor.Config{
		Keywords:    cfg.GetStringSlice("monitor.keywords"),
		IgnoreUsers: int64Slice(cfg.GetIntSlice("monitor.ignore_users")),
		ChannelID:   channelID,
	}, notifier, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		closeLogs: closeLogs,
		registry:  reg,
		accounts:  repo,
		secrets:   secrets,
		dialer:    dialer,
		notifier:  notifier,
		lifecycle: manager,
		executor:  executor,
		tracker:   tracker,
		monitor:   mon,
	}, nil
}

// wireDialer selects the vendor transport. The only transport bundled with
// this repository is the in-process offline one; a real vendor binding
// plugs in here.
func wireDialer(cfg *viper.Viper) (ports.Dialer, error) {
	transport := cfg.GetString("vendor.transport")
	switch transport {
	case "offline":
		return memory.NewDialer(), nil
	default:
		return nil, fmt.Errorf("unsupported vendor transport %q", transport)
	}
}

func (a *app) close() error {
	if a.closeLogs == nil {
		return nil
	}
	return a.closeLogs()
}

func int64Slice(values []int) []int64 {
	result := make([]int64, 0, len(values))
	for _, v := range values {
		result = append(result, int64(v))
	}
	return result
}
