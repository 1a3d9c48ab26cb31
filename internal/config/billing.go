package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig holds the settings an operator may change without a
// restart. It is read from billing.yml under the "billing" key.
type BillingConfig struct {
	PaymentModes     []string `mapstructure:"paymentModes"`
	SearchDebounceMs int      `mapstructure:"searchDebounceMs"`
	SearchPageSize   int      `mapstructure:"searchPageSize"`
	DefaultBillType  string   `mapstructure:"defaultBillType"`
}

func (c BillingConfig) SearchDebounce() time.Duration {
	return time.Duration(c.SearchDebounceMs) * time.Millisecond
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		PaymentModes:     []string{"cash", "card", "upi", "bank_transfer", "cheque"},
		SearchDebounceMs: 300,
		SearchPageSize:   20,
		DefaultBillType:  "opd",
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// NewBillingConfigHolder loads billing.yml and watches it for changes.
// A missing file falls back to DefaultBillingConfig. An invalid reload is
// logged and ignored.
func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	return loadBillingConfig(log, "/etc/clinicdesk", ".")
}

func loadBillingConfig(log *zap.Logger, paths ...string) (*BillingConfigHolder, error) {
	log = log.Named("billing.config")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("CLINICDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.paymentModes", defaults.PaymentModes)
	v.SetDefault("billing.searchDebounceMs", defaults.SearchDebounceMs)
	v.SetDefault("billing.searchPageSize", defaults.SearchPageSize)
	v.SetDefault("billing.defaultBillType", defaults.DefaultBillType)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileLoaded {
		log.Info("billing.yml not found, using defaults")
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBillingConfig(v)
		if err != nil {
			log.Warn("billing config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	// Keys missing from the file keep their defaults. The slice is
	// cleared first because decoding into it would keep trailing defaults.
	cfg := DefaultBillingConfig()
	cfg.PaymentModes = nil
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return BillingConfig{}, err
	}
	if cfg.PaymentModes == nil {
		cfg.PaymentModes = DefaultBillingConfig().PaymentModes
	}
	cfg.PaymentModes = normalizeModes(cfg.PaymentModes)
	cfg.DefaultBillType = strings.ToLower(strings.TrimSpace(cfg.DefaultBillType))
	if err := validateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func normalizeModes(modes []string) []string {
	out := make([]string, 0, len(modes))
	seen := make(map[string]struct{}, len(modes))
	for _, m := range modes {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func validateBillingConfig(cfg BillingConfig) error {
	if len(cfg.PaymentModes) == 0 {
		return errors.New("billing.paymentModes cannot be empty")
	}
	if cfg.SearchDebounceMs < 0 {
		return errors.New("billing.searchDebounceMs cannot be negative")
	}
	if cfg.SearchPageSize < 1 || cfg.SearchPageSize > 250 {
		return errors.New("billing.searchPageSize must be between 1 and 250")
	}
	switch cfg.DefaultBillType {
	case "opd", "ipd":
	default:
		return errors.New("billing.defaultBillType must be opd or ipd")
	}
	return nil
}
