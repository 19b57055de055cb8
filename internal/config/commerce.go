package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CommercePolicy carries the tunable business constants of order placement.
type CommercePolicy struct {
	// TaxRateBasisPoints is the tax rate applied on subtotals (1800 = 18%).
	TaxRateBasisPoints            int64    `mapstructure:"taxRateBasisPoints"`
	MaxActiveSubscriptionsPerUser int      `mapstructure:"maxActiveSubscriptionsPerUser"`
	DefaultCurrency               string   `mapstructure:"defaultCurrency"`
	QuoteCategories               []string `mapstructure:"quoteCategories"`
}

func DefaultCommercePolicy() CommercePolicy {
	return CommercePolicy{
		TaxRateBasisPoints:            1800,
		MaxActiveSubscriptionsPerUser: 5,
		DefaultCurrency:               "INR",
		QuoteCategories:               []string{"Design", "Development"},
	}
}

// CommerceHolder exposes the current policy; the value is swapped on file change.
type CommerceHolder struct {
	current atomic.Value // holds CommercePolicy
}

// NewStaticCommerceHolder returns a holder pinned to policy.
func NewStaticCommerceHolder(policy CommercePolicy) *CommerceHolder {
	holder := &CommerceHolder{}
	holder.current.Store(policy)
	return holder
}

func NewCommerceHolder(cfg Config, log *zap.Logger) (*CommerceHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.commerce")

	v := viper.New()
	defaults := DefaultCommercePolicy()
	v.SetDefault("commerce.taxRateBasisPoints", defaults.TaxRateBasisPoints)
	v.SetDefault("commerce.maxActiveSubscriptionsPerUser", defaults.MaxActiveSubscriptionsPerUser)
	v.SetDefault("commerce.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("commerce.quoteCategories", defaults.QuoteCategories)

	if cfg.CommerceConfigPath != "" {
		v.SetConfigFile(cfg.CommerceConfigPath)
	} else {
		v.SetConfigName("commerce")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/servicehub")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SERVICEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read commerce config: %w", err)
		}
		fileLoaded = false
	}

	policy, err := decodeCommercePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticCommerceHolder(policy)

	if fileLoaded {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeCommercePolicy(v)
			if err != nil {
				log.Warn("commerce config reload rejected", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("commerce config reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *CommerceHolder) Get() CommercePolicy {
	if h == nil {
		return DefaultCommercePolicy()
	}
	return h.current.Load().(CommercePolicy)
}

func decodeCommercePolicy(v *viper.Viper) (CommercePolicy, error) {
	var policy CommercePolicy
	if err := v.UnmarshalKey("commerce", &policy); err != nil {
		return CommercePolicy{}, fmt.Errorf("decode commerce config: %w", err)
	}
	policy.DefaultCurrency = strings.ToUpper(strings.TrimSpace(policy.DefaultCurrency))
	if err := ValidateCommercePolicy(policy); err != nil {
		return CommercePolicy{}, err
	}
	return policy, nil
}

func ValidateCommercePolicy(policy CommercePolicy) error {
	if policy.TaxRateBasisPoints < 0 || policy.TaxRateBasisPoints > 10000 {
		return errors.New("commerce.taxRateBasisPoints must be within 0..10000")
	}
	if policy.MaxActiveSubscriptionsPerUser < 1 {
		return errors.New("commerce.maxActiveSubscriptionsPerUser must be positive")
	}
	if len(policy.DefaultCurrency) != 3 {
		return errors.New("commerce.defaultCurrency must be an ISO 4217 code")
	}
	return nil
}
