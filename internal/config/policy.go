package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RefundMode controls what happens to escrowed contributions when an
// active pool is cancelled.
type RefundMode string

const (
	RefundModeRefund  RefundMode = "refund"
	RefundModeForfeit RefundMode = "forfeit"
)

// Policy holds business-policy knobs that product may tune without a
// redeploy.
type Policy struct {
	// CancellationRefund decides whether cancelling an active pool
	// returns current-cycle escrow to members or sweeps it to the
	// treasury.
	CancellationRefund RefundMode `mapstructure:"cancellationRefund"`

	MinMembers      int `mapstructure:"minMembers"`
	MaxMembersOpen  int `mapstructure:"maxMembersOpen"`
	MaxMembersVault int `mapstructure:"maxMembersVault"`

	MaxFeeBps int64 `mapstructure:"maxFeeBps"`
}

func DefaultPolicy() Policy {
	return Policy{
		CancellationRefund: RefundModeRefund,
		MinMembers:         2,
		MaxMembersOpen:     50,
		MaxMembersVault:    20,
		MaxFeeBps:          10_000,
	}
}

// PolicyHolder serves the current policy and hot-reloads it from disk.
type PolicyHolder struct {
	current atomic.Value // holds Policy
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/susu/config")
	v.AddConfigPath("/etc/susu")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SUSU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("policy.cancellationRefund", string(defaults.CancellationRefund))
	v.SetDefault("policy.minMembers", defaults.MinMembers)
	v.SetDefault("policy.maxMembersOpen", defaults.MaxMembersOpen)
	v.SetDefault("policy.maxMembersVault", defaults.MaxMembersVault)
	v.SetDefault("policy.maxFeeBps", defaults.MaxFeeBps)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var policy Policy
	if err := v.UnmarshalKey("policy", &policy); err != nil {
		return nil, err
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Printf("[policy] reload failed: %v", err)
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Printf("[policy] invalid policy ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPolicyHolder returns a holder pinned to the given policy.
// Intended for tests.
func NewStaticPolicyHolder(policy Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

func validatePolicy(policy Policy) error {
	switch policy.CancellationRefund {
	case RefundModeRefund, RefundModeForfeit:
	default:
		return errors.New("policy.cancellationRefund must be refund or forfeit")
	}
	if policy.MinMembers < 2 {
		return errors.New("policy.minMembers must be at least 2")
	}
	if policy.MaxMembersOpen < policy.MinMembers {
		return errors.New("policy.maxMembersOpen below minMembers")
	}
	if policy.MaxMembersVault < policy.MinMembers || policy.MaxMembersVault > policy.MaxMembersOpen {
		return errors.New("policy.maxMembersVault out of range")
	}
	if policy.MaxFeeBps < 0 || policy.MaxFeeBps > 10_000 {
		return errors.New("policy.maxFeeBps out of range")
	}
	return nil
}
