package providers

import (
	"errors"
	"fmt"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
)

var errAdminNoTokens = errors.New("admin sessions carry no tokens")

// Config holds the configuration of every provider
type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Google   GoogleConfig   `yaml:"google"`
	Facebook FacebookConfig `yaml:"facebook"`
	Bluesky  BlueskyConfig  `yaml:"bluesky"`
	Dev      DevConfig      `yaml:"dev"`
	Admin    AdminConfig    `yaml:"admin"`
}

// Validate checks the settings of enabled providers
func (c Config) Validate() error {
	if err := c.Discord.Validate(); err != nil {
		return err
	}
	if c.Dev.TokenLifetime < 0 {
		return fmt.Errorf("dev token_lifetime must not be negative")
	}
	return nil
}

// Factory creates provider adapters from configuration
type Factory struct {
	config   Config
	upstream *Upstream
	bluesky  SessionClient
}

// NewFactory creates a factory. Bluesky sessions are refreshed over XRPC through upstream.
func NewFactory(config Config, upstream *Upstream) *Factory {
	if upstream == nil {
		upstream = NewUpstream(nil, nil)
	}
	return &Factory{
		config:   config,
		upstream: upstream,
		bluesky:  NewXRPCClient(upstream),
	}
}

// WithBlueskyClient replaces the Bluesky session client
func (f *Factory) WithBlueskyClient(client SessionClient) *Factory {
	f.bluesky = client
	return f
}

// CreateAdapter creates the adapter for one provider. Disabled providers still get an
// adapter so sessions issued by them are reported as disabled.
func (f *Factory) CreateAdapter(p session.Provider) (session.Adapter, error) {
	switch p {
	case session.ProviderDiscord:
		return NewDiscordAdapter(f.config.Discord, f.upstream), nil
	case session.ProviderGoogle:
		return NewGoogleAdapter(f.config.Google, f.upstream), nil
	case session.ProviderFacebook:
		return NewFacebookAdapter(f.config.Facebook, f.upstream), nil
	case session.ProviderBluesky:
		return NewBlueskyAdapter(f.config.Bluesky, f.bluesky), nil
	case session.ProviderDev:
		return NewDevAdapter(f.config.Dev), nil
	case session.ProviderAdmin:
		return NewAdminAdapter(f.config.Admin), nil
	default:
		return nil, fmt.Errorf("%w: %s", session.ErrUnknownProvider, p)
	}
}

// CreateAll creates an adapter for every known provider
func (f *Factory) CreateAll() ([]session.Adapter, error) {
	if err := f.config.Validate(); err != nil {
		return nil, err
	}

	adapters := make([]session.Adapter, 0, len(session.KnownProviders))
	for _, p := range session.KnownProviders {
		a, err := f.CreateAdapter(p)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// Enabled lists the providers whose adapters are switched on
func Enabled(adapters []session.Adapter) []session.Provider {
	var out []session.Provider
	for _, a := range adapters {
		if a.Enabled() {
			out = append(out, a.Provider())
		}
	}
	return out
}
