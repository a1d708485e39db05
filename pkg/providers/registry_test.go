package providers

import (
	"testing"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_CreateAll(t *testing.T) {
	cfg := Config{
		Discord: DiscordConfig{ClientID: "id", ClientSecret: "secret", GuildID: "g"},
		Dev:     DevConfig{Enabled: true},
	}

	adapters, err := NewFactory(cfg, nil).CreateAll()
	require.NoError(t, err)
	require.Len(t, adapters, len(session.KnownProviders))

	for i, p := range session.KnownProviders {
		assert.Equal(t, p, adapters[i].Provider())
	}
	assert.ElementsMatch(t, []session.Provider{session.ProviderDiscord, session.ProviderDev}, Enabled(adapters))

	_, err = session.NewValidator(adapters, session.NewMemoryCache(10, 0), session.ValidatorOptions{Logger: quietLogger()})
	assert.NoError(t, err)
}

func TestFactory_CreateAdapter(t *testing.T) {
	f := NewFactory(Config{}, nil).WithBlueskyClient(&stubSessionClient{})

	a, err := f.CreateAdapter(session.ProviderBluesky)
	require.NoError(t, err)
	assert.IsType(t, &BlueskyAdapter{}, a)
	assert.False(t, a.Enabled())

	_, err = f.CreateAdapter("myspace")
	assert.ErrorIs(t, err, session.ErrUnknownProvider)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty", cfg: Config{}},
		{name: "discord without guild", cfg: Config{Discord: DiscordConfig{ClientID: "a", ClientSecret: "b"}}, wantErr: true},
		{name: "negative dev lifetime", cfg: Config{Dev: DevConfig{TokenLifetime: -1}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				_, err = NewFactory(tt.cfg, nil).CreateAll()
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
