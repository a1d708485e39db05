// Package config loads application configuration.
//
// # Sources
//
// Values are layered, later sources winning:
//
//  1. built-in defaults (Default)
//  2. the YAML file named by FACTINDEX_CONFIG_FILE
//  3. environment variables, after .env_tacc or .env has been loaded
//
// # Provider Settings
//
// Provider variables keep the names the web application already uses:
//
//	DISCORD_CLIENT_ID, DISCORD_CLIENT_SECRET, DISCORD_CALLBACK_URL
//	DISCORD_GUILD_ID
//	DISCORD_ROLE_ID="111,222"        # any one role grants access
//	GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, GOOGLE_CALLBACK_URL
//	GOOGLE_ALLOWED_DOMAINS="example.org"
//	FACEBOOK_APP_ID, FACEBOOK_APP_SECRET, FACEBOOK_CALLBACK_URL
//	FACEBOOK_GROUPS_CHECK="123,456"  # all groups required
//	Bluesky_OAUTH_CLIENT_METADATA_URL, Bluesky_OAUTH_JWKS_URL, Bluesky_OAUTH_PRIVATE_KEY
//	Bluesky_OAUTH_KEY_PAIR_ID, Bluesky_OAUTH_CALLBACK_URL
//	DEV_LOGIN_MODE=TRUE, DEV_ID, DEV_USERNAME, DEV_AVATAR
//	ADMIN_ENABLED=true
//
// # Service Settings
//
//	PORT="16261"
//	FACTINDEX_HEALTH_PORT="9090"
//	FACTINDEX_SESSION_STORE="redis"  # memory, redis, postgres, sqlite
//	FACTINDEX_REDIS_URL="redis://localhost:6379/0"
//	FACTINDEX_DATABASE_URL="postgres://localhost/factindex?sslmode=disable"
//	FACTINDEX_SESSION_SWEEP_SCHEDULE="@every 15m"
//	FACTINDEX_CACHE_BACKEND="redis"  # memory, redis
//	FACTINDEX_CACHE_TTL="5m"
//	FACTINDEX_UPSTREAM_TIMEOUT="10s"
//	FACTINDEX_LOG_LEVEL="info"
//	FACTINDEX_OTEL_ENABLED="true"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
