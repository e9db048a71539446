// Package config provides 12-factor configuration for the app runtime.
//
// Configuration is loaded from environment variables with sensible defaults.
//
// Configuration Sections:
//   - Server: management HTTP server settings (port, host)
//   - Registry: installed-app table bound and data directories
//   - Sandbox: pool size, default quotas, unclassified-resource policy
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting for the management API
//
// Environment Variables:
//   - PORT, HOST, MAX_APPS, DATA_DIR, APPS_DIR
//   - SANDBOX_POOL_SIZE, SANDBOX_MEMORY_LIMIT, SANDBOX_TIME_LIMIT_MS,
//     SANDBOX_ALLOW_UNCLASSIFIED
//   - LOG_LEVEL, LOG_DEV, RATE_LIMIT_RPS, RATE_LIMIT_BURST
package config
