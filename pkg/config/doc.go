// Package config provides configuration utilities for the second-factor service.
//
// It centralizes environment variable loading with type conversion and
// defaults, database connection settings, second-factor policy settings
// (lockout thresholds, device trust lifetime, backup-code counts), and Duo
// credentials.
//
// Durations accept both ISO 8601 ("PT15M", "P30D") and Go ("15m", "720h")
// formats; the ISO form matches how deployments have historically expressed
// policy windows.
//
//	policy := config.NewTwoFactorConfigFromEnv()
//	window, err := policy.ParseLockoutWindow()
//
//	db := config.NewDatabaseConfigFromEnv()
//	pool, err := pgxpool.New(ctx, db.ToDatabaseURL())
package config
