// Package config loads the operate configuration.
//
// Values come from a YAML file, a .env file and OPERATE_* environment
// variables, in increasing order of precedence. Nested keys map to
// underscore-separated variable names:
//
//	OPERATE_EXECUTOR_MEMO_LIMIT=5000
//	OPERATE_EXTERNAL_GRACE_PERIOD=500ms
//	OPERATE_LOGGING_LEVEL=debug
//
// # Usage
//
//	var cfg config.Config
//	if err := config.Load("operate", &cfg, config.WithConfigFile(path)); err != nil {
//	    return err
//	}
//	cfg.ApplyDefaults()
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
