// Package config provides configuration management for jarvis.
//
// # Overview
//
// Configuration is loaded with Viper from a YAML file and environment
// variables. A missing file is created with defaults on first use.
//
// # Configuration File
//
// The default location is ~/.jarvis/config.yaml:
//
//	remote:
//	  provider: gemini
//	  model: gemini-1.5-flash
//	  timeout_sec: 30
//	  context_window: 5
//	  probe_before_dispatch: true
//	probe:
//	  timeout_sec: 5
//	  reachability_url: https://www.google.com
//	classifier:
//	  confidence_threshold: 0.6
//	  retrain_interval: 10
//
// # Environment Variables
//
// Every key can be overridden with the JARVIS_ prefix, nested keys joined by
// underscores:
//   - JARVIS_REMOTE_PROVIDER=openai
//   - JARVIS_CLASSIFIER_CONFIDENCE_THRESHOLD=0.7
//   - JARVIS_LOGGING_LEVEL=debug
//
// API keys may also come from GEMINI_API_KEY, OPENAI_API_KEY and
// WEATHER_API_KEY, typically placed in ~/.jarvis/.env.
package config
