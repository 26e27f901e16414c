// Package config handles configuration loading, parsing, and validation
// from defaults, an optional config file, dotenv files, environment variables
// (DISPATCH_ prefix) and command-line flags. Values are decoded with viper
// and checked with validator struct tags.
package config
