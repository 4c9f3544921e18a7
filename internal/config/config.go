package config

// Config holds all application configuration.
type Config struct {
	Logs   Logs   `mapstructure:"logs"`
	Report Report `mapstructure:"report"`
}

// Logs controls how log files are discovered inside a directory.
type Logs struct {
	Patterns []string `mapstructure:"patterns"`
}

// Report controls console output.
type Report struct {
	NoColor bool `mapstructure:"no_color"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Logs: Logs{
			Patterns: []string{"log*.ndjson", "log*.ndjson.gz"},
		},
		Report: Report{
			NoColor: false,
		},
	}
}
