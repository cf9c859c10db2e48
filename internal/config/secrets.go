package config

// RedactedConfig returns a copy of cfg with credentials replaced by "***" so
// the active configuration can be logged safely.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Kalshi.ApiKey)
	redact(&out.XAI.ApiKey)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Scalper.SportsData.ApiKey)
	redact(&out.Scalper.OddsAPI.ApiKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Slices share backing arrays with the original; copy the ones a caller
	// might reasonably mutate.
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Scalper.Routes != nil {
		out.Scalper.Routes = make([]RouteConfig, len(cfg.Scalper.Routes))
		for i, r := range cfg.Scalper.Routes {
			r.Keywords = append([]string(nil), r.Keywords...)
			out.Scalper.Routes[i] = r
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
