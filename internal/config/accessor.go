package config

// Sanitize returns a copy of the config with the secret masked, for logging.
func Sanitize(cfg *Config) Config {
	c := *cfg
	c.AllowedIDs = append(IDList(nil), cfg.AllowedIDs...)
	if c.Secret != "" {
		c.Secret = maskString(c.Secret)
	}
	// Slack's app-level token travels in Account.
	if c.Platform == "slack" && c.Account != "" {
		c.Account = maskString(c.Account)
	}
	return c
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
