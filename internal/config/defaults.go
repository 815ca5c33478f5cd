package config

func Defaults() *Config {
	return &Config{
		Platform:       "telegram",
		Verbose:        true,
		Mute:           true,
		RevealSenderID: false,
		AllowAll:       true,
		AllowedIDs:     IDList{},
		Program:        "jarvis",
	}
}
