package config

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

// answers holds what the wizard collected before it is applied to a Config.
type answers struct {
	Port      int
	DBPath    string
	LogFormat string
	PushURL   string
	PushKey   string
	SMTPHost  string
	SMTPPort  int
	EmailFrom string
	SMSURL    string
	RedisURL  string
}

// apply copies the collected answers onto cfg. Empty gateway answers leave
// the channel on its log fallback.
func (a answers) apply(cfg *Config) {
	if a.Port > 0 {
		cfg.Server.Port = a.Port
	}
	if a.DBPath != "" {
		cfg.Database.Path = a.DBPath
	}
	if a.LogFormat != "" {
		cfg.Log.Format = a.LogFormat
	}
	cfg.Channels.Push.URL = a.PushURL
	cfg.Channels.Push.APIKey = a.PushKey
	cfg.Channels.Email.Host = a.SMTPHost
	if a.SMTPHost != "" {
		cfg.Channels.Email.Port = a.SMTPPort
		cfg.Channels.Email.From = a.EmailFrom
	}
	cfg.Channels.SMS.URL = a.SMSURL
	cfg.Redis.URL = a.RedisURL
}

// RunWizard runs an interactive configuration wizard, saves the result to
// path and returns it.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to notifyd! Let's configure delivery.")
	fmt.Println("Leave a gateway blank to log that channel instead of sending.")
	fmt.Println()

	cfg := DefaultConfig()
	var a answers
	var err error

	if a.Port, err = promptInt("HTTP port", cfg.Server.Port); err != nil {
		return nil, err
	}
	if a.DBPath, err = prompt("SQLite database path", cfg.Database.Path); err != nil {
		return nil, err
	}

	formatPrompt := promptui.Select{
		Label: "Log format",
		Items: []string{"console", "json"},
	}
	if _, a.LogFormat, err = formatPrompt.Run(); err != nil {
		return nil, fmt.Errorf("log format: %w", err)
	}

	if a.PushURL, err = prompt("Push gateway URL", ""); err != nil {
		return nil, err
	}
	if a.PushURL != "" {
		if a.PushKey, err = prompt("Push gateway API key", ""); err != nil {
			return nil, err
		}
	}

	if a.SMTPHost, err = prompt("SMTP host", ""); err != nil {
		return nil, err
	}
	if a.SMTPHost != "" {
		if a.SMTPPort, err = promptInt("SMTP port", 587); err != nil {
			return nil, err
		}
		if a.EmailFrom, err = prompt("From address", "notifications@localhost"); err != nil {
			return nil, err
		}
	}

	if a.SMSURL, err = prompt("SMS gateway URL", ""); err != nil {
		return nil, err
	}
	if a.RedisURL, err = prompt("Redis URL (blank for single instance)", ""); err != nil {
		return nil, err
	}

	a.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	if cfg.Channels.Email.Host != "" && cfg.Channels.Email.Password == "" {
		fmt.Println("Note: set NOTIFYD_CHANNELS__EMAIL__PASSWORD if your SMTP server needs auth.")
	}
	return cfg, nil
}

func prompt(label, def string) (string, error) {
	p := promptui.Prompt{Label: label, Default: def}
	v, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("%s: %w", label, err)
	}
	return v, nil
}

func promptInt(label string, def int) (int, error) {
	p := promptui.Prompt{
		Label:   label,
		Default: strconv.Itoa(def),
		Validate: func(s string) error {
			if _, err := strconv.Atoi(s); err != nil {
				return fmt.Errorf("must be a number")
			}
			return nil
		},
	}
	v, err := p.Run()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", label, err)
	}
	n, _ := strconv.Atoi(v)
	return n, nil
}
