package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from in and writing prompts to out
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for the settings needed to start the bot, starting from base.
func (w *Wizard) Run(base *Config) (*Config, error) {
	cfg := base
	if cfg == nil {
		cfg = DefaultConfig()
	}
	validator := NewValidator()

	w.println("=== kodok configuration ===")
	w.println("")

	token, err := w.askValid("Telegram Bot Token", cfg.Telegram.BotToken, validator.ValidateTelegramToken)
	if err != nil {
		return nil, err
	}
	cfg.Telegram.BotToken = token

	provider, err := w.askValid("AI provider (anthropic/openai)", cfg.AI.Provider, func(p string) error {
		if p != "anthropic" && p != "openai" {
			return fmt.Errorf("unknown provider: %s", p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	cfg.AI.Provider = provider

	key, err := w.askValid("API key", cfg.AI.APIKey, func(k string) error {
		return validator.ValidateAPIKey(k, provider)
	})
	if err != nil {
		return nil, err
	}
	cfg.AI.APIKey = key

	model, err := w.ask("Model", cfg.AI.Model)
	if err != nil {
		return nil, err
	}
	cfg.AI.Model = model

	w.println("")
	chat, err := w.ask("Question-of-the-day chat ID (empty disables)", formatChatID(cfg.QOTD.ChatID))
	if err != nil {
		return nil, err
	}
	if chat == "" {
		cfg.QOTD.Enabled = false
		cfg.QOTD.ChatID = 0
	} else {
		id, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat ID %q: %w", chat, err)
		}
		cfg.QOTD.Enabled = true
		cfg.QOTD.ChatID = id
	}

	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		w.println(fmt.Sprintf("Warning: %v, using info", err))
		level = "info"
	}
	cfg.Logging.Level = level

	w.println("")
	w.println("Configuration complete!")
	return cfg, nil
}

// askValid repeats the prompt until validate accepts the answer.
func (w *Wizard) askValid(prompt, current string, validate func(string) error) (string, error) {
	for {
		answer, err := w.ask(prompt, current)
		if err != nil {
			return "", err
		}
		if err := validate(answer); err != nil {
			w.println(fmt.Sprintf("Error: %v", err))
			continue
		}
		return answer, nil
	}
}

func (w *Wizard) ask(prompt, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, mask(current))
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}

	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return current, nil
	}
	return line, nil
}

func (w *Wizard) println(s string) {
	fmt.Fprintln(w.out, s)
}

func formatChatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// mask hides all but the last four characters of long values.
func mask(s string) string {
	if len(s) <= 12 {
		return s
	}
	return strings.Repeat("*", 8) + s[len(s)-4:]
}
