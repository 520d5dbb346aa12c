// Package settings persists the assistant's preferences and its API key.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Setting keys as exchanged with the content side
const (
	KeyModel         = "model"
	KeyResponseStyle = "responseStyle"
	KeyLanguage      = "language"
)

const (
	DefaultModel         = "gpt-4o"
	DefaultResponseStyle = "Responda de forma natural e contextual, mantendo o tom da conversa. Use português brasileiro e seja amigável."
	DefaultLanguage      = "pt"
)

// Settings are the user's assistant preferences
type Settings struct {
	Model         string `mapstructure:"model"`
	ResponseStyle string `mapstructure:"response_style"`
	Language      string `mapstructure:"language"`
}

// Map returns the settings keyed as the content side expects
func (s Settings) Map() map[string]string {
	return map[string]string{
		KeyModel:         s.Model,
		KeyResponseStyle: s.ResponseStyle,
		KeyLanguage:      s.Language,
	}
}

// Store is a settings file
type Store struct {
	path string

	mu sync.Mutex
	v  *viper.Viper
}

// Open reads the settings file at path. A missing file yields the defaults.
func Open(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("model", DefaultModel)
	v.SetDefault("response_style", DefaultResponseStyle)
	v.SetDefault("language", DefaultLanguage)

	if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return &Store{path: path, v: v}, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// Path returns the settings file location
func (s *Store) Path() string {
	return s.path
}

// Load returns the current settings
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Settings
	if err := s.v.Unmarshal(&out); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}

// Get returns one setting by its content-side key
func (s *Store) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case KeyResponseStyle:
		return s.v.GetString("response_style")
	default:
		return s.v.GetString(key)
	}
}

// Save writes settings to disk. Empty fields keep their current value.
func (s *Store) Save(in Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.Model != "" {
		s.v.Set("model", in.Model)
	}
	if in.ResponseStyle != "" {
		s.v.Set("response_style", in.ResponseStyle)
	}
	if in.Language != "" {
		s.v.Set("language", in.Language)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
