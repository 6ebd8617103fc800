package mqtt

import (
	"time"

	"codeberg.org/mutker/cyclewatch/internal/errors"
)

const (
	defaultClientID        = "cyclewatch"
	defaultBaseTopic       = "cyclewatch"
	defaultDiscoveryPrefix = "homeassistant"
	defaultConnectTimeout  = 10 * time.Second
	defaultKeepAlive       = 60 * time.Second

	// Messages buffered while the broker is unreachable.
	defaultBufferSize = 256
)

type Config struct {
	Broker          string
	ClientID        string
	Username        string
	Password        string
	BaseTopic       string
	DiscoveryPrefix string
}

func DefaultConfig() Config {
	return Config{
		ClientID:        defaultClientID,
		BaseTopic:       defaultBaseTopic,
		DiscoveryPrefix: defaultDiscoveryPrefix,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Broker == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "broker address must not be empty")
	}
	if c.ClientID == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "client id must not be empty")
	}
	if c.BaseTopic == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "base topic must not be empty")
	}

	return nil
}
