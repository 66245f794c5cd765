package domain

import (
	"fmt"
	"time"
)

const (
	DefaultWindow      = 15 * time.Minute
	DefaultMaxRequests = 100
	DefaultMessage     = "Too many requests, please try again later."
)

// Policy é a configuração imutável de um limiter de janela fixa.
type Policy struct {
	Window      time.Duration `mapstructure:"window" json:"window"`
	MaxRequests int64         `mapstructure:"max_requests" json:"max_requests"`
	Message     string        `mapstructure:"message" json:"message"`
}

func DefaultPolicy() Policy {
	return Policy{
		Window:      DefaultWindow,
		MaxRequests: DefaultMaxRequests,
		Message:     DefaultMessage,
	}
}

// WithDefaults preenche apenas os campos ausentes (zero).
// Valores negativos são mantidos para que Validate os rejeite.
func (p Policy) WithDefaults() Policy {
	if p.Window == 0 {
		p.Window = DefaultWindow
	}
	if p.MaxRequests == 0 {
		p.MaxRequests = DefaultMaxRequests
	}
	if p.Message == "" {
		p.Message = DefaultMessage
	}
	return p
}

func (p Policy) Validate() error {
	if p.Window <= 0 {
		return fmt.Errorf("window must be > 0, got %s: %w", p.Window, ErrInvalidConfig)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be > 0, got %d: %w", p.MaxRequests, ErrInvalidConfig)
	}
	return nil
}
