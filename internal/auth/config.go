package auth

import "time"

// DefaultTokenTTL - срок жизни токена, выданного сидером
const DefaultTokenTTL = 30 * 24 * time.Hour

type Config struct {
	JWTSecret string        `mapstructure:"JWTSecret" validate:"required,min=16"`
	TokenTTL  time.Duration `mapstructure:"TokenTTL" validate:"gte=0"`
	Issuer    string        `mapstructure:"Issuer"`
}
