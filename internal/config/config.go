// Package config loads server and client settings from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Server struct {
	Addr        string        `env:"CALLGLUE_ADDR" envDefault:":8080"`
	AppID       string        `env:"CALLGLUE_APP_ID" envDefault:"callglue-dev"`
	TokenSecret string        `env:"CALLGLUE_TOKEN_SECRET" envDefault:"dev-secret-change-me"`
	TokenTTL    time.Duration `env:"CALLGLUE_TOKEN_TTL" envDefault:"1h"`
	CSRFToken   string        `env:"CALLGLUE_CSRF_TOKEN"`
}

func LoadServer() (Server, error) {
	var c Server
	if err := env.Parse(&c); err != nil {
		return Server{}, err
	}
	return c, nil
}

type Client struct {
	ServerURL string `env:"CALLGLUE_SERVER_URL" envDefault:"http://localhost:8080"`
	UserID    int64  `env:"CALLGLUE_USER_ID"`
	UserName  string `env:"CALLGLUE_USER_NAME"`
	CSRFToken string `env:"CALLGLUE_CSRF_TOKEN"`
}

func LoadClient() (Client, error) {
	var c Client
	if err := env.Parse(&c); err != nil {
		return Client{}, err
	}
	return c, nil
}
