package ngrok

import (
	"context"
	"fmt"

	"cadence/internal/config"

	"github.com/sirupsen/logrus"
	"golang.ngrok.com/ngrok/v2"
)

var oauthProviders = map[string]bool{
	"google":    true,
	"github":    true,
	"gitlab":    true,
	"microsoft": true,
	"facebook":  true,
	"linkedin":  true,
}

// Service publishes the API through an ngrok endpoint
type Service struct {
	config config.NgrokConfig
	logger *logrus.Logger
	agent  ngrok.Agent
	tunnel ngrok.EndpointForwarder
}

// NewService returns nil when tunnelling is disabled. The auth token is
// expected to be resolved by the config layer already.
func NewService(cfg config.NgrokConfig, logger *logrus.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("ngrok auth token not found, set %s in .env or config", config.EnvNgrokToken)
	}
	if cfg.EnableAuth && !oauthProviders[cfg.AuthProvider] {
		return nil, fmt.Errorf("unsupported ngrok oauth provider %q", cfg.AuthProvider)
	}

	agent, err := ngrok.NewAgent(ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		return nil, fmt.Errorf("failed to create ngrok agent: %w", err)
	}

	return &Service{config: cfg, logger: logger, agent: agent}, nil
}

// StartTunnel forwards a public endpoint to localAddress
func (s *Service) StartTunnel(ctx context.Context, localAddress string) error {
	if s == nil {
		return nil
	}

	s.logger.Info("Starting ngrok tunnel")

	tunnel, err := s.agent.Forward(ctx, ngrok.WithUpstream(localAddress), endpointOptions(s.config)...)
	if err != nil {
		return fmt.Errorf("failed to create ngrok tunnel: %w", err)
	}
	s.tunnel = tunnel

	fields := logrus.Fields{
		"public_url": tunnel.URL().String(),
		"upstream":   localAddress,
	}
	if s.config.EnableAuth {
		fields["oauth_provider"] = s.config.AuthProvider
	}
	s.logger.WithFields(fields).Info("Ngrok tunnel active")
	return nil
}

func endpointOptions(cfg config.NgrokConfig) []ngrok.EndpointOption {
	var opts []ngrok.EndpointOption
	if cfg.Domain != "" {
		opts = append(opts, ngrok.WithURL(cfg.Domain))
	}
	if cfg.EnableAuth {
		opts = append(opts, ngrok.WithTrafficPolicy(trafficPolicy(cfg.AuthProvider)))
	}
	return opts
}

// trafficPolicy puts an OAuth login in front of every request.
func trafficPolicy(provider string) string {
	return fmt.Sprintf(`on_http_request:
  - actions:
      - type: oauth
        config:
          provider: %s
`, provider)
}

// GetPublicURL returns the public URL of the tunnel
func (s *Service) GetPublicURL() string {
	if s == nil || s.tunnel == nil {
		return ""
	}
	return s.tunnel.URL().String()
}

// Stop closes the tunnel
func (s *Service) Stop() error {
	if s == nil || s.tunnel == nil {
		return nil
	}
	s.logger.Info("Stopping ngrok tunnel")
	return s.tunnel.Close()
}
