package scraper

import "go.uber.org/zap"

// ProviderConfig holds the settings shared by the built-in providers.
type ProviderConfig struct {
	RedditHost    string
	HackerNewsAPI string
	Renderer      Renderer
	Detector      ShellDetector
	Logger        *zap.Logger
}

// NewDefaultRegistry builds a Registry holding the four built-in providers.
func NewDefaultRegistry(client HTTPClient, cfg ProviderConfig) *Registry {
	htmlOpts := []HTMLOption{WithHTMLLogger(cfg.Logger)}
	if cfg.Renderer != nil && cfg.Detector != nil {
		htmlOpts = append(htmlOpts, WithRenderer(cfg.Renderer, cfg.Detector))
	}
	return NewRegistry(
		NewRSSProvider(client),
		NewRedditProvider(client, cfg.RedditHost),
		NewHackerNewsProvider(client, cfg.HackerNewsAPI),
		NewHTMLProvider(client, htmlOpts...),
	)
}
