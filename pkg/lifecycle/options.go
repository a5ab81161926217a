package lifecycle

import (
	"github.com/srediag/vecshm/pkg/config"
	"github.com/srediag/vecshm/pkg/process"
	"github.com/srediag/vecshm/pkg/shm"
)

// OptionsFromConfig maps a verified configuration onto Options. Sink, Seed,
// Metrics, Audit and Logger are left for the caller.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	if err := config.VerifyConfig(cfg); err != nil {
		return Options{}, err
	}
	schema, err := cfg.Schema()
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		Region: shm.OpenOptions{
			Name:            cfg.Region.Name,
			Schema:          schema,
			Mode:            cfg.AccessMode(),
			TornReadRetries: cfg.Region.TornReadRetries,
		},
		OpenRetry: RetryOptions{
			Enabled:         cfg.OpenRetry.Enabled,
			InitialInterval: cfg.OpenRetry.InitialInterval,
			MaxInterval:     cfg.OpenRetry.MaxInterval,
			MaxElapsed:      cfg.OpenRetry.MaxElapsed,
		},
		StopGrace:    cfg.Producer.StopGrace,
		PollInterval: cfg.Poll.Interval,
	}
	if cfg.Producer.Path != "" {
		opts.Producer = &process.Options{
			Path:     cfg.Producer.Path,
			AssetDir: cfg.Producer.AssetDir,
			Args:     cfg.Producer.Args,
		}
	}
	return opts, nil
}
