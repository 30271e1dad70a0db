package config

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/jpalmerr/dispatchboard"
	"github.com/jpalmerr/dispatchboard/remote"
)

// BuildSource returns the remote source described by cfg: an [remote.HTTPSource]
// when APIURL is set, otherwise a [remote.MemorySource] seeded with the
// fixture data.
func BuildSource(cfg *Config) (remote.Source, error) {
	if cfg.APIURL == "" {
		src, err := remote.NewMemorySource(remote.SeedDataset(), remote.WithBaseLatency(cfg.Mock.Latency.Duration()))
		if err != nil {
			return nil, fmt.Errorf("failed to seed memory source: %w", err)
		}
		return src, nil
	}

	opts := []remote.HTTPOption{remote.WithTimeout(cfg.Timeout.Duration())}
	for _, kv := range sortedPairs(cfg.Headers) {
		opts = append(opts, remote.WithHeader(kv[0], kv[1]))
	}
	src, err := remote.NewHTTPSource(cfg.APIURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("api_url: %w", err)
	}
	return src, nil
}

// Build converts parsed configuration into store options.
//
// The returned options carry the source from [BuildSource], the persist
// call options and logger. Callers append their own (metrics, runtime).
// The source is returned as well so it can be closed on shutdown.
func Build(cfg *Config, logger *slog.Logger) ([]dispatchboard.Option, remote.Source, error) {
	src, err := BuildSource(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []dispatchboard.Option{
		dispatchboard.WithSource(src),
		dispatchboard.WithPersistOptions(cfg.Persist.Options()),
	}
	if logger != nil {
		opts = append(opts, dispatchboard.WithLogger(logger))
	}
	return opts, src, nil
}

// sortedPairs returns the entries of m ordered by key.
func sortedPairs(m map[string]string) [][2]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([][2]string, 0, len(m))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, m[k]})
	}
	return pairs
}
