package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/haski/recengine/internal/metrics"
	"github.com/haski/recengine/internal/rules"
)

// ReloadCatalog re-reads the rule catalog behind store. On failure the
// previous snapshot stays active and is returned with the error.
func ReloadCatalog(store *rules.Store, logger zerolog.Logger) (*rules.Catalog, error) {
	cat, err := store.Reload()
	if err != nil {
		metrics.CatalogReloads.WithLabelValues("failure").Inc()
		logger.Error().Err(err).Str("path", store.Path()).Msg("rule catalog reload failed, keeping previous catalog")
		return cat, err
	}
	metrics.CatalogReloads.WithLabelValues("success").Inc()
	metrics.CatalogRules.Set(float64(cat.Len()))
	logger.Info().
		Str("path", store.Path()).
		Str("version", cat.Version()).
		Str("checksum", cat.Checksum()).
		Int("rules", cat.Len()).
		Msg("rule catalog loaded")
	return cat, nil
}
