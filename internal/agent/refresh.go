package agent

import (
	"context"

	"github.com/soyeahso/harvestagent/internal/cms"
	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/store"
)

// refreshConfig mirrors the CMS configuration of a harvester, its
// datasource and its repository into the local database. All three are
// written in one transaction.
func (a *Agent) refreshConfig(ctx context.Context, p Params) error {
	client := cms.New(a.opts.CMSURL, p.Username, p.Password, a.http, a.log)
	cfg, err := client.HarvesterConfig(ctx, p.HarvesterUID)
	if err != nil {
		return err
	}

	frequency, err := domain.ParseFrequency(cfg.UpdateFrequency)
	if err != nil {
		return err
	}
	if err := a.engine.Supports(cfg.Transport, cfg.Standard); err != nil {
		return err
	}
	defaults, err := domain.CoerceJSONMap("default_values", cfg.DefaultValues)
	if err != nil {
		return err
	}
	supplementary, err := domain.CoerceJSONMap("supplementary_values", cfg.SupplementaryValues)
	if err != nil {
		return err
	}
	granularity, err := domain.CoerceJSONMap("granularity", cfg.Granularity)
	if err != nil {
		return err
	}

	var (
		h                            *domain.Harvester
		ds                           *domain.Datasource
		repo                         *domain.Repository
		newHarvester, newDS, newRepo bool
	)
	err = a.db.WithTx(ctx, func(q *store.Queries) error {
		var err error
		h, newHarvester, err = q.GetOrCreateHarvester(ctx, p.HarvesterUID)
		if err != nil {
			return err
		}
		if !newHarvester {
			if h.DatasourceUID != p.DatasourceUID {
				a.log.Warn().Msgf("%s.datasource_uid has changed", h)
			}
			if h.RepositoryUID != p.RepositoryUID {
				a.log.Warn().Msgf("%s.repository_uid has changed", h)
			}
		}
		h.DatasourceUID = p.DatasourceUID
		h.RepositoryUID = p.RepositoryUID
		h.Protocol = cfg.Transport
		h.Schema = cfg.Standard
		h.DefaultValues = defaults
		h.SupplementaryValues = supplementary
		h.Granularity = granularity
		h.Frequency = frequency
		h.SearchURL = cfg.SearchURL
		h.CommitURL = cfg.CommitURL
		h.Status = domain.HarvesterActive
		if err := q.SaveHarvester(ctx, h); err != nil {
			return err
		}

		ds, newDS, err = q.GetOrCreateDatasource(ctx, p.DatasourceUID)
		if err != nil {
			return err
		}
		ds.URL = cfg.URL
		ds.Username = cfg.Username
		ds.Password = cfg.Password
		if err := q.SaveDatasource(ctx, ds); err != nil {
			return err
		}

		repo, newRepo, err = q.GetOrCreateRepository(ctx, p.RepositoryUID)
		if err != nil {
			return err
		}
		repo.URL = p.RepositoryURL
		repo.Username = p.Username
		repo.Password = p.Password
		repo.Institution = p.Institution
		return q.SaveRepository(ctx, repo)
	})
	if err != nil {
		return err
	}

	if newHarvester {
		a.log.Info().Msgf("Created %s", h)
	}
	if newDS {
		a.log.Info().Msgf("Created %s", ds)
	}
	if newRepo {
		a.log.Info().Msgf("Created %s", repo)
	}
	return nil
}
