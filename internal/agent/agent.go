// Package agent mediates between the outside world and the harvesting
// engine: it mirrors harvester configuration from the CMS into the local
// database and runs harvesters when they are due.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/harvestagent/internal/cms"
	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/harvest"
	"github.com/soyeahso/harvestagent/internal/hooks"
	"github.com/soyeahso/harvestagent/internal/logging"
	"github.com/soyeahso/harvestagent/internal/store"
)

// Params identifies the harvester to invoke and the repository it
// commits to. Username and Password authenticate against both the CMS and
// the repository.
type Params struct {
	HarvesterUID  string `json:"harvester_uid"`
	DatasourceUID string `json:"datasource_uid"`
	RepositoryUID string `json:"repository_uid"`
	RepositoryURL string `json:"repository_url"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	Institution   string `json:"institution"`
}

// ParamNames lists the invoke parameters in their canonical order.
var ParamNames = []string{
	"harvester_uid",
	"datasource_uid",
	"repository_uid",
	"repository_url",
	"username",
	"password",
	"institution",
}

// Values returns the parameters keyed by name.
func (p Params) Values() map[string]string {
	return map[string]string{
		"harvester_uid":  p.HarvesterUID,
		"datasource_uid": p.DatasourceUID,
		"repository_uid": p.RepositoryUID,
		"repository_url": p.RepositoryURL,
		"username":       p.Username,
		"password":       p.Password,
		"institution":    p.Institution,
	}
}

// Missing returns the names of empty parameters, in canonical order.
func (p Params) Missing() []string {
	values := p.Values()
	var missing []string
	for _, name := range ParamNames {
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Result is the outcome of invoking a harvester.
type Result struct {
	Harvester string           `json:"harvester,omitempty"`
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Summary   *harvest.Summary `json:"summary,omitempty"`
}

// Options configures an Agent.
type Options struct {
	CMSURL string
	// NewRecordLimit caps the new records collected per invocation.
	NewRecordLimit int
}

// Agent invokes harvesters.
type Agent struct {
	db     *store.DB
	engine *harvest.Engine
	http   cms.Querier
	hooks  *hooks.Manager
	opts   Options
	log    *logging.Logger
	now    func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

// New creates an agent. q is used to reach the CMS; hm may be nil.
func New(db *store.DB, engine *harvest.Engine, q cms.Querier, hm *hooks.Manager, opts Options, log *logging.Logger) *Agent {
	return &Agent{
		db:      db,
		engine:  engine,
		http:    q,
		hooks:   hm,
		opts:    opts,
		log:     log.Sub("agent"),
		now:     time.Now,
		running: make(map[string]bool),
	}
}

// InvokeHarvester refreshes a harvester's configuration from the CMS and
// runs it if a harvest is due.
func (a *Agent) InvokeHarvester(ctx context.Context, p Params) Result {
	a.log.Debug().
		Str("harvester_uid", p.HarvesterUID).
		Str("datasource_uid", p.DatasourceUID).
		Str("repository_uid", p.RepositoryUID).
		Msg("BEGIN invoke")
	defer func() {
		a.log.Debug().Str("harvester_uid", p.HarvesterUID).Msg("END invoke")
	}()

	a.hooks.Emit(ctx, hooks.EventInvokeStart, map[string]any{"harvester": p.HarvesterUID})
	res := a.invoke(ctx, p)
	a.hooks.Emit(ctx, hooks.EventInvokeFinish, map[string]any{
		"harvester": p.HarvesterUID,
		"success":   res.Success,
		"message":   res.Message,
	})
	return res
}

func (a *Agent) invoke(ctx context.Context, p Params) Result {
	res := Result{Harvester: p.HarvesterUID}

	if err := a.refreshConfig(ctx, p); err != nil {
		res.Message = fmt.Sprintf("Error refreshing config: %v", err)
		a.log.Error().Err(err).Str("harvester", p.HarvesterUID).Msg("error refreshing config")
		return res
	}

	h, err := a.db.GetHarvester(ctx, p.HarvesterUID)
	if err != nil {
		res.Message = fmt.Sprintf("Error running harvester: %v", err)
		a.log.Error().Err(err).Msg(res.Message)
		return res
	}
	return a.runIfDue(ctx, h)
}

// RunDue runs every active harvester whose harvest is due, one after
// another, and returns a result for each harvester it ran.
func (a *Agent) RunDue(ctx context.Context) ([]Result, error) {
	harvesters, err := a.db.ListHarvesters(ctx, domain.HarvesterActive)
	if err != nil {
		return nil, err
	}

	var results []Result
	for i := range harvesters {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		h := &harvesters[i]
		if !h.IsHarvestDue(a.now()) {
			continue
		}
		results = append(results, a.runIfDue(ctx, h))
	}
	a.log.Debug().Int("due", len(results)).Int("active", len(harvesters)).Msg("ran due harvesters")
	return results, nil
}

// runIfDue runs h when its harvest is due. The harvester is reloaded once
// the running guard is held, so a run that finished after h was read is
// taken into account.
func (a *Agent) runIfDue(ctx context.Context, h *domain.Harvester) Result {
	res := Result{Harvester: h.UID}

	if !a.acquire(h.UID) {
		res.Success = true
		res.Message = fmt.Sprintf("Not running %s as it is already running", h)
		a.log.Info().Msg(res.Message)
		return res
	}
	defer a.release(h.UID)

	h, err := a.db.GetHarvester(ctx, h.UID)
	if err != nil {
		res.Message = fmt.Sprintf("Error running harvester: %v", err)
		a.log.Error().Err(err).Str("harvester", res.Harvester).Msg("error reloading harvester")
		return res
	}
	if !h.IsHarvestDue(a.now()) {
		res.Success = true
		res.Message = fmt.Sprintf("Not running %s as harvest is not due", h)
		a.log.Info().Msg(res.Message)
		return res
	}

	a.log.Info().Msgf("Running %s", h)
	summary, err := a.engine.Harvest(ctx, h, a.opts.NewRecordLimit)
	res.Summary = summary
	if err != nil {
		res.Message = fmt.Sprintf("Error running harvester: %v", err)
		a.log.Error().Err(err).Str("harvester", h.UID).Msg("error running harvester")
		return res
	}
	res.Success = true
	res.Message = fmt.Sprintf("Finished running %s", h)
	a.log.Info().Msg(res.Message)
	return res
}

func (a *Agent) acquire(uid string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running[uid] {
		return false
	}
	a.running[uid] = true
	return true
}

func (a *Agent) release(uid string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.running, uid)
}
