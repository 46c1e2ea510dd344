package api

import (
	"encoding/json"
	"errors"
	"html/template"
	"mime"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/harvestagent/internal/agent"
	"github.com/soyeahso/harvestagent/internal/domain"
	"github.com/soyeahso/harvestagent/internal/store"
)

// registerRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /invoke_harvester", s.handleInvoke)
	mux.HandleFunc("POST /invoke_harvester", s.handleInvoke)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /harvesters", s.handleListHarvesters)
	mux.HandleFunc("GET /harvesters/{uid}", s.handleGetHarvester)
	mux.HandleFunc("GET /harvesters/{uid}/records", s.handleListRecords)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("/", handleNotFound)
}

var indexPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>Agent API</title></head>
<body>
    Invoke a Harvester with the following input:
    <form method="post" action="invoke_harvester">
        <table>
        {{- range .}}
        <tr><td>{{.}}:</td><td><input type="{{if eq . "password"}}password{{else}}text{{end}}" name="{{.}}"></td></tr>
        {{- end}}
        </table>
        <input type="submit" value="Submit"/>
    </form>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage.Execute(w, agent.ParamNames); err != nil {
		s.log.Error().Err(err).Msg("rendering index page")
	}
}

// handleInvoke accepts its parameters as a query string, a form or a JSON
// object.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	p, err := invokeParams(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, InvokeResponse{Message: err.Error()})
		return
	}
	if missing := p.Missing(); len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, InvokeResponse{
			Message: "Missing input arg(s): " + strings.Join(missing, ", "),
		})
		return
	}

	res := s.invoker.InvokeHarvester(r.Context(), p)
	s.log.Info().
		Str("request_id", RequestID(r.Context())).
		Str("harvester", p.HarvesterUID).
		Bool("success", res.Success).
		Msg(res.Message)
	writeJSON(w, http.StatusOK, InvokeResponse{Success: res.Success, Message: res.Message})
}

func invokeParams(w http.ResponseWriter, r *http.Request) (agent.Params, error) {
	var p agent.Params
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/json" {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&p); err != nil {
			return p, errors.New("Invalid JSON body: " + err.Error())
		}
		return p, nil
	}

	if err := r.ParseForm(); err != nil {
		return p, errors.New("Invalid form: " + err.Error())
	}
	p = agent.Params{
		HarvesterUID:  r.Form.Get("harvester_uid"),
		DatasourceUID: r.Form.Get("datasource_uid"),
		RepositoryUID: r.Form.Get("repository_uid"),
		RepositoryURL: r.Form.Get("repository_url"),
		Username:      r.Form.Get("username"),
		Password:      r.Form.Get("password"),
		Institution:   r.Form.Get("institution"),
	}
	return p, nil
}

// handleHealth reports liveness. Only the status is public; details are
// added for authenticated callers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Clients: s.clients.Count()}
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("database ping failed")
		resp.Status = "degraded"
		resp.Database = "unreachable"
	} else {
		resp.Database = "ok"
	}
	if Authorize(s.opts.Token, r).OK {
		resp.Version = s.version
		resp.Uptime = s.uptime().Round(time.Second).String()
	}
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListHarvesters(w http.ResponseWriter, r *http.Request) {
	status := domain.HarvesterStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.HarvesterActive, domain.HarvesterInactive, domain.HarvesterDeleted:
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid status: " + string(status)})
		return
	}

	hs, err := s.db.ListHarvesters(r.Context(), status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if hs == nil {
		hs = []domain.Harvester{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"harvesters": hs})
}

// harvesterView is a harvester with its datasource, repository and record
// counts.
type harvesterView struct {
	Harvester  *domain.Harvester           `json:"harvester"`
	Datasource *domain.Datasource          `json:"datasource"`
	Repository *domain.Repository          `json:"repository"`
	Records    map[domain.RecordStatus]int `json:"records"`
	Due        bool                        `json:"due"`
}

func (s *Server) handleGetHarvester(w http.ResponseWriter, r *http.Request) {
	h, ds, repo, err := s.db.HarvesterTargets(r.Context(), r.PathValue("uid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	counts, err := s.db.CountRecordsByStatus(r.Context(), ds.ID, repo.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, harvesterView{
		Harvester:  h,
		Datasource: ds,
		Repository: repo,
		Records:    counts,
		Due:        h.IsHarvestDue(time.Now()),
	})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := domain.RecordStatus(q.Get("status"))
	if status != "" && !slices.Contains(domain.RecordStatuses, status) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid status: " + string(status)})
		return
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid limit: " + v})
			return
		}
		limit = n
	}

	_, ds, repo, err := s.db.HarvesterTargets(r.Context(), r.PathValue("uid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.db.ListRecords(r.Context(), store.RecordFilter{
		DatasourceID: ds.ID,
		RepositoryID: repo.ID,
		Status:       status,
		Limit:        limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.HarvestedRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Path: r.URL.Path})
		return
	}
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found", Path: r.URL.Path})
}
