package app

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"bidline/api/internal/archive"
	"bidline/api/internal/history"
	"bidline/api/internal/pricing"
	"bidline/api/internal/proposal"
	"bidline/api/internal/search"
	"bidline/api/internal/syncer"
)

const defaultHistoryLimit = 50

// Pinger is satisfied by the Postgres store and the snapshot caches.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Engine *syncer.Engine
	Store  Pinger
	// Cache is optional; readiness reports it when set.
	Cache   Pinger
	Search  *search.Service
	History *history.Service
	// Archive and ObjectStore are optional and set together.
	Archive     *archive.Archive
	ObjectStore Pinger
}

// Service is the application facade over the sync engine. The engine owns
// one proposal at a time, so any request naming another id switches it.
type Service struct {
	engine  *syncer.Engine
	store   Pinger
	cache   Pinger
	search  *search.Service
	history *history.Service
	archive *archive.Archive
	objects Pinger

	loadMu sync.Mutex
}

func New(deps Dependencies) *Service {
	return &Service{
		engine:  deps.Engine,
		store:   deps.Store,
		cache:   deps.Cache,
		search:  deps.Search,
		history: deps.History,
		archive: deps.Archive,
		objects: deps.ObjectStore,
	}
}

// ProposalView is the working copy together with its derived pricing and the
// engine's persistence status.
type ProposalView struct {
	Proposal   proposal.Proposal `json:"proposal"`
	Pricing    pricing.Report    `json:"pricing"`
	Status     syncer.Status     `json:"status"`
	Source     syncer.Source     `json:"source"`
	LastSaved  *time.Time        `json:"lastSaved"`
	LastSynced *time.Time        `json:"lastSynced"`
	LastError  string            `json:"lastError,omitempty"`
}

func viewFromState(state syncer.State) ProposalView {
	return ProposalView{
		Proposal:   state.Proposal,
		Pricing:    pricing.BuildReport(state.Proposal),
		Status:     state.Status,
		Source:     state.Source,
		LastSaved:  timePtr(state.LastSaved),
		LastSynced: timePtr(state.LastSynced),
		LastError:  state.LastError,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// view pairs p with the engine's current status. p wins over the state's
// copy so a concurrent switch cannot leak another proposal into the reply.
func (s *Service) view(p proposal.Proposal) ProposalView {
	state, _ := s.engine.State()
	state.Proposal = p
	return viewFromState(state)
}

type ReadyCheck struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Ready pings every backing tier and reports each one.
func (s *Service) Ready(ctx context.Context) (bool, map[string]ReadyCheck) {
	checks := map[string]ReadyCheck{"database": {Status: "ok"}}
	ready := true
	if err := s.Ping(ctx); err != nil {
		ready = false
		checks["database"] = ReadyCheck{Status: "error", Error: err.Error()}
	}
	for name, pinger := range map[string]Pinger{"cache": s.cache, "archive": s.objects} {
		if pinger == nil {
			continue
		}
		checks[name] = ReadyCheck{Status: "ok"}
		if err := pinger.Ping(ctx); err != nil {
			ready = false
			checks[name] = ReadyCheck{Status: "error", Error: err.Error()}
		}
	}
	return ready, checks
}

// withActive runs fn with id as the engine's active proposal. Requests are
// serialized so a concurrent switch cannot redirect fn to another proposal.
func (s *Service) withActive(ctx context.Context, id string, fn func() error) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return syncer.ErrBlankID
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.engine.CurrentID() != id {
		if _, err := s.engine.Load(ctx, id); err != nil {
			return err
		}
	}
	return fn()
}

// EnsureLoaded makes id the engine's active proposal, loading it if needed.
func (s *Service) EnsureLoaded(ctx context.Context, id string) error {
	return s.withActive(ctx, id, func() error { return nil })
}

func (s *Service) Create(ctx context.Context) (ProposalView, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	p, err := s.engine.Create(ctx)
	if err != nil {
		return ProposalView{}, err
	}
	return s.view(p), nil
}

func (s *Service) Open(ctx context.Context, id string) (ProposalView, error) {
	var view ProposalView
	err := s.withActive(ctx, id, func() error {
		p, ok := s.engine.Current()
		if !ok {
			return syncer.ErrNoProposal
		}
		view = s.view(p)
		return nil
	})
	return view, err
}

// mutate applies fn to the working copy of id.
func (s *Service) mutate(ctx context.Context, id string, fn func(p *proposal.Proposal)) (ProposalView, error) {
	var view ProposalView
	err := s.withActive(ctx, id, func() error {
		p, err := s.engine.Mutate(fn)
		if err != nil {
			return err
		}
		view = s.view(p)
		return nil
	})
	return view, err
}

// Replace swaps the whole working copy. A body id, when present, must match.
func (s *Service) Replace(ctx context.Context, id string, p proposal.Proposal) (ProposalView, error) {
	id = strings.TrimSpace(id)
	if p.ID != "" && p.ID != id {
		return ProposalView{}, syncer.ErrIDMismatch
	}
	p.ID = id
	var view ProposalView
	err := s.withActive(ctx, id, func() error {
		out, err := s.engine.Replace(p)
		if err != nil {
			return err
		}
		view = s.view(out)
		return nil
	})
	return view, err
}

// SolicitationPatch updates only the fields that are set. Period accepts
// either the structured form or a display string such as "1 Base + 2 OYs".
type SolicitationPatch struct {
	Title               *string                       `json:"title"`
	Number              *string                       `json:"number"`
	ClientAgency        *string                       `json:"clientAgency"`
	ContractType        *string                       `json:"contractType"`
	DueDate             *string                       `json:"dueDate"`
	Period              *proposal.PeriodOfPerformance `json:"period"`
	PeriodOfPerformance *string                       `json:"periodOfPerformance"`
}

func (patch SolicitationPatch) validate() error {
	if patch.Period != nil && (patch.Period.OptionYears < 0 || patch.Period.OptionYears > proposal.MaxOptionYears) {
		return validationError("optionYears must be between 0 and 4", map[string]any{"optionYears": patch.Period.OptionYears})
	}
	if patch.DueDate != nil && strings.TrimSpace(*patch.DueDate) != "" {
		if _, err := time.Parse("2006-01-02", strings.TrimSpace(*patch.DueDate)); err != nil {
			return validationError("dueDate must be YYYY-MM-DD", map[string]any{"dueDate": *patch.DueDate})
		}
	}
	return nil
}

func (patch SolicitationPatch) apply(sol *proposal.Solicitation) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&sol.Title, patch.Title)
	set(&sol.Number, patch.Number)
	set(&sol.ClientAgency, patch.ClientAgency)
	set(&sol.ContractType, patch.ContractType)
	set(&sol.DueDate, patch.DueDate)
	if patch.PeriodOfPerformance != nil {
		sol.Period = pricing.ParsePeriod(*patch.PeriodOfPerformance)
	}
	if patch.Period != nil {
		sol.Period = *patch.Period
	}
}

func (s *Service) UpdateSolicitation(ctx context.Context, id string, patch SolicitationPatch) (ProposalView, error) {
	if err := patch.validate(); err != nil {
		return ProposalView{}, err
	}
	return s.mutate(ctx, id, func(p *proposal.Proposal) {
		patch.apply(&p.Solicitation)
	})
}

type RoleInput struct {
	Title         string   `json:"title"`
	LaborCategory string   `json:"laborCategory"`
	BaseSalary    float64  `json:"baseSalary"`
	FTE           *float64 `json:"fte"`
	Years         []string `json:"years"`
}

func (s *Service) AddRole(ctx context.Context, id string, input RoleInput) (ProposalView, error) {
	if input.BaseSalary < 0 {
		return ProposalView{}, validationError("baseSalary must not be negative", map[string]any{"baseSalary": input.BaseSalary})
	}
	fte, err := parseFTE(input.FTE)
	if err != nil {
		return ProposalView{}, err
	}
	years, err := parseYears(input.Years)
	if err != nil {
		return ProposalView{}, err
	}
	role := proposal.NewRole(input.Title)
	role.LaborCategory = strings.TrimSpace(input.LaborCategory)
	role.BaseSalary = input.BaseSalary
	role.FTE = fte
	if years != nil {
		role.Years = years
	}
	return s.mutate(ctx, id, func(p *proposal.Proposal) {
		p.Roles = append(p.Roles, role)
	})
}

type SubcontractorInput struct {
	Name       string   `json:"name"`
	Role       string   `json:"role"`
	BilledRate float64  `json:"billedRate"`
	FTE        *float64 `json:"fte"`
	Years      []string `json:"years"`
}

func (s *Service) AddSubcontractor(ctx context.Context, id string, input SubcontractorInput) (ProposalView, error) {
	if strings.TrimSpace(input.Name) == "" {
		return ProposalView{}, validationError("name is required", nil)
	}
	if input.BilledRate < 0 {
		return ProposalView{}, validationError("billedRate must not be negative", map[string]any{"billedRate": input.BilledRate})
	}
	fte, err := parseFTE(input.FTE)
	if err != nil {
		return ProposalView{}, err
	}
	years, err := parseYears(input.Years)
	if err != nil {
		return ProposalView{}, err
	}
	sub := proposal.NewSubcontractor(input.Name)
	sub.Role = strings.TrimSpace(input.Role)
	sub.BilledRate = input.BilledRate
	sub.FTE = fte
	if years != nil {
		sub.Years = years
	}
	return s.mutate(ctx, id, func(p *proposal.Proposal) {
		p.Subcontractors = append(p.Subcontractors, sub)
	})
}

type WBSInput struct {
	Code        string  `json:"code"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Hours       float64 `json:"hours"`
	RoleID      string  `json:"roleId"`
}

func (s *Service) AddWBSElement(ctx context.Context, id string, input WBSInput) (ProposalView, error) {
	if strings.TrimSpace(input.Title) == "" {
		return ProposalView{}, validationError("title is required", nil)
	}
	if input.Hours < 0 {
		return ProposalView{}, validationError("hours must not be negative", map[string]any{"hours": input.Hours})
	}
	element := proposal.NewWBSElement(input.Code, input.Title)
	element.Description = strings.TrimSpace(input.Description)
	element.Hours = input.Hours
	element.RoleID = strings.TrimSpace(input.RoleID)

	var view ProposalView
	err := s.withActive(ctx, id, func() error {
		if element.RoleID != "" {
			current, ok := s.engine.Current()
			if !ok || !hasRole(current, element.RoleID) {
				return validationError("roleId does not match a role", map[string]any{"roleId": element.RoleID})
			}
		}
		p, err := s.engine.Mutate(func(p *proposal.Proposal) {
			p.WBSElements = append(p.WBSElements, element)
		})
		if err != nil {
			return err
		}
		view = s.view(p)
		return nil
	})
	return view, err
}

func hasRole(p proposal.Proposal, roleID string) bool {
	for _, role := range p.Roles {
		if role.ID == roleID {
			return true
		}
	}
	return false
}

func (s *Service) UpdateRates(ctx context.Context, id string, rates proposal.Rates) (ProposalView, error) {
	invalid := map[string]float64{}
	for name, value := range map[string]float64{
		"fringe":     rates.Fringe,
		"overhead":   rates.Overhead,
		"gAndA":      rates.GAndA,
		"profit":     rates.Profit,
		"escalation": rates.Escalation,
	} {
		if value < 0 {
			invalid[name] = value
		}
	}
	if len(invalid) > 0 {
		return ProposalView{}, validationError("rates must not be negative", invalid)
	}
	return s.mutate(ctx, id, func(p *proposal.Proposal) {
		p.Rates = rates
	})
}

type ExtractionInput struct {
	Roles        []proposal.ExtractedRole        `json:"roles"`
	Requirements []proposal.ExtractedRequirement `json:"requirements"`
}

// ImportExtraction appends the collaborator's partial records to id.
func (s *Service) ImportExtraction(ctx context.Context, id string, input ExtractionInput) (ProposalView, error) {
	if len(input.Roles) == 0 && len(input.Requirements) == 0 {
		return ProposalView{}, validationError("nothing to import", nil)
	}
	var view ProposalView
	err := s.withActive(ctx, id, func() error {
		p, err := s.engine.ImportExtracted(input.Roles, input.Requirements)
		if err != nil {
			return err
		}
		view = s.view(p)
		return nil
	})
	return view, err
}

func (s *Service) Pricing(ctx context.Context, id string) (pricing.Report, error) {
	var report pricing.Report
	err := s.withActive(ctx, id, func() error {
		p, ok := s.engine.Current()
		if !ok {
			return syncer.ErrNoProposal
		}
		report = pricing.BuildReport(p)
		return nil
	})
	return report, err
}

// Flush pushes pending edits for id to the remote store now.
func (s *Service) Flush(ctx context.Context, id string) (ProposalView, error) {
	var view ProposalView
	err := s.withActive(ctx, id, func() error {
		if err := s.engine.Flush(ctx); err != nil {
			return domainError(http.StatusBadGateway, "SYNC_FAILED", "Remote store write failed", map[string]any{"error": err.Error()})
		}
		p, ok := s.engine.Current()
		if !ok {
			return syncer.ErrNoProposal
		}
		view = s.view(p)
		return nil
	})
	return view, err
}

// Subscribe streams state changes for id only. The callback runs on the
// engine's delivery path and must not block.
func (s *Service) Subscribe(ctx context.Context, id string, fn func(ProposalView)) (func(), error) {
	var cancel func()
	err := s.withActive(ctx, id, func() error {
		id = strings.TrimSpace(id)
		cancel = s.engine.Subscribe(func(state syncer.State) {
			if state.Proposal.ID == id {
				fn(viewFromState(state))
			}
		})
		return nil
	})
	return cancel, err
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text, Backend: "none"}
	}
	return s.search.Search(ctx, q)
}

func (s *Service) historyService() (*history.Service, error) {
	if s.history == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Revision history is not configured", nil)
	}
	return s.history, nil
}

func (s *Service) History(id string, limit int) ([]history.Revision, error) {
	svc, err := s.historyService()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return svc.History(strings.TrimSpace(id), limit)
}

func (s *Service) Revision(id, hash string) (proposal.Proposal, error) {
	svc, err := s.historyService()
	if err != nil {
		return proposal.Proposal{}, err
	}
	return svc.Content(strings.TrimSpace(id), strings.TrimSpace(hash))
}

func (s *Service) Diff(id, from, to string) ([]history.FieldChange, error) {
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return nil, validationError("from and to are required", nil)
	}
	svc, err := s.historyService()
	if err != nil {
		return nil, err
	}
	return svc.Diff(strings.TrimSpace(id), strings.TrimSpace(from), strings.TrimSpace(to))
}

// Archived returns the last copy of id written to object storage.
func (s *Service) Archived(ctx context.Context, id string) (archive.Entry, error) {
	if s.archive == nil {
		return archive.Entry{}, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Proposal archive is not configured", nil)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return archive.Entry{}, syncer.ErrBlankID
	}
	return s.archive.Latest(ctx, id)
}

// Shutdown flushes the active proposal before the process exits.
func (s *Service) Shutdown(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.engine.Flush(ctx)
}

func parseFTE(raw *float64) (float64, error) {
	if raw == nil {
		return 1, nil
	}
	if *raw < 0 {
		return 0, validationError("fte must not be negative", map[string]any{"fte": *raw})
	}
	return *raw, nil
}

// parseYears returns nil when the field was absent so callers keep the base
// year default. An explicit empty list yields an entity with no active years.
func parseYears(raw []string) ([]proposal.YearSlot, error) {
	if raw == nil {
		return nil, nil
	}
	years := make([]proposal.YearSlot, 0, len(raw))
	for _, value := range raw {
		slot, ok := proposal.ParseYearSlot(value)
		if !ok {
			return nil, validationError("unknown contract year", map[string]any{"year": value})
		}
		years = append(years, slot)
	}
	return proposal.NormalizeYears(years), nil
}
