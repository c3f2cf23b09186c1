package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mesieou/skedy-ai-sub002/pkg/agent/tools"
	"github.com/mesieou/skedy-ai-sub002/pkg/store"
)

// GrantOutcome classifies the result of a tool grant request. Everything
// here is a caller-visible outcome, not an infrastructure failure.
type GrantOutcome int

const (
	Granted GrantOutcome = iota
	AlreadyGranted
	UnknownTool
	MissingContext
)

func (o GrantOutcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case AlreadyGranted:
		return "already_granted"
	case UnknownTool:
		return "unknown_tool"
	case MissingContext:
		return "missing_context"
	default:
		return fmt.Sprintf("grant_outcome(%d)", int(o))
	}
}

// Gate decides which tools a session may see. Implementations never hand out
// a tool absent from the business's active catalog.
type Gate interface {
	// InitialGrant is the tool set a fresh session starts with.
	InitialGrant(ctx context.Context, businessID string) ([]tools.Tool, error)
	// RequestGrant handles an explicit request_tool call. serviceName is the
	// caller-supplied context for tools whose schema depends on the service.
	RequestGrant(ctx context.Context, s *Session, toolName, serviceName string) (GrantOutcome, error)
	// Advance reacts to the successful completion of a stage-advancing tool.
	Advance(ctx context.Context, s *Session, completedTool string) error
}

// stageAdvance maps a completed tool to the stage the conversation moves to.
var stageAdvance = map[string]Stage{
	tools.NameGetServiceDetails:    StageQuoting,
	tools.NameGetQuote:             StageAvailability,
	tools.NameCheckDayAvailability: StageUserManagement,
	tools.NameCreateUser:           StageBooking,
	tools.NameCreateBooking:        StageCompleted,
}

// bootstrapToolNames is what every session starts with regardless of policy:
// service discovery plus the escape hatch for requesting more.
var bootstrapToolNames = []string{tools.NameGetServiceDetails, tools.NameRequestTool}

// RequestPolicy grants tools on demand: sessions begin with the bootstrap
// set and the model asks for the rest via request_tool as the conversation
// needs them. This is the default policy.
type RequestPolicy struct {
	Catalog  store.ToolCatalogStore
	Services store.ServiceStore
	Logger   *slog.Logger
}

func NewRequestPolicy(catalog store.ToolCatalogStore, services store.ServiceStore, logger *slog.Logger) *RequestPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestPolicy{Catalog: catalog, Services: services, Logger: logger}
}

func (p *RequestPolicy) InitialGrant(ctx context.Context, businessID string) ([]tools.Tool, error) {
	granted, err := p.Catalog.GetToolsByNames(ctx, businessID, bootstrapToolNames)
	if err != nil {
		return nil, fmt.Errorf("load bootstrap tools: %w", err)
	}
	if len(granted) == 0 {
		return nil, fmt.Errorf("business %s has no bootstrap tools configured", businessID)
	}
	return granted, nil
}

func (p *RequestPolicy) RequestGrant(ctx context.Context, s *Session, toolName, serviceName string) (GrantOutcome, error) {
	toolName = strings.TrimSpace(toolName)
	if !s.InCatalog(toolName) {
		return UnknownTool, nil
	}
	if s.HasTool(toolName) {
		return AlreadyGranted, nil
	}

	loaded, err := p.Catalog.GetToolsByNames(ctx, s.BusinessID(), []string{toolName})
	if err != nil {
		return UnknownTool, fmt.Errorf("load tool %q: %w", toolName, err)
	}
	if len(loaded) == 0 {
		return UnknownTool, fmt.Errorf("tool %q is in the catalog index but not loadable", toolName)
	}
	tool := loaded[0]

	if tool.DynamicParameters {
		resolved, outcome, err := p.resolveDynamic(ctx, s, tool, serviceName)
		if err != nil || outcome != Granted {
			return outcome, err
		}
		tool = resolved
	}

	s.AppendGrantedTool(tool)
	p.Logger.Info("tool granted",
		"session_id", s.ID(),
		"tool", tool.Name,
		"dynamic", tool.DynamicParameters,
	)
	return Granted, nil
}

// resolveDynamic specializes a tool's schema to the service under
// discussion. No resolvable service context rejects the grant; a generic
// schema would invite arguments the quote engine cannot price.
func (p *RequestPolicy) resolveDynamic(ctx context.Context, s *Session, tool tools.Tool, serviceName string) (tools.Tool, GrantOutcome, error) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = s.ServiceContext()
	}
	if serviceName == "" {
		return tools.Tool{}, MissingContext, nil
	}

	svc, err := p.Services.GetService(ctx, s.BusinessID(), serviceName)
	if err != nil {
		p.Logger.Warn("dynamic tool grant rejected, service unresolved",
			"session_id", s.ID(),
			"tool", tool.Name,
			"service", serviceName,
		)
		return tools.Tool{}, MissingContext, nil
	}

	tool.FunctionSchema = tools.ResolveSchema(tool.FunctionSchema, svc.Requirements, svc.JobScopeOptions)
	tool.Version = versionFor(tool.Version, svc.Name)
	return tool, Granted, nil
}

// Advance under the request policy moves the stage marker only; grants
// accumulate and are never revoked mid-call.
func (p *RequestPolicy) Advance(ctx context.Context, s *Session, completedTool string) error {
	next, ok := stageAdvance[completedTool]
	if !ok {
		return nil
	}
	s.SetStage(next)
	return nil
}

// stageToolNames is the full tool set exposed at each stage under the
// stage-indexed policy. request_tool is appended unconditionally.
var stageToolNames = map[Stage][]string{
	StageServiceSelection: {tools.NameGetServiceDetails},
	StageQuoting:          {tools.NameGetServiceDetails, tools.NameGetQuote},
	StageAvailability:     {tools.NameGetQuote, tools.NameCheckDayAvailability},
	StageUserManagement:   {tools.NameCheckDayAvailability, tools.NameCreateUser},
	StageBooking:          {tools.NameCreateUser, tools.NameCreateBooking},
	StageCompleted:        {},
}

// StagePolicy swaps the whole exposed tool set on each stage transition.
// Deterministic and easy to audit, at the cost of flexibility when a caller
// jumps around the flow.
type StagePolicy struct {
	Catalog  store.ToolCatalogStore
	Services store.ServiceStore
	Logger   *slog.Logger
}

func NewStagePolicy(catalog store.ToolCatalogStore, services store.ServiceStore, logger *slog.Logger) *StagePolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &StagePolicy{Catalog: catalog, Services: services, Logger: logger}
}

func (p *StagePolicy) InitialGrant(ctx context.Context, businessID string) ([]tools.Tool, error) {
	return p.toolsForStage(ctx, businessID, StageServiceSelection, "")
}

// RequestGrant under the stage policy only honors requests for tools the
// current stage already prescribes; anything else is outside the flow.
func (p *StagePolicy) RequestGrant(ctx context.Context, s *Session, toolName, serviceName string) (GrantOutcome, error) {
	if !s.InCatalog(toolName) {
		return UnknownTool, nil
	}
	if s.HasTool(toolName) {
		return AlreadyGranted, nil
	}
	for _, name := range stageToolNames[s.Stage()] {
		if name == toolName {
			loaded, err := p.Catalog.GetToolsByNames(ctx, s.BusinessID(), []string{toolName})
			if err != nil || len(loaded) == 0 {
				return UnknownTool, fmt.Errorf("load tool %q: %w", toolName, err)
			}
			s.AppendGrantedTool(loaded[0])
			return Granted, nil
		}
	}
	return UnknownTool, nil
}

func (p *StagePolicy) Advance(ctx context.Context, s *Session, completedTool string) error {
	next, ok := stageAdvance[completedTool]
	if !ok {
		return nil
	}
	replacement, err := p.toolsForStage(ctx, s.BusinessID(), next, s.ServiceContext())
	if err != nil {
		return fmt.Errorf("advance to stage %s: %w", next, err)
	}
	s.SetStage(next)
	s.ReplaceGrantedTools(replacement)
	p.Logger.Info("stage advanced",
		"session_id", s.ID(),
		"stage", next,
		"tools", len(replacement),
	)
	return nil
}

func (p *StagePolicy) toolsForStage(ctx context.Context, businessID string, stage Stage, serviceName string) ([]tools.Tool, error) {
	names := append(append([]string(nil), stageToolNames[stage]...), tools.NameRequestTool)
	loaded, err := p.Catalog.GetToolsByNames(ctx, businessID, names)
	if err != nil {
		return nil, fmt.Errorf("load tools for stage %s: %w", stage, err)
	}

	for i := range loaded {
		if !loaded[i].DynamicParameters || serviceName == "" {
			continue
		}
		svc, err := p.Services.GetService(ctx, businessID, serviceName)
		if err != nil {
			continue
		}
		loaded[i].FunctionSchema = tools.ResolveSchema(loaded[i].FunctionSchema, svc.Requirements, svc.JobScopeOptions)
		loaded[i].Version = versionFor(loaded[i].Version, svc.Name)
	}
	return loaded, nil
}

func versionFor(base, serviceName string) string {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(serviceName), " ", "-"))
	if base == "" {
		return slug
	}
	return base + "+" + slug
}
