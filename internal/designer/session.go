// Package designer ties one graph model, gesture machine and document
// dispatcher into an editor session that hosts (terminal, MCP, autosave)
// can share. All access to the model goes through the session lock.
package designer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/gesture"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/internal/transcode"
	"github.com/rendis/flowcanvas/internal/validation"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// Backend is the remote definition service.
type Backend interface {
	FetchRevisions(ctx context.Context, workflowType string) ([]schema.WorkflowDefinition, error)
	Save(ctx context.Context, def *schema.WorkflowDefinition) (*schema.WorkflowDefinition, error)
}

// DraftStore keeps local copies of unsaved documents.
type DraftStore interface {
	PutDraft(ctx context.Context, d *store.Draft) error
	GetDraft(ctx context.Context, key string) (*store.Draft, error)
}

// Deps configures a Session. Only Backend is needed for load and save;
// everything else is optional.
type Deps struct {
	SessionID string
	Backend   Backend
	Drafts    DraftStore
	Hub       streaming.EventHub
	Validator *validation.Validator
	Sizer     graph.SizeFunc
	Surface   geometry.Surface
	HitRadius float64
	Policy    gesture.TargetPolicy
	NewID     func() string
	Logger    *slog.Logger
}

// SaveResult is delivered by SaveAsync.
type SaveResult struct {
	Definition *schema.WorkflowDefinition
	Err        error
}

// newValidator builds the fallback validator for sessions without one.
var newValidator = validation.NewValidator

// Session is one open editor. It is safe for concurrent use.
type Session struct {
	id        string
	backend   Backend
	drafts    DraftStore
	hub       streaming.EventHub
	validator *validation.Validator
	sizer     graph.SizeFunc
	surface   geometry.Surface
	newID     func() string
	logger    *slog.Logger

	mu      sync.Mutex
	model   *graph.Model
	doc     *gesture.Dispatcher
	machine *gesture.Machine
	header  schema.Header

	// rev counts content changes; selection and viewport changes do not
	// make a session dirty.
	rev       uint64
	cleanRev  uint64
	draftRev  uint64
	saving    bool
	publishAt uint64
	resolved  []gesture.Resolution
}

// New builds an empty session.
func New(deps Deps) *Session {
	s := &Session{
		id:        deps.SessionID,
		backend:   deps.Backend,
		drafts:    deps.Drafts,
		hub:       deps.Hub,
		validator: deps.Validator,
		sizer:     deps.Sizer,
		surface:   deps.Surface,
		newID:     deps.NewID,
		logger:    deps.Logger,
		model:     graph.NewModel(),
		doc:       gesture.NewDispatcher(),
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	s.logger = s.logger.With(slog.String("session_id", s.id))

	s.model.OnChange(func(c graph.Change) {
		switch c.Kind {
		case graph.ChangeSelection, graph.ChangeViewport:
		default:
			s.rev++
		}
	})
	s.machine = gesture.New(gesture.Options{
		Model:     s.model,
		Size:      s.sizer,
		Surface:   deps.Surface,
		Document:  s.doc,
		HitRadius: deps.HitRadius,
		Policy:    deps.Policy,
		NewID:     s.newID,
		OnResolve: s.onResolve,
		Logger:    s.logger,
	})
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Key identifies the session to the autosaver and names its draft.
func (s *Session) Key() string { return s.id }

func (s *Session) context(ctx context.Context) context.Context {
	return logging.WithIDs(ctx, s.id, s.header.WorkflowType, s.header.ID)
}

// --- Loading ---

// Load fetches the revisions of workflowType and opens one: the revision
// named by revision when present, else the first active one, else the last
// one listed.
func (s *Session) Load(ctx context.Context, workflowType, revision string) (*schema.WorkflowDefinition, error) {
	if s.backend == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "designer: no backend configured")
	}
	ctx = logging.WithIDs(ctx, s.id, workflowType, "")
	defs, err := s.backend.FetchRevisions(ctx, workflowType)
	if err != nil {
		s.logger.ErrorContext(ctx, "fetch revisions failed", "error", err)
		return nil, err
	}
	def := PickRevision(defs, revision)
	if def == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no revisions for workflow type %q", workflowType)
	}
	s.LoadDefinition(ctx, def)
	return def, nil
}

// PickRevision chooses the definition Load opens. It returns nil for an
// empty list.
func PickRevision(defs []schema.WorkflowDefinition, revision string) *schema.WorkflowDefinition {
	if len(defs) == 0 {
		return nil
	}
	if revision != "" {
		for i := range defs {
			if defs[i].Revision == revision {
				return &defs[i]
			}
		}
	}
	for i := range defs {
		if defs[i].IsActive {
			return &defs[i]
		}
	}
	return &defs[len(defs)-1]
}

// LoadDefinition replaces the session's graph with def. Any gesture in
// progress is abandoned.
func (s *Session) LoadDefinition(ctx context.Context, def *schema.WorkflowDefinition) {
	s.mu.Lock()
	s.machine.Cancel()
	s.header = transcode.Load(def, s.model, s.newID)
	s.markClean()
	version := s.model.Version()
	ctx = s.context(ctx)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "definition loaded",
		"revision", def.Revision, "nodes", len(def.Nodes), "connections", len(def.Connections))
	s.publish(ctx, schema.EventDefinitionLoaded, version, map[string]any{
		"revision": def.Revision,
		"nodes":    len(def.Nodes),
	})
}

func (s *Session) markClean() {
	s.cleanRev = s.rev
	s.draftRev = s.rev
	s.publishAt = s.rev
}

// --- Reading ---

// Header returns the metadata of the open definition.
func (s *Session) Header() schema.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header
}

// Document returns the wire document for the current graph.
func (s *Session) Document() *schema.WorkflowDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return transcode.Save(s.model, s.header)
}

// Dirty reports whether the graph changed since it was loaded or saved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev != s.cleanRev
}

// Version returns the model's version counter.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Version()
}

// View runs fn with the model under the session lock. fn must not retain
// the model.
func (s *Session) View(fn func(m *graph.Model)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.model)
}

// Update runs fn with the model under the session lock and publishes a
// graph change event when the content changed.
func (s *Session) Update(ctx context.Context, fn func(m *graph.Model)) {
	s.locked(func() { fn(s.model) })
	s.flushChanges(ctx)
}

func (s *Session) locked(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// State returns the active gesture.
func (s *Session) State() gesture.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// Preview returns the in-progress connection line.
func (s *Session) Preview() (gesture.Preview, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Preview()
}

// Size returns the rendered size of n.
func (s *Session) Size(n *graph.Node) geometry.Size {
	if s.sizer == nil {
		return geometry.Size{}
	}
	return s.sizer(n)
}

// Surface returns the surface pointer events are measured against.
func (s *Session) Surface() geometry.Surface { return s.surface }

// --- Pointer input ---

// PointerDownCanvas starts a pan.
func (s *Session) PointerDownCanvas(ev gesture.PointerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine.StartPan(ev)
}

// PointerDownNode starts dragging nodeID.
func (s *Session) PointerDownNode(nodeID string, ev gesture.PointerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine.StartNodeDrag(nodeID, ev)
}

// PointerDownPort starts drawing a connection out of nodeID.
func (s *Session) PointerDownPort(nodeID string, ev gesture.PointerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine.StartConnection(nodeID, ev)
}

// PointerMove forwards a document-level move. The result tells the host to
// suppress default touch scrolling.
func (s *Session) PointerMove(ev gesture.PointerEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Move(ev)
}

// PointerUp forwards a document-level release.
func (s *Session) PointerUp(ctx context.Context, ev gesture.PointerEvent) {
	s.locked(func() { s.doc.Up(ev) })
	s.flushChanges(ctx)
}

// CancelGesture abandons the gesture in progress.
func (s *Session) CancelGesture() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine.Cancel()
}

// Connect adds a connection between two runtime node ids under the same
// rules as a drawn connection.
func (s *Session) Connect(ctx context.Context, sourceID, targetID string) gesture.Resolution {
	s.mu.Lock()
	res := gesture.Connect(s.model, sourceID, targetID, s.newID)
	s.onResolve(res)
	s.mu.Unlock()
	s.flushChanges(ctx)
	return res
}

// onResolve is called with the session lock held. Resolutions are queued
// and published by flushChanges once the lock is released.
func (s *Session) onResolve(res gesture.Resolution) {
	s.resolved = append(s.resolved, res)
}

// flushChanges publishes queued connection outcomes and one graph change
// event for all content edits since the last one.
func (s *Session) flushChanges(ctx context.Context) {
	s.mu.Lock()
	resolved := s.resolved
	s.resolved = nil
	changed := s.rev != s.publishAt
	s.publishAt = s.rev
	version := s.model.Version()
	ctx = s.context(ctx)
	s.mu.Unlock()

	for _, res := range resolved {
		typ := schema.EventConnectionCreated
		if res.Outcome != gesture.OutcomeCreated {
			typ = schema.EventConnectionRejected
		}
		s.publish(ctx, typ, version, res)
	}
	if changed {
		s.publish(ctx, schema.EventGraphChanged, version, nil)
	}
}

// --- Validation ---

// Validate checks the current document.
func (s *Session) Validate(ctx context.Context) *schema.ValidationResult {
	v := s.validator
	if v == nil {
		var err error
		if v, err = newValidator(nil, nil); err != nil {
			s.logger.ErrorContext(ctx, "build validator", "error", err)
			r := &schema.ValidationResult{}
			r.AddError("", schema.ErrCodeValidation, fmt.Sprintf("validator unavailable: %v", err))
			return r
		}
	}
	return v.Validate(ctx, s.Document())
}

// --- Saving ---

// Save posts the current document. On success the header follows the
// persisted document and the session is clean unless it was edited while
// the request was in flight. On failure the graph is left untouched and a
// draft is stored when a draft store is configured.
func (s *Session) Save(ctx context.Context) (*schema.WorkflowDefinition, error) {
	if s.backend == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "designer: no backend configured")
	}
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return nil, schema.NewError(schema.ErrCodeConflict, "designer: save already in progress")
	}
	s.saving = true
	doc := transcode.Save(s.model, s.header)
	rev := s.rev
	ctx = s.context(ctx)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.saving = false
		s.mu.Unlock()
	}()

	if s.validator != nil {
		if err := s.validator.ValidateDefinition(ctx, doc); err != nil {
			return nil, s.saveFailed(ctx, doc, err)
		}
	}

	saved, err := s.backend.Save(ctx, doc)
	if err != nil {
		return nil, s.saveFailed(ctx, doc, err)
	}

	s.mu.Lock()
	s.header = saved.Header()
	if s.header.WorkflowType == "" {
		s.header.WorkflowType = doc.WorkflowType
	}
	if s.rev == rev {
		s.markClean()
	} else {
		s.cleanRev = rev
	}
	version := s.model.Version()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "definition saved", "revision", saved.Revision)
	s.publish(logging.WithDefinitionID(ctx, saved.ID), schema.EventDefinitionSaved, version, map[string]any{
		"id":       saved.ID,
		"revision": saved.Revision,
	})
	return saved, nil
}

// SaveAsync runs Save on its own goroutine. The channel receives exactly
// one result and is then closed.
func (s *Session) SaveAsync(ctx context.Context) <-chan SaveResult {
	out := make(chan SaveResult, 1)
	go func() {
		defer close(out)
		def, err := s.Save(ctx)
		out <- SaveResult{Definition: def, Err: err}
	}()
	return out
}

func (s *Session) saveFailed(ctx context.Context, doc *schema.WorkflowDefinition, cause error) error {
	s.logger.ErrorContext(ctx, "save failed", "error", cause)
	payload := map[string]any{"error": cause.Error()}
	if s.drafts != nil {
		if d, err := s.putDraft(ctx, doc, store.DraftSaveFailed); err != nil {
			s.logger.ErrorContext(ctx, "store draft after failed save", "error", err)
		} else {
			payload["draft_key"] = d.Key
		}
	}
	s.publish(ctx, schema.EventSaveFailed, s.Version(), payload)
	return cause
}

// --- Drafts ---

// SaveDraft stores the current document locally.
func (s *Session) SaveDraft(ctx context.Context) (*store.Draft, error) {
	return s.saveDraft(ctx, store.DraftManual)
}

// Autosave stores a draft when the graph changed since the last draft. It
// implements the scheduler's target contract.
func (s *Session) Autosave(ctx context.Context) error {
	s.mu.Lock()
	unchanged := s.rev == s.draftRev
	s.mu.Unlock()
	if unchanged {
		return nil
	}
	_, err := s.saveDraft(ctx, store.DraftAutosave)
	return err
}

func (s *Session) saveDraft(ctx context.Context, reason string) (*store.Draft, error) {
	if s.drafts == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "designer: no draft store configured")
	}
	s.mu.Lock()
	doc := transcode.Save(s.model, s.header)
	rev := s.rev
	ctx = s.context(ctx)
	s.mu.Unlock()

	d, err := s.putDraft(ctx, doc, reason)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.draftRev = rev
	s.mu.Unlock()
	return d, nil
}

func (s *Session) putDraft(ctx context.Context, doc *schema.WorkflowDefinition, reason string) (*store.Draft, error) {
	d := &store.Draft{
		Key:          s.Key(),
		SessionID:    s.id,
		WorkflowType: doc.WorkflowType,
		DefinitionID: doc.ID,
		Reason:       reason,
		Document:     doc,
	}
	if err := s.drafts.PutDraft(ctx, d); err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "draft stored", "key", d.Key, "reason", reason)
	s.publish(ctx, schema.EventDraftSaved, s.Version(), map[string]any{"key": d.Key, "reason": reason})
	return d, nil
}

// RestoreDraft loads the draft stored under key. The restored graph is
// dirty since it was never saved to the backend.
func (s *Session) RestoreDraft(ctx context.Context, key string) (*store.Draft, error) {
	if s.drafts == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "designer: no draft store configured")
	}
	d, err := s.drafts.GetDraft(ctx, key)
	if err != nil {
		return nil, err
	}
	if d.Document == nil {
		return nil, schema.NewErrorf(schema.ErrCodeDecode, "draft %q has no document", key)
	}

	s.mu.Lock()
	s.machine.Cancel()
	before := s.rev
	s.header = transcode.Load(d.Document, s.model, s.newID)
	s.markClean()
	s.cleanRev = before
	version := s.model.Version()
	ctx = s.context(ctx)
	s.mu.Unlock()

	s.publish(ctx, schema.EventDraftRestored, version, map[string]any{"key": key})
	return d, nil
}

// --- Events ---

func (s *Session) publish(ctx context.Context, typ string, version uint64, payload any) {
	if s.hub == nil {
		return
	}
	ev := streaming.Event{
		SessionID:    s.id,
		WorkflowType: logging.WorkflowType(ctx),
		Type:         typ,
		Version:      version,
		Payload:      payload,
		At:           time.Now().UTC(),
	}
	if err := s.hub.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "publish event", "type", typ, "error", err)
	}
}
