package queries

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/fixr105/Seven-Render-sub002/internal/apperr"
	"github.com/fixr105/Seven-Render-sub002/internal/idmatch"
	"github.com/fixr105/Seven-Render-sub002/internal/logging"
	"github.com/fixr105/Seven-Render-sub002/internal/notify"
	"github.com/fixr105/Seven-Render-sub002/internal/rbac"
	"github.com/fixr105/Seven-Render-sub002/internal/records"
	"github.com/fixr105/Seven-Render-sub002/internal/util"
)

const moduleName = "queries"

const DefaultEditWindow = 15 * time.Minute

type Engine struct {
	gateway    records.Gateway
	notifier   notify.Notifier
	validate   *validator.Validate
	editWindow time.Duration
	now        func() time.Time
	dispatch   func(func())
	logger     *logrus.Logger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDispatcher sets how notifications are run. The default starts a
// goroutine per notification.
func WithDispatcher(dispatch func(func())) Option {
	return func(e *Engine) { e.dispatch = dispatch }
}

func WithEditWindow(window time.Duration) Option {
	return func(e *Engine) {
		if window > 0 {
			e.editWindow = window
		}
	}
}

func NewEngine(gateway records.Gateway, notifier notify.Notifier, logger *logrus.Logger, opts ...Option) *Engine {
	e := &Engine{
		gateway:    gateway,
		notifier:   notifier,
		validate:   validator.New(),
		editWindow: DefaultEditWindow,
		now:        time.Now,
		dispatch:   func(fn func()) { go fn() },
		logger:     logging.OrDiscard(logger),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type NewQuery struct {
	FileID     string `validate:"required"`
	ClientID   string
	Actor      rbac.Actor
	Message    string    `validate:"required,max=5000"`
	TargetRole rbac.Role `validate:"omitempty,oneof=client kam credit nbfc"`
}

// CreateQuery appends a query root and notifies the target role. The row is
// kept whatever happens to the notification.
func (e *Engine) CreateQuery(ctx context.Context, input NewQuery) (Event, error) {
	if err := e.validate.Struct(input); err != nil {
		return Event{}, apperr.FromValidator(err)
	}
	if !rbac.Can(input.Actor.Role, rbac.ActionRaiseQuery) {
		return Event{}, apperr.Forbidden("role cannot raise queries")
	}
	if strings.HasPrefix(strings.TrimSpace(input.Message), replyPrefix) {
		return Event{}, apperr.Validation("query text may not start with a reply reference",
			map[string]string{"Message": "reply_prefix"})
	}

	event, err := e.append(ctx, records.Row{
		FieldFile:       input.FileID,
		FieldActor:      input.Actor.Identity(),
		FieldEventType:  EventQueryRaised,
		FieldMessage:    strings.TrimSpace(input.Message),
		FieldTargetRole: string(input.TargetRole),
		FieldResolved:   false,
	})
	if err != nil {
		return Event{}, err
	}

	e.notify(ctx, input.TargetRole, notify.KindQueryRaised, input.FileID, input.ClientID, input.Actor, event.Body)
	return event, nil
}

type NewReply struct {
	ParentQueryID string `validate:"required"`
	FileID        string
	ClientID      string
	Actor         rbac.Actor
	Message       string    `validate:"required,max=5000"`
	TargetRole    rbac.Role `validate:"omitempty,oneof=client kam credit nbfc"`
}

// CreateQueryReply appends a reply to an existing root. The target role
// defaults to the root's.
func (e *Engine) CreateQueryReply(ctx context.Context, input NewReply) (Event, error) {
	if err := e.validate.Struct(input); err != nil {
		return Event{}, apperr.FromValidator(err)
	}
	if !rbac.Can(input.Actor.Role, rbac.ActionRaiseQuery) {
		return Event{}, apperr.Forbidden("role cannot reply to queries")
	}

	parent, err := e.findEvent(ctx, input.ParentQueryID, input.FileID)
	if err != nil {
		return Event{}, err
	}
	if parent.Kind != KindQueryRoot {
		return Event{}, apperr.StateViolation("NOT_A_QUERY_ROOT",
			fmt.Sprintf("%s is a %s, replies attach to a query root", input.ParentQueryID, parent.Kind), nil)
	}

	target := input.TargetRole
	if target == "" {
		target = rbac.Normalize(parent.TargetRole)
	}
	text := strings.TrimSpace(input.Message)
	event, err := e.append(ctx, records.Row{
		FieldFile:          parent.FileID,
		FieldActor:         input.Actor.Identity(),
		FieldEventType:     EventQueryReplied,
		FieldMessage:       replyMessage(parent.Key(), text),
		FieldTargetRole:    string(target),
		FieldParentQueryID: parent.Key(),
		FieldResolved:      false,
	})
	if err != nil {
		return Event{}, err
	}

	e.notify(ctx, target, notify.KindQueryReplied, parent.FileID, input.ClientID, input.Actor, text)
	return event, nil
}

type QueryEdit struct {
	QueryID     string `validate:"required"`
	FileID      string
	EditorEmail string `validate:"required"`
	NewMessage  string `validate:"required,max=5000"`
}

// UpdateQuery lets the author rewrite a root or reply within the edit
// window. The edit row is appended before the live row is overwritten so the
// history never misses a change that happened.
func (e *Engine) UpdateQuery(ctx context.Context, input QueryEdit) (Event, error) {
	if err := e.validate.Struct(input); err != nil {
		return Event{}, apperr.FromValidator(err)
	}
	target, err := e.findEvent(ctx, input.QueryID, input.FileID)
	if err != nil {
		return Event{}, err
	}
	if target.Kind != KindQueryRoot && target.Kind != KindQueryReply {
		return Event{}, apperr.StateViolation("NOT_EDITABLE", fmt.Sprintf("a %s cannot be edited", target.Kind), nil)
	}
	if !idmatch.Equal(target.Actor, input.EditorEmail) {
		return Event{}, apperr.Forbidden("only the author can edit a query")
	}

	now := e.now()
	if target.Timestamp.IsZero() || now.Sub(target.Timestamp) > e.editWindow {
		return Event{}, apperr.StateViolation("EDIT_WINDOW_EXPIRED",
			fmt.Sprintf("queries can only be edited within %s of posting", e.editWindow),
			map[string]string{"postedAt": target.Timestamp.UTC().Format(time.RFC3339)})
	}

	updated := strings.TrimSpace(input.NewMessage)
	if _, err := e.append(ctx, records.Row{
		FieldFile:            target.FileID,
		FieldActor:           target.Actor,
		FieldEventType:       EventQueryEdited,
		FieldMessage:         editMessage(target.Key(), now, target.Body, updated),
		FieldParentQueryID:   target.Key(),
		FieldPreviousMessage: target.Body,
		FieldUpdatedMessage:  updated,
		FieldResolved:        false,
	}); err != nil {
		return Event{}, err
	}

	row := target.row.Clone()
	if target.Kind == KindQueryReply {
		row[FieldMessage] = replyMessage(target.ParentID, updated)
	} else {
		row[FieldMessage] = updated
	}
	return e.write(ctx, row)
}

// ResolveQuery closes a thread. Only the author of the root may do so,
// whatever their role.
func (e *Engine) ResolveQuery(ctx context.Context, queryID, fileID string, resolver rbac.Actor) (Event, error) {
	if strings.TrimSpace(queryID) == "" {
		return Event{}, apperr.Validation("query id is required", map[string]string{"QueryID": "required"})
	}
	root, err := e.findEvent(ctx, queryID, fileID)
	if err != nil {
		return Event{}, err
	}
	if root.Kind != KindQueryRoot {
		return Event{}, apperr.StateViolation("NOT_A_QUERY_ROOT", "only a query root can be resolved", nil)
	}
	if !idmatch.Equal(root.Actor, resolver.Email) && !idmatch.Equal(root.Actor, resolver.ID) {
		return Event{}, apperr.Forbidden("only the author can resolve a query")
	}
	if root.Resolved {
		return Event{}, apperr.StateViolation("QUERY_ALREADY_RESOLVED", "query is already resolved", nil)
	}

	row := root.row.Clone()
	row[FieldResolved] = true
	resolved, err := e.write(ctx, row)
	if err != nil {
		return Event{}, err
	}

	if _, err := e.append(ctx, records.Row{
		FieldFile:          root.FileID,
		FieldActor:         resolver.Identity(),
		FieldEventType:     EventQueryResolved,
		FieldMessage:       resolutionMessage(root.Key(), resolver.Identity()),
		FieldParentQueryID: root.Key(),
		FieldTargetRole:    root.TargetRole,
		FieldResolved:      true,
	}); err != nil {
		logging.LogError(e.logger, moduleName, "ResolveQuery", "append resolution row",
			map[string]any{"queryId": root.Key()}, err)
	}

	e.notify(ctx, rbac.Normalize(root.TargetRole), notify.KindQueryResolved, root.FileID, "", resolver, root.Body)
	return resolved, nil
}

// RecordEvent appends a plain audit event, e.g. a status change.
func (e *Engine) RecordEvent(ctx context.Context, fileID string, actor rbac.Actor, eventType, message string) error {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return apperr.Validation("event type is required", map[string]string{"EventType": "required"})
	}
	if strings.Contains(strings.ToLower(eventType), "query") {
		return apperr.Validation("query events are written through the query operations",
			map[string]string{"EventType": "reserved"})
	}
	_, err := e.append(ctx, records.Row{
		FieldFile:      fileID,
		FieldActor:     actor.Identity(),
		FieldEventType: eventType,
		FieldMessage:   message,
		FieldResolved:  false,
	})
	return err
}

// GetQueriesForFile returns the threads of fileID. The file may be named by
// record id or File ID.
func (e *Engine) GetQueriesForFile(ctx context.Context, fileID string) ([]Thread, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, apperr.Validation("file id is required", map[string]string{"FileID": "required"})
	}
	rows, err := e.gateway.FetchTable(ctx, records.TableAuditLog)
	if err != nil {
		return nil, apperr.FromStore("load audit log", err)
	}
	keys := []string{fileID}
	if files, err := e.gateway.FetchTable(ctx, records.TableLoanFiles); err != nil {
		logging.LogWarning(e.logger, moduleName, "GetQueriesForFile", "loan files unavailable, matching audit rows on the given id only",
			map[string]any{"fileId": fileID, "error": err.Error()})
	} else if file, ok := records.FindByKey(records.TableLoanFiles, files, fileID); ok {
		id, biz := records.Keys(records.TableLoanFiles, file)
		keys = append(keys, id, biz)
	}
	return BuildThreads(rows, keys...), nil
}

// Events returns the classified audit rows of fileID, oldest first.
func (e *Engine) Events(ctx context.Context, fileID string) ([]Event, error) {
	rows, err := e.gateway.FetchTable(ctx, records.TableAuditLog)
	if err != nil {
		return nil, apperr.FromStore("load audit log", err)
	}
	events := make([]Event, 0)
	for _, row := range rows {
		event := Classify(row)
		if idmatch.Equal(event.FileID, fileID) {
			events = append(events, event)
		}
	}
	sortEvents(events, false)
	return events, nil
}

func (e *Engine) findEvent(ctx context.Context, queryID, fileID string) (Event, error) {
	rows, err := e.gateway.FetchTable(ctx, records.TableAuditLog)
	if err != nil {
		return Event{}, apperr.FromStore("load audit log", err)
	}
	row, ok := records.FindByKey(records.TableAuditLog, rows, queryID)
	if !ok {
		return Event{}, apperr.NotFound(fmt.Sprintf("query %q not found", queryID))
	}
	event := Classify(row)
	if event.Kind == KindPlain {
		return Event{}, apperr.NotFound(fmt.Sprintf("query %q not found", queryID))
	}
	if fileID != "" && !idmatch.Equal(event.FileID, fileID) && !e.sameFile(ctx, event.FileID, fileID) {
		return Event{}, apperr.NotFound(fmt.Sprintf("query %q not found on file %q", queryID, fileID))
	}
	return event, nil
}

// sameFile reports whether a and b are the record id and File ID of one file.
func (e *Engine) sameFile(ctx context.Context, a, b string) bool {
	files, err := e.gateway.FetchTable(ctx, records.TableLoanFiles)
	if err != nil {
		return false
	}
	file, ok := records.FindByKey(records.TableLoanFiles, files, a)
	if !ok {
		return false
	}
	id, biz := records.Keys(records.TableLoanFiles, file)
	return records.KeyMatches(id, biz, b)
}

func (e *Engine) append(ctx context.Context, row records.Row) (Event, error) {
	row[FieldLogID] = util.NewID("log")
	row[FieldTimestamp] = e.now().UTC().Format(time.RFC3339Nano)
	return e.write(ctx, row)
}

func (e *Engine) write(ctx context.Context, row records.Row) (Event, error) {
	stored, err := e.gateway.Upsert(ctx, records.TableAuditLog, row)
	if err != nil {
		return Event{}, apperr.FromStore("write audit log", err)
	}
	return Classify(stored), nil
}
