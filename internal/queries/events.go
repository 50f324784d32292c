// Package queries runs the file audit log: plain audit events plus query
// threads (a root, replies, edits and a resolution) kept as flat rows of a
// single append-only table.
//
// Every row is classified into an EventKind. Rows written here carry an
// explicit Parent Query ID; older rows only reference their parent inside
// the message text and are classified by prefix.
package queries

import (
	"strings"
	"time"

	"github.com/fixr105/Seven-Render-sub002/internal/records"
)

// File Auditing Log field labels.
const (
	FieldLogID           = "Log Entry ID"
	FieldFile            = records.FieldFile
	FieldTimestamp       = "Timestamp"
	FieldActor           = "Actor"
	FieldEventType       = "Action/Event Type"
	FieldMessage         = "Details/Message"
	FieldTargetRole      = "Target User Role"
	FieldResolved        = "Resolved"
	FieldParentQueryID   = "Parent Query ID"
	FieldPreviousMessage = "Previous Message"
	FieldUpdatedMessage  = "Updated Message"
)

// Event types written to Action/Event Type.
const (
	EventQueryRaised   = "query_raised"
	EventQueryReplied  = "query_replied"
	EventQueryEdited   = "query_edited"
	EventQueryResolved = "query_resolved"
)

const (
	replyPrefix      = "Reply to query "
	editPrefix       = "Edit of query "
	resolutionPrefix = "Resolved query "
)

type EventKind int

const (
	KindPlain EventKind = iota
	KindQueryRoot
	KindQueryReply
	KindQueryEdit
	KindQueryResolution
)

func (k EventKind) String() string {
	switch k {
	case KindQueryRoot:
		return "query_root"
	case KindQueryReply:
		return "query_reply"
	case KindQueryEdit:
		return "query_edit"
	case KindQueryResolution:
		return "query_resolution"
	default:
		return "plain"
	}
}

// Event is one classified audit log row.
type Event struct {
	RecordID   string    `json:"recordId"`
	ID         string    `json:"id"`
	FileID     string    `json:"fileId"`
	Timestamp  time.Time `json:"timestamp"`
	Actor      string    `json:"actor"`
	EventType  string    `json:"eventType"`
	Message    string    `json:"message"`
	TargetRole string    `json:"targetRole,omitempty"`
	Resolved   bool      `json:"resolved"`
	Kind       EventKind `json:"-"`
	// ParentID is set for replies, edits and resolutions.
	ParentID string `json:"parentId,omitempty"`
	// Body is the message with any parent reference stripped.
	Body            string `json:"body"`
	PreviousMessage string `json:"previousMessage,omitempty"`
	UpdatedMessage  string `json:"updatedMessage,omitempty"`

	row records.Row
}

// Key is the id other rows use to reference this one.
func (e Event) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.RecordID
}

// Keys returns both ids.
func (e Event) Keys() []string {
	return []string{e.RecordID, e.ID}
}

// Classify parses an audit row and decides its kind.
func Classify(row records.Row) Event {
	id, biz := records.Keys(records.TableAuditLog, row)
	event := Event{
		RecordID:        id,
		ID:              biz,
		FileID:          row.String(FieldFile, records.FieldFileID),
		Actor:           row.String(FieldActor),
		EventType:       row.String(FieldEventType),
		Message:         row.String(FieldMessage),
		TargetRole:      row.String(FieldTargetRole),
		Resolved:        row.Bool(FieldResolved),
		PreviousMessage: row.String(FieldPreviousMessage),
		UpdatedMessage:  row.String(FieldUpdatedMessage),
		row:             row,
	}
	if event.ID == "" {
		event.ID = id
	}
	event.Timestamp, _ = row.Time(FieldTimestamp)
	event.Body = event.Message

	eventType := strings.ToLower(event.EventType)
	if !strings.Contains(eventType, "query") {
		event.Kind = KindPlain
		return event
	}

	parent := row.String(FieldParentQueryID)
	switch {
	case eventType == EventQueryEdited:
		event.Kind = KindQueryEdit
		if parent == "" {
			parent, _ = parseReference(event.Message, editPrefix, " at ")
		}
		if event.PreviousMessage == "" && event.UpdatedMessage == "" {
			event.PreviousMessage, event.UpdatedMessage = parseEditTexts(event.Message)
		}
	case eventType == EventQueryResolved:
		event.Kind = KindQueryResolution
		if parent == "" {
			parent, _ = parseReference(event.Message, resolutionPrefix, "")
		}
	case strings.HasPrefix(event.Message, replyPrefix):
		event.Kind = KindQueryReply
		ref, rest := parseReference(event.Message, replyPrefix, ": ")
		if parent == "" {
			parent = ref
		}
		event.Body = rest
	case parent != "":
		event.Kind = KindQueryReply
	default:
		event.Kind = KindQueryRoot
	}
	event.ParentID = parent
	return event
}

// parseReference reads "<prefix><id><sep><rest>". An empty sep takes the
// first word after the prefix as the id.
func parseReference(message, prefix, sep string) (string, string) {
	if !strings.HasPrefix(message, prefix) {
		return "", message
	}
	tail := message[len(prefix):]
	if sep == "" {
		id, rest, _ := strings.Cut(tail, " ")
		return strings.TrimSpace(id), strings.TrimSpace(rest)
	}
	id, rest, found := strings.Cut(tail, sep)
	if !found {
		return strings.TrimSpace(tail), ""
	}
	return strings.TrimSpace(id), rest
}

// parseEditTexts reads the "Previous: x | Updated: y" tail of an edit message.
func parseEditTexts(message string) (string, string) {
	_, tail, found := strings.Cut(message, ". Previous: ")
	if !found {
		return "", ""
	}
	previous, updated, _ := strings.Cut(tail, " | Updated: ")
	return previous, updated
}

func replyMessage(parentID, text string) string {
	return replyPrefix + parentID + ": " + text
}

func editMessage(queryID string, at time.Time, previous, updated string) string {
	return editPrefix + queryID + " at " + at.UTC().Format(time.RFC3339) + ". Previous: " + previous + " | Updated: " + updated
}

func resolutionMessage(queryID, by string) string {
	return resolutionPrefix + queryID + " by " + by
}
