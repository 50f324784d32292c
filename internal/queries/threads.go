package queries

import (
	"sort"
	"time"

	"github.com/fixr105/Seven-Render-sub002/internal/idmatch"
	"github.com/fixr105/Seven-Render-sub002/internal/records"
)

type Edit struct {
	ID              string    `json:"id"`
	EditedBy        string    `json:"editedBy"`
	EditedAt        time.Time `json:"editedAt"`
	PreviousMessage string    `json:"previousMessage"`
	UpdatedMessage  string    `json:"updatedMessage"`
}

type Reply struct {
	ID          string    `json:"id"`
	Actor       string    `json:"actor"`
	Message     string    `json:"message"`
	TargetRole  string    `json:"targetRole,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	EditHistory []Edit    `json:"editHistory"`
}

type Resolution struct {
	ID         string    `json:"id"`
	ResolvedBy string    `json:"resolvedBy"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

type Thread struct {
	ID          string      `json:"id"`
	FileID      string      `json:"fileId"`
	Actor       string      `json:"actor"`
	Message     string      `json:"message"`
	TargetRole  string      `json:"targetRole,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	IsResolved  bool        `json:"isResolved"`
	Resolution  *Resolution `json:"resolution,omitempty"`
	Replies     []Reply     `json:"replies"`
	EditHistory []Edit      `json:"editHistory"`
}

// BuildThreads reconstructs the query threads of one file from audit rows in
// any order. fileKeys are the ids the file may be referenced by. Threads come
// newest root first, replies oldest first and edits newest first; ties break
// on id so the output depends only on the rows.
// A thread is resolved when its root row is, whatever its replies say.
func BuildThreads(rows []records.Row, fileKeys ...string) []Thread {
	var roots, replies, edits, resolutions []Event
	for _, row := range rows {
		event := Classify(row)
		if event.Kind == KindPlain || !equalsAny(event.FileID, fileKeys) {
			continue
		}
		switch event.Kind {
		case KindQueryRoot:
			roots = append(roots, event)
		case KindQueryReply:
			replies = append(replies, event)
		case KindQueryEdit:
			edits = append(edits, event)
		case KindQueryResolution:
			resolutions = append(resolutions, event)
		}
	}

	sortEvents(roots, true)
	sortEvents(replies, false)
	sortEvents(edits, true)
	sortEvents(resolutions, false)

	threads := make([]Thread, len(roots))
	rootIndex := make(map[string]int, 2*len(roots))
	for i, root := range roots {
		threads[i] = Thread{
			ID:          root.Key(),
			FileID:      root.FileID,
			Actor:       root.Actor,
			Message:     root.Message,
			TargetRole:  root.TargetRole,
			CreatedAt:   root.Timestamp,
			IsResolved:  root.Resolved,
			Replies:     []Reply{},
			EditHistory: []Edit{},
		}
		indexKeys(rootIndex, root, i)
	}

	type replyRef struct{ thread, reply int }
	replyIndex := make(map[string]replyRef, 2*len(replies))
	for _, reply := range replies {
		t, ok := rootIndex[idmatch.Normalize(reply.ParentID)]
		if !ok {
			continue
		}
		threads[t].Replies = append(threads[t].Replies, Reply{
			ID:          reply.Key(),
			Actor:       reply.Actor,
			Message:     reply.Body,
			TargetRole:  reply.TargetRole,
			CreatedAt:   reply.Timestamp,
			EditHistory: []Edit{},
		})
		ref := replyRef{thread: t, reply: len(threads[t].Replies) - 1}
		for _, key := range reply.Keys() {
			if k := idmatch.Normalize(key); k != "" {
				replyIndex[k] = ref
			}
		}
	}

	for _, edit := range edits {
		parent := idmatch.Normalize(edit.ParentID)
		item := Edit{
			ID:              edit.Key(),
			EditedBy:        edit.Actor,
			EditedAt:        edit.Timestamp,
			PreviousMessage: edit.PreviousMessage,
			UpdatedMessage:  edit.UpdatedMessage,
		}
		if t, ok := rootIndex[parent]; ok {
			threads[t].EditHistory = append(threads[t].EditHistory, item)
		} else if ref, ok := replyIndex[parent]; ok {
			reply := &threads[ref.thread].Replies[ref.reply]
			reply.EditHistory = append(reply.EditHistory, item)
		}
	}

	for _, resolution := range resolutions {
		t, ok := rootIndex[idmatch.Normalize(resolution.ParentID)]
		if !ok || threads[t].Resolution != nil {
			continue
		}
		threads[t].Resolution = &Resolution{
			ID:         resolution.Key(),
			ResolvedBy: resolution.Actor,
			ResolvedAt: resolution.Timestamp,
		}
	}
	return threads
}

func equalsAny(value string, keys []string) bool {
	for _, key := range keys {
		if idmatch.Equal(value, key) {
			return true
		}
	}
	return false
}

func indexKeys(index map[string]int, event Event, i int) {
	for _, key := range event.Keys() {
		if k := idmatch.Normalize(key); k != "" {
			if _, taken := index[k]; !taken {
				index[k] = i
			}
		}
	}
}

func sortEvents(events []Event, newestFirst bool) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if newestFirst {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Key() < b.Key()
	})
}
