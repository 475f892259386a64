package reconcile

import (
	"slices"
	"strings"

	"chat-client/internal/models"
)

// Merge folds one server message into a list. A message whose id is already
// present overwrites that entry in place and is marked confirmed; anything else
// is appended and the list is re-sorted by CreatedAt.
func Merge(existing []models.Message, incoming models.Message) []models.Message {
	if i := indexOf(existing, incoming.ID); i >= 0 {
		out := slices.Clone(existing)
		merged := incoming
		merged.IsSystem = existing[i].IsSystem || incoming.IsSystem
		merged.Status = models.StatusSent
		merged.IsLocal = false
		out[i] = merged
		return out
	}
	out := make([]models.Message, 0, len(existing)+1)
	out = append(out, existing...)
	out = append(out, incoming)
	sortByCreatedAt(out)
	return out
}

// AppendOptimistic adds a placeholder at the tail. It is the newest entry by
// construction so no sort is needed.
func AppendOptimistic(existing []models.Message, msg models.Message) []models.Message {
	out := make([]models.Message, 0, len(existing)+1)
	out = append(out, existing...)
	return append(out, msg)
}

// MarkFailed flips the entry with the given id to failed, leaving its body intact.
func MarkFailed(existing []models.Message, id string) []models.Message {
	i := indexOf(existing, id)
	if i < 0 {
		return existing
	}
	out := slices.Clone(existing)
	out[i].Status = models.StatusFailed
	return out
}

// ReplaceOptimistic removes the placeholder and merges the confirmed message.
// If a realtime push already delivered the confirmed id, the merge overwrites
// that entry instead of inserting a second copy.
func ReplaceOptimistic(existing []models.Message, optimisticID string, confirmed models.Message) []models.Message {
	without := existing
	if optimisticID != "" {
		without = slices.DeleteFunc(slices.Clone(existing), func(m models.Message) bool {
			return m.ID == optimisticID
		})
	}
	return Merge(without, confirmed)
}

// DropSelfEcho removes unconfirmed local entries that a push from the same
// author with the same trimmed body is about to supersede.
func DropSelfEcho(existing []models.Message, incoming models.Message) []models.Message {
	body := strings.TrimSpace(incoming.Body)
	isEcho := func(m models.Message) bool {
		return m.IsLocal &&
			m.Status != models.StatusSent &&
			m.UserUID == incoming.UserUID &&
			strings.TrimSpace(m.Body) == body
	}
	if !slices.ContainsFunc(existing, isEcho) {
		return existing
	}
	return slices.DeleteFunc(slices.Clone(existing), isEcho)
}

// Union seeds a list from history and keeps entries the history does not know
// about yet, such as placeholders and pushes that raced the fetch.
func Union(history, existing []models.Message) []models.Message {
	out := make([]models.Message, 0, len(history)+len(existing))
	seen := make(map[string]struct{}, len(history))
	for _, m := range history {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	for _, m := range existing {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	sortByCreatedAt(out)
	return out
}

// ISO-8601 timestamps from the backend are fixed width, so a byte comparison
// orders them chronologically.
func sortByCreatedAt(list []models.Message) {
	slices.SortStableFunc(list, func(a, b models.Message) int {
		return strings.Compare(a.CreatedAt, b.CreatedAt)
	})
}

func indexOf(list []models.Message, id string) int {
	return slices.IndexFunc(list, func(m models.Message) bool { return m.ID == id })
}
