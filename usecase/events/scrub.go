package events

import (
	"encoding/json"

	"github.com/planhive/backend/domain"
)

// encodeItem converts an event into its shard map entry. The map key is the
// authoritative id, so the id field is stripped from the stored payload;
// readers promote the key back onto the item. All nil-valued fields are
// scrubbed because the store rejects null-like placeholders and a stricter
// downstream schema reader would choke on them.
func encodeItem(ev *domain.Event) (map[string]any, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeValidation, "unencodable event", err)
	}
	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, domain.WrapError(domain.ErrCodeValidation, "unencodable event", err)
	}
	delete(item, "id")
	return scrubMap(item), nil
}

// decodeItem converts a shard map entry back into an event.
func decodeItem(raw any) (domain.Event, error) {
	var ev domain.Event
	payload, err := json.Marshal(raw)
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, err
	}
	return ev, nil
}

// scrubMap removes nil values recursively. Absent means omitted, never a
// null placeholder.
func scrubMap(m map[string]any) map[string]any {
	for key, value := range m {
		switch v := value.(type) {
		case nil:
			delete(m, key)
		case map[string]any:
			m[key] = scrubMap(v)
		case []any:
			m[key] = scrubSlice(v)
		}
	}
	return m
}

func scrubSlice(s []any) []any {
	out := s[:0]
	for _, value := range s {
		switch v := value.(type) {
		case nil:
			continue
		case map[string]any:
			out = append(out, scrubMap(v))
		case []any:
			out = append(out, scrubSlice(v))
		default:
			out = append(out, v)
		}
	}
	return out
}
