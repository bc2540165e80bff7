package events

import (
	"bytes"
	"encoding/json"
	"strings"

	"polymarket-mm/pkg/types"
)

// isPong reports whether raw is a case-insensitive "PONG" text frame,
// ignoring surrounding whitespace — both Polymarket socket generations use
// a bare PONG frame rather than a JSON envelope for keepalive replies.
func isPong(raw []byte) bool {
	return strings.EqualFold(strings.TrimSpace(string(raw)), "PONG")
}

// decodeArrayOrSingle decodes raw into a []T whether it is a JSON array or a
// single JSON object, matching the reference's Vec<T>-or-T fallback.
func decodeArrayOrSingle[T any](raw []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []T
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var single T
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, err
	}
	return []T{single}, nil
}

// userEventType extracts the discriminator from a user-channel frame; new
// schema uses "type", legacy uses "event_type". Both are checked so a
// single dispatch path covers either generation.
func userEventType(raw json.RawMessage) string {
	var probe struct {
		Type      string `json:"type"`
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	if probe.EventType != "" {
		return strings.ToLower(probe.EventType)
	}
	return strings.ToLower(probe.Type)
}

// aggOrderbookFromLegacy reconstructs a new-schema AggOrderbookPayload from
// a legacy "book" frame, matching handle_book_legacy's field remapping
// (hash falls back to the frame's market field when absent).
func aggOrderbookFromLegacy(frame types.LegacyBookFrame) types.AggOrderbookPayload {
	hash := frame.Hash
	if hash == "" {
		hash = frame.Market
	}
	return types.AggOrderbookPayload{
		AssetID:   frame.AssetID,
		Market:    frame.Market,
		Bids:      priceLevelsToAgg(frame.Buys),
		Asks:      priceLevelsToAgg(frame.Sells),
		Timestamp: frame.Timestamp,
		Hash:      hash,
	}
}

func priceLevelsToAgg(levels []types.PriceLevel) []types.AggOrderbookLevel {
	out := make([]types.AggOrderbookLevel, len(levels))
	for i, l := range levels {
		out[i] = types.AggOrderbookLevel{Price: l.Price, Size: l.Size}
	}
	return out
}
