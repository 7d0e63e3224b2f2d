package agent

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// callKey returns a deterministic fingerprint of (tool name, arguments).
// encoding/json marshals map keys in sorted order, so structurally identical
// argument sets produce the same key regardless of construction order.
func callKey(name string, args map[string]any) (string, error) {
	argJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("canonicalize arguments for %s: %w", name, err)
	}
	payload := append([]byte(name+"\x00"), argJSON...)
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%x", sum[:8]), nil
}

// callSet is the turn-scoped record of executed calls. It exists only for the
// duration of one ExecutingTools pass and is discarded when the turn ends, so
// identical calls across turns always execute.
type callSet map[string]struct{}

func (s callSet) seen(key string) bool {
	_, ok := s[key]
	return ok
}

func (s callSet) add(key string) {
	s[key] = struct{}{}
}
