package core

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ElvertMora/grimoirelab-perceval/internal/feed"
)

// Record is the unit the pipeline emits: one feed entry wrapped in the
// envelope of backend metadata that consumers key on.
type Record struct {
	BackendName    string     `json:"backend_name"`
	BackendVersion string     `json:"backend_version"`
	UUID           string     `json:"uuid"`
	Origin         string     `json:"origin"`
	Tag            string     `json:"tag"`
	Timestamp      float64    `json:"timestamp"`
	UpdatedOn      float64    `json:"updated_on"`
	Category       string     `json:"category"`
	ID             string     `json:"id"`
	Entry          feed.Entry `json:"-"`
}

// MarshalJSON flattens the record into a single object: the entry's fields at
// the top level with the envelope keys overlaid. Envelope keys win on
// collision.
func (r Record) MarshalJSON() ([]byte, error) {
	type envelope Record

	flat := map[string]interface{}{}

	entryJSON, err := json.Marshal(r.Entry)
	if err != nil {
		return nil, fmt.Errorf("marshal entry: %w", err)
	}
	if err := json.Unmarshal(entryJSON, &flat); err != nil {
		return nil, fmt.Errorf("flatten entry: %w", err)
	}

	envJSON, err := json.Marshal(envelope(r))
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	if err := json.Unmarshal(envJSON, &flat); err != nil {
		return nil, fmt.Errorf("flatten envelope: %w", err)
	}

	return json.Marshal(flat)
}

// ItemUUID derives the stable identifier of an item: sha1 over the
// colon-joined parts, hex encoded. Every backend builds its item uuids the
// same way so identifiers stay comparable across archives.
func ItemUUID(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}
