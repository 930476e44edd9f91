package discovery

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

const identityFileMode = 0600

// An Identity names a node on the discovery group. It is created once and
// persisted, so a node keeps the same ID across restarts.
type Identity struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// LoadOrCreateIdentity reads the identity stored at path. If the file does
// not exist yet, a fresh identity with a random ID is created and stored
// before being returned.
func LoadOrCreateIdentity(path, name string) (Identity, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Identity{}, fmt.Errorf("opening identity store failed: %w", err)
		}

		identity := Identity{ID: uuid.New(), Name: name}
		data, err := json.Marshal(identity)
		if err != nil {
			return Identity{}, fmt.Errorf("marshaling identity failed: %w", err)
		}
		if err := os.WriteFile(path, data, identityFileMode); err != nil {
			return Identity{}, fmt.Errorf("writing identity store failed: %w", err)
		}
		return identity, nil
	}

	var identity Identity
	if err := json.Unmarshal(content, &identity); err != nil {
		return Identity{}, fmt.Errorf("unmarshaling identity JSON failed: %w", err)
	}
	return identity, nil
}
