package advisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// sessionFileVersion guards the on-disk format. The original shipped
// unversioned snapshots; version 1 is the first versioned format.
const sessionFileVersion = 1

// sessionEnvelope is the persisted session file.
type sessionEnvelope struct {
	Version int          `json:"version"`
	SavedAt time.Time    `json:"savedAt"`
	State   SessionState `json:"state"`
}

// Save writes the session snapshot to path as versioned JSON.
func (o *Orchestrator) Save(path string) error {
	envelope := sessionEnvelope{
		Version: sessionFileVersion,
		SavedAt: time.Now(),
		State:   o.State(),
	}

	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	o.logger.Info("Session saved", "path", path)
	return nil
}

// LoadState reads a persisted session snapshot from path.
func LoadState(path string) (SessionState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SessionState{}, fmt.Errorf("failed to read session: %w", err)
	}

	var envelope sessionEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return SessionState{}, fmt.Errorf("failed to parse session: %w", err)
	}
	if envelope.Version != sessionFileVersion {
		return SessionState{}, fmt.Errorf("unsupported session file version %d", envelope.Version)
	}
	if !envelope.State.Stage.IsValid() {
		return SessionState{}, fmt.Errorf("invalid stage %q in session file", envelope.State.Stage)
	}

	return envelope.State, nil
}

// Restore replaces the session state with a loaded snapshot.
func (o *Orchestrator) Restore(state SessionState) error {
	if !state.Stage.IsValid() {
		return fmt.Errorf("restore session %s: invalid stage %q", o.id, state.Stage)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	from := o.state.Stage
	o.state = state.clone()
	o.stageChanged(from, state.Stage)

	o.logger.Info("Session restored", "stage", state.Stage)
	return nil
}
