// Package savefile persists game sessions as one JSON file per game under a
// per-user directory, with atomic writes and unknown-field preservation.
package savefile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/adrg/xdg"

	"github.com/ravenmoor/deepspire/internal/game/state"
	"github.com/ravenmoor/deepspire/internal/game/world"
	"github.com/ravenmoor/deepspire/internal/llm"
)

// DefaultContextEntries bounds how many LLM interactions a save retains.
const DefaultContextEntries = 50

// ErrSaveNotFound indicates no save file exists for the id.
var ErrSaveNotFound = errors.New("save not found")

// contextLogsKey is the save-file field carrying the LLM interaction log.
const contextLogsKey = "llm_context_logs"

// Meta is one entry in a user's save listing.
type Meta struct {
	GameID     string    `json:"game_id"`
	PlayerName string    `json:"player_name"`
	Class      string    `json:"class,omitempty"`
	Level      int       `json:"level"`
	Depth      int       `json:"depth"`
	LastSaved  time.Time `json:"last_saved"`
}

// Store writes and reads save files below one root directory. Callers
// serialise access per game with the game lock.
type Store struct {
	root           string
	contextEntries int
	now            func() time.Time
}

// DefaultRoot is the XDG data location for saves.
func DefaultRoot() string {
	return filepath.Join(xdg.DataHome, "deepspire", "saves")
}

// New builds a store rooted at dir (DefaultRoot when empty).
func New(dir string, contextEntries int, now func() time.Time) (*Store, error) {
	if dir == "" {
		dir = DefaultRoot()
	}
	if contextEntries <= 0 {
		contextEntries = DefaultContextEntries
	}
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create save root: %w", err)
	}
	return &Store{root: dir, contextEntries: contextEntries, now: now}, nil
}

func (s *Store) userDir(userID string) string {
	return filepath.Join(s.root, "users", userID)
}

func (s *Store) savePath(userID, gameID string) string {
	return filepath.Join(s.userDir(userID), gameID+".json")
}

func (s *Store) metadataPath(userID string) string {
	return filepath.Join(s.userDir(userID), "user_metadata.json")
}

// Save writes the game state atomically and updates the user's save
// listing. extra carries top-level fields from an earlier load that this
// version does not model; they round-trip untouched.
func (s *Store) Save(st *state.State, logs []llm.ContextEntry, extra map[string]json.RawMessage) error {
	if st == nil || st.UserID == "" || st.ID == "" {
		return fmt.Errorf("save requires a state with user and game ids")
	}
	st.LastSaved = s.now()

	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(stateJSON, &doc); err != nil {
		return fmt.Errorf("reshape state: %w", err)
	}
	// unknown fields from older or newer versions win only where this
	// version has nothing to say
	for k, v := range extra {
		if _, known := doc[k]; !known {
			doc[k] = v
		}
	}
	if len(logs) > s.contextEntries {
		logs = logs[len(logs)-s.contextEntries:]
	}
	if len(logs) > 0 {
		logsJSON, err := json.Marshal(logs)
		if err != nil {
			return fmt.Errorf("marshal context logs: %w", err)
		}
		doc[contextLogsKey] = logsJSON
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal save: %w", err)
	}
	if err := s.writeAtomic(s.savePath(st.UserID, st.ID), payload); err != nil {
		return err
	}
	return s.updateMetadata(st)
}

// Load reads a save, rebuilds runtime-only structures, and returns the
// retained context log and unknown top-level fields.
func (s *Store) Load(userID, gameID string) (*state.State, []llm.ContextEntry, map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.savePath(userID, gameID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil, ErrSaveNotFound
		}
		return nil, nil, nil, fmt.Errorf("read save: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, nil, fmt.Errorf("parse save: %w", err)
	}
	var logs []llm.ContextEntry
	if raw, ok := doc[contextLogsKey]; ok {
		if err := json.Unmarshal(raw, &logs); err != nil {
			return nil, nil, nil, fmt.Errorf("parse context logs: %w", err)
		}
		delete(doc, contextLogsKey)
	}

	var st state.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, nil, nil, fmt.Errorf("parse state: %w", err)
	}

	// strip the fields this version models; the remainder round-trips
	known, err := json.Marshal(&st)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reshape state: %w", err)
	}
	var knownDoc map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownDoc); err != nil {
		return nil, nil, nil, fmt.Errorf("reshape state: %w", err)
	}
	extra := map[string]json.RawMessage{}
	for k, v := range doc {
		if _, ok := knownDoc[k]; !ok {
			// the indented write reformats preserved fields; compact so
			// the bytes stay stable across load/save cycles
			var buf bytes.Buffer
			if err := json.Compact(&buf, v); err != nil {
				return nil, nil, nil, fmt.Errorf("compact unknown field %q: %w", k, err)
			}
			extra[k] = append(json.RawMessage(nil), buf.Bytes()...)
		}
	}
	if len(extra) == 0 {
		extra = nil
	}

	st.RebuildTileRefs()
	if st.CurrentMap != nil {
		world.RecomputeVisibility(st.CurrentMap, st.Player.Position.X, st.Player.Position.Y)
	}
	return &st, logs, extra, nil
}

// Exists reports whether a save file is on disk for the pair.
func (s *Store) Exists(userID, gameID string) bool {
	_, err := os.Stat(s.savePath(userID, gameID))
	return err == nil
}

// Delete removes a save and its listing entry.
func (s *Store) Delete(userID, gameID string) error {
	if err := os.Remove(s.savePath(userID, gameID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete save: %w", err)
	}
	metas, err := s.readMetadata(userID)
	if err != nil {
		return err
	}
	delete(metas, gameID)
	return s.writeMetadata(userID, metas)
}

// List returns the user's saves, most recently saved first.
func (s *Store) List(userID string) ([]Meta, error) {
	metas, err := s.readMetadata(userID)
	if err != nil {
		return nil, err
	}
	out := make([]Meta, 0, len(metas))
	for _, m := range metas {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSaved.After(out[j].LastSaved) })
	return out, nil
}

func (s *Store) updateMetadata(st *state.State) error {
	metas, err := s.readMetadata(st.UserID)
	if err != nil {
		return err
	}
	depth := 0
	if st.CurrentMap != nil {
		depth = st.CurrentMap.Depth
	}
	metas[st.ID] = Meta{
		GameID:     st.ID,
		PlayerName: st.Player.Name,
		Class:      st.Player.Class,
		Level:      st.Player.Stats.Level,
		Depth:      depth,
		LastSaved:  st.LastSaved,
	}
	return s.writeMetadata(st.UserID, metas)
}

func (s *Store) readMetadata(userID string) (map[string]Meta, error) {
	data, err := os.ReadFile(s.metadataPath(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Meta{}, nil
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var metas map[string]Meta
	if err := json.Unmarshal(data, &metas); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	if metas == nil {
		metas = map[string]Meta{}
	}
	return metas, nil
}

func (s *Store) writeMetadata(userID string, metas map[string]Meta) error {
	payload, err := json.MarshalIndent(metas, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return s.writeAtomic(s.metadataPath(userID), payload)
}

// writeAtomic writes via a temp file in the target directory and renames it
// into place.
func (s *Store) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create save dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".save-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp save: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close save: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename save: %w", err)
	}
	return nil
}
