package core

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// eventRecord is the on-disk shape of an Event. It mirrors Event's JSON tags
// except Data, which is kept as raw bytes so it can be decoded with
// DecodeData and preserve json.Number round-tripping.
type eventRecord struct {
	EventID    string          `json:"node_id"`
	AssetID    string          `json:"asset_id"`
	Action     Action          `json:"action"`
	UserID     string          `json:"user_id"`
	Timestamp  float64         `json:"timestamp"`
	References []string        `json:"references"`
	Signature  string          `json:"signature"`
	Hash       string          `json:"hash"`
	Data       json.RawMessage `json:"data"`
}

type ledgerFile struct {
	Events map[string]eventRecord `json:"nodes"`
	Tips   []string               `json:"tips"`
}

func (e *Event) toRecord() (eventRecord, error) {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return eventRecord{}, err
	}
	return eventRecord{
		EventID:    e.EventID,
		AssetID:    e.AssetID,
		Action:     e.Action,
		UserID:     e.UserID,
		Timestamp:  e.Timestamp,
		References: e.References,
		Signature:  e.Signature,
		Hash:       e.Hash,
		Data:       raw,
	}, nil
}

func eventFromRecord(r eventRecord) (*Event, error) {
	data, err := DecodeData(r.Data)
	if err != nil {
		return nil, err
	}
	references := r.References
	if references == nil {
		references = []string{}
	}
	e, err := NewEvent(r.AssetID, r.Action, r.UserID, data, references,
		WithEventID(r.EventID), WithTimestamp(r.Timestamp), WithSignature(r.Signature))
	if err != nil {
		return nil, err
	}
	e.Hash = r.Hash
	return e, nil
}

// loadIfPresent loads storagePath into the ledger if it exists. A primary
// file that fails to parse falls back to its .bak companion, mirroring the
// prototype's recovery behaviour; a ledger with no file at all on disk
// starts empty.
func (l *Ledger) loadIfPresent() error {
	data, err := os.ReadFile(l.storagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return wrapError(KindPersistence, err, "failed to read ledger file %s", l.storagePath)
	}

	if loadErr := l.loadBytes(data); loadErr == nil {
		return nil
	}

	backupPath := l.storagePath + ".bak"
	backupData, err := os.ReadFile(backupPath)
	if err != nil {
		return wrapError(KindPersistence, err, "ledger file %s is corrupt and no backup is available", l.storagePath)
	}
	l.logger.Warnf("ledger file %s is corrupt, recovering from backup", l.storagePath)
	return l.loadBytes(backupData)
}

func (l *Ledger) loadBytes(raw []byte) error {
	var file ledgerFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return wrapError(KindPersistence, err, "failed to parse ledger contents")
	}

	events := make(map[string]*Event, len(file.Events))
	for id, rec := range file.Events {
		e, err := eventFromRecord(rec)
		if err != nil {
			return wrapError(KindPersistence, err, "failed to decode node %s", id)
		}
		events[e.EventID] = e
	}
	tips := make(map[string]struct{}, len(file.Tips))
	for _, id := range file.Tips {
		tips[id] = struct{}{}
	}

	l.events = events
	l.tips = tips
	return nil
}

// saveLocked writes the ledger to storagePath using a backup-then-rename
// protocol: the existing file is best-effort copied to a .bak sibling, the
// new contents are written to a .tmp sibling, then renamed into place.
// Rename is atomic on POSIX filesystems, so a crash mid-write never leaves
// storagePath truncated or half-written. Must be called with mu held.
func (l *Ledger) saveLocked() error {
	if l.storagePath == "" {
		return nil
	}

	if existing, err := os.ReadFile(l.storagePath); err == nil {
		_ = os.WriteFile(l.storagePath+".bak", existing, 0o644)
	}

	file := ledgerFile{
		Events: make(map[string]eventRecord, len(l.events)),
		Tips:   make([]string, 0, len(l.tips)),
	}
	for _, e := range l.events {
		rec, err := e.toRecord()
		if err != nil {
			return wrapError(KindPersistence, err, "failed to encode node %s", e.EventID)
		}
		file.Events[e.EventID] = rec
	}
	for id := range l.tips {
		file.Tips = append(file.Tips, id)
	}

	encoded, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return wrapError(KindPersistence, err, "failed to encode ledger")
	}

	dir := filepath.Dir(l.storagePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return wrapError(KindPersistence, err, "failed to create ledger directory %s", dir)
		}
	}

	tmpPath := l.storagePath + ".tmp"
	if err := writeFileFsync(tmpPath, encoded); err != nil {
		return wrapError(KindPersistence, err, "failed to write temporary ledger file")
	}
	if err := os.Rename(tmpPath, l.storagePath); err != nil {
		return wrapError(KindPersistence, err, "failed to swap ledger file into place")
	}
	return nil
}

func writeFileFsync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
