package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	logFileName = "blackboard.jsonl"
	snapshotDir = "context_snapshots"
	agentDir    = "agent_outputs"
	filePerm    = 0o644
	dirPerm     = 0o755
)

// FileSink writes one directory per session under its root:
//
//	<root>/<session>/blackboard.jsonl
//	<root>/<session>/context_snapshots/<seq>_<trigger>.json
//	<root>/<session>/agent_outputs/<agent>_<seq>.json
type FileSink struct {
	root string
	mu   sync.Mutex
}

var _ Sink = (*FileSink)(nil)

// NewFileSink creates root if needed.
func NewFileSink(root string) (*FileSink, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	return &FileSink{root: root}, nil
}

// Write implements Sink.
func (s *FileSink) Write(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, e.SessionID)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	if e.Detail != nil {
		name, err := s.writeDetail(dir, e)
		if err != nil {
			return err
		}

		data := make(map[string]any, len(e.Data)+1)
		for k, v := range e.Data {
			data[k] = v
		}
		if e.Level == LevelContextUpdate {
			data["snapshot_file"] = name
		} else {
			data["output_file"] = name
		}
		e.Data = data
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}

	return nil
}

func (s *FileSink) writeDetail(dir string, e Entry) (string, error) {
	var sub, name string
	if e.Level == LevelContextUpdate {
		sub = snapshotDir
		trigger, _ := e.Detail["trigger"].(string)
		name = fmt.Sprintf("%06d_%s.json", e.Sequence, sanitize(trigger))
	} else {
		sub = agentDir
		name = fmt.Sprintf("%s_%06d.json", sanitize(e.AgentID), e.Sequence)
	}

	if err := os.MkdirAll(filepath.Join(dir, sub), dirPerm); err != nil {
		return "", fmt.Errorf("create %s: %w", sub, err)
	}

	body := map[string]any{
		"timestamp": e.Timestamp,
		"sequence":  e.Sequence,
		"agent_id":  e.AgentID,
	}
	for k, v := range e.Detail {
		body[k] = v
	}

	b, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", sub, err)
	}

	if err := os.WriteFile(filepath.Join(dir, sub, name), b, filePerm); err != nil {
		return "", fmt.Errorf("write %s: %w", sub, err)
	}

	return name, nil
}

// ReadSession returns the logged entries of a session. A session without a
// log yields no entries.
func (s *FileSink) ReadSession(sessionID string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(s.root, sessionID, logFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return entries, fmt.Errorf("decode audit entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, sc.Err()
}

func sanitize(s string) string {
	if s == "" {
		return "unnamed"
	}

	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			b[i] = '_'
		}
	}

	return string(b)
}
