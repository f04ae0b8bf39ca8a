package supervisor

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// sessionLogEntry mirrors the JSONL transcript shape used by
// internal/monitor's stats sync — duplicated here narrowly since the
// supervisor scans the worker's own runtime session files independently of
// any tracked agent session.
type sessionLogEntry struct {
	Type    string `json:"type"`
	Message struct {
		Usage struct {
			InputTokens              int64 `json:"input_tokens"`
			OutputTokens             int64 `json:"output_tokens"`
			CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
			CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

type usageTally struct {
	input, output, cache int64
}

func discoverSessionFiles(projectDir string, known map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".jsonl")
		if !known[id] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func tallySessionFile(path string) (usageTally, error) {
	var t usageTally
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry sessionLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry.Type != "assistant" {
			continue
		}
		t.input += entry.Message.Usage.InputTokens
		t.output += entry.Message.Usage.OutputTokens
		t.cache += entry.Message.Usage.CacheCreationInputTokens + entry.Message.Usage.CacheReadInputTokens
	}
	return t, scanner.Err()
}

func projectDirFor(runtimeProjectsRoot, startDirectory string) string {
	sanitized := strings.ReplaceAll(startDirectory, string(filepath.Separator), "-")
	return filepath.Join(runtimeProjectsRoot, sanitized)
}
