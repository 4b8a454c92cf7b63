package main

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

const historyLimit = 1000

// commandHistory is the list of queries typed at the prompt, persisted to
// ~/.atlasdb_history between sessions. Dot commands are not recorded.
type commandHistory struct {
	entries []string
	path    string
}

func newCommandHistory() *commandHistory {
	h := &commandHistory{}
	if home, err := os.UserHomeDir(); err == nil {
		h.path = filepath.Join(home, ".atlasdb_history")
	}
	return h
}

// add records line unless it repeats the previous entry.
func (h *commandHistory) add(line string) {
	if n := len(h.entries); n > 0 && h.entries[n-1] == line {
		return
	}
	h.entries = append(h.entries, line)
	if over := len(h.entries) - historyLimit; over > 0 {
		h.entries = h.entries[over:]
	}
}

// recent returns up to n of the newest entries and the 1-based number of
// the first one.
func (h *commandHistory) recent(n int) ([]string, int) {
	start := max(len(h.entries)-n, 0)
	return h.entries[start:], start + 1
}

func (h *commandHistory) load() {
	if h.path == "" {
		return
	}
	f, err := os.Open(h.path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		h.add(scanner.Text())
	}
}

func (h *commandHistory) save() error {
	if h.path == "" {
		return nil
	}
	lines, _ := h.recent(historyLimit)
	if len(lines) == 0 {
		return nil
	}
	return os.WriteFile(h.path, []byte(strings.Join(lines, "\n")+"\n"), 0o600)
}
