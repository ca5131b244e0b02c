package main

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	historyFile     = "history"
	historyMaxLines = 1000
)

// history keeps the lines entered in interactive mode, one per line, so
// that they can be recalled with the arrow keys in the next session.
type history struct {
	path    string
	maxSize int
	file    *os.File
}

func openHistory(dir string, maxSize int) (*history, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create history dir")
	}

	path := filepath.Join(dir, historyFile)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open history")
	}

	return &history{
		path:    path,
		maxSize: maxSize,
		file:    file,
	}, nil
}

// lines returns at most maxSize of the latest recorded lines, oldest first.
func (h *history) lines() []string {
	if h == nil || h.file == nil {
		return nil
	}

	if _, err := h.file.Seek(0, 0); err != nil {
		return nil
	}

	var lines []string
	scanner := bufio.NewScanner(h.file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}

	if h.maxSize > 0 && len(lines) > h.maxSize {
		lines = lines[len(lines)-h.maxSize:]
	}

	return lines
}

func (h *history) add(line string) error {
	if h == nil || h.file == nil {
		return nil
	}

	if _, err := h.file.WriteString(line + "\n"); err != nil {
		return errors.Wrap(err, "write history")
	}

	return h.file.Sync()
}

func (h *history) close() error {
	if h == nil || h.file == nil {
		return nil
	}

	err := h.file.Close()
	h.file = nil
	return err
}
