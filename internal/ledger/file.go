package ledger

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sswl/panpub/internal/logger"
)

// FileLedger is an append-only log of published titles, one entry per line:
// "<unix-timestamp>\t<normalized-title>". The whole set is kept in memory;
// the file is only appended to, never rewritten, except by Truncate.
type FileLedger struct {
	path    string
	mu      sync.Mutex
	file    *os.File
	entries map[string]time.Time
}

// NewFileLedger opens (or creates) the log at path and loads existing entries.
func NewFileLedger(path string) (*FileLedger, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger file: %w", err)
	}

	l := &FileLedger{
		path:    path,
		file:    file,
		entries: make(map[string]time.Time),
	}

	if err := l.load(); err != nil {
		file.Close()
		return nil, err
	}

	return l, nil
}

func (l *FileLedger) load() error {
	scanner := bufio.NewScanner(l.file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// Legacy entries carry no timestamp, just the title.
		var ts time.Time
		title := line
		if i := strings.IndexByte(line, '\t'); i > 0 {
			var unix int64
			if _, err := fmt.Sscanf(line[:i], "%d", &unix); err == nil {
				ts = time.Unix(unix, 0)
				title = line[i+1:]
			}
		}
		l.entries[Normalize(title)] = ts
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read ledger file: %w", err)
	}
	return nil
}

func (l *FileLedger) Has(ctx context.Context, title string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[Normalize(title)]
	return ok, nil
}

func (l *FileLedger) Record(ctx context.Context, title string, publishedAt time.Time) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := Normalize(title)
	if _, ok := l.entries[key]; ok {
		return nil
	}

	line := fmt.Sprintf("%d\t%s\n", publishedAt.Unix(), key)
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger file: %w", err)
	}

	l.entries[key] = publishedAt
	return nil
}

func (l *FileLedger) Truncate(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	logger.Get().Warn().
		Str("path", l.path).
		Int("entries", len(l.entries)).
		Msg("Truncating publication ledger, all resources become eligible for re-publication")

	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate ledger file: %w", err)
	}
	if _, err := l.file.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to rewind ledger file: %w", err)
	}

	l.entries = make(map[string]time.Time)
	return nil
}

func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
