package diary

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const imageSavedPrefix = "  - Image saved: "

// RestoreLocal reloads the entries for day from the local diary file so a
// restarted process keeps the day's record. Entries at or before the last
// sent digest are skipped. It returns the number of entries restored.
func (r *Recorder) RestoreLocal(day time.Time) (int, error) {
	if r.cfg.LocalDir == "" {
		return 0, nil
	}
	path := filepath.Join(r.cfg.LocalDir, LocalLogName(day))
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open local diary: %w", err)
	}
	defer f.Close()

	var restored []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if imgPath, ok := strings.CutPrefix(line, imageSavedPrefix); ok {
			if n := len(restored); n > 0 {
				if data, err := os.ReadFile(imgPath); err == nil {
					restored[n-1].Image = data
				}
			}
			continue
		}
		stamp, _, ok := strings.Cut(line, " - ")
		if !ok {
			continue
		}
		ts, err := time.ParseInLocation(timestampLayout, stamp, day.Location())
		if err != nil {
			continue
		}
		restored = append(restored, Entry{
			ID:          uuid.NewString(),
			Timestamp:   ts,
			Text:        line,
			IsHighlight: strings.Contains(line, " - [HIGHLIGHT] Event: "),
		})
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read local diary: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	kept := restored[:0]
	for _, e := range restored {
		if !r.lastSent.IsZero() && !e.Timestamp.After(r.lastSent.Truncate(time.Second)) {
			continue
		}
		kept = append(kept, e)
	}
	r.entries = append(kept, r.entries...)
	if len(kept) > 0 {
		log.Info().Int("entries", len(kept)).Str("file", path).Msg("Restored diary entries")
	}
	return len(kept), nil
}
