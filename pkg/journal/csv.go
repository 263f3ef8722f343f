// pkg/journal/csv.go
package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"
)

var csvHeader = []string{"id", "time", "kind", "source", "actor", "subject", "ref", "amount", "detail"}

type CSV struct {
	mu sync.Mutex
	w  *csv.Writer
	f  *os.File
}

func NewCSV(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}

	return &CSV{w: w, f: f}, nil
}

func (j *CSV) Record(ev Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.w.Write([]string{
		ev.ID,
		ev.Time.Format(time.RFC3339Nano),
		string(ev.Kind),
		string(ev.Source),
		string(ev.Actor),
		string(ev.Subject),
		ev.Ref,
		strconv.FormatUint(uint64(ev.Amount), 10),
		ev.Detail,
	})
	if err != nil {
		return err
	}

	j.w.Flush()
	return j.w.Error()
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.w.Flush()
	if err := j.w.Error(); err != nil {
		return err
	}
	return j.f.Close()
}
