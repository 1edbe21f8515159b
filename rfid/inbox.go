// Package rfid keeps the latest scan seen per reader so the kiosk UI can
// poll for "what was just tapped". One record per (reader, kind); older
// scans are simply overwritten.
package rfid

import (
	"sync"
	"time"
)

const (
	KindCard = "card"
	KindTool = "tool"
)

type Scan struct {
	ReaderID string    `json:"reader_id"`
	Kind     string    `json:"kind"`
	TagID    string    `json:"tag_id"`
	SeenAt   time.Time `json:"seen_at"`
}

type Inbox struct {
	mu sync.Mutex
	m  map[string]Scan // key: readerID + "/" + kind
}

func NewInbox() *Inbox {
	return &Inbox{m: make(map[string]Scan)}
}

func (i *Inbox) Set(scan Scan) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.m[scan.ReaderID+"/"+scan.Kind] = scan
}

func (i *Inbox) Peek(readerID, kind string) (Scan, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s, ok := i.m[readerID+"/"+kind]
	return s, ok
}

func (i *Inbox) Clear(readerID, kind string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.m, readerID+"/"+kind)
}
