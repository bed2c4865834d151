package clip

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"golang.design/x/clipboard"
)

const pollInterval = 250 * time.Millisecond

type systemBackend struct {
	watchCh chan struct{}
	done    chan struct{}

	mu       sync.Mutex
	lastText []byte
	lastImg  []byte
}

// NewSystem returns the desktop clipboard backend. clipboard.Init is called
// here rather than in init() so that CLI sub-commands that never touch the
// desktop don't fail on headless systems.
func NewSystem() (Backend, error) {
	if err := clipboard.Init(); err != nil {
		return nil, err
	}
	b := &systemBackend{
		watchCh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		lastText: clipboard.Read(clipboard.FmtText),
		lastImg:  clipboard.Read(clipboard.FmtImage),
	}
	go b.poll()
	return b, nil
}

func (b *systemBackend) Name() string { return "system clipboard (poll)" }

func (b *systemBackend) poll() {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			text := clipboard.Read(clipboard.FmtText)
			img := clipboard.Read(clipboard.FmtImage)
			b.mu.Lock()
			changed := !bytes.Equal(text, b.lastText) || !bytes.Equal(img, b.lastImg)
			b.lastText, b.lastImg = text, img
			b.mu.Unlock()
			if changed {
				select {
				case b.watchCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (b *systemBackend) Read() ([]Item, error) {
	var items []Item
	if text := clipboard.Read(clipboard.FmtText); text != nil {
		items = append(items, Item{Mime: MimeText, Data: text})
	}
	if img := clipboard.Read(clipboard.FmtImage); img != nil {
		items = append(items, Item{Mime: MimePNG, Data: img})
	}
	return items, nil
}

func (b *systemBackend) Write(items []Item) error {
	for _, it := range items {
		if it.Mime != MimeText && it.Mime != MimePNG {
			return fmt.Errorf("unsupported MIME type: %s", it.Mime)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, it := range items {
		switch it.Mime {
		case MimeText:
			clipboard.Write(clipboard.FmtText, it.Data)
			b.lastText = it.Data
		case MimePNG:
			clipboard.Write(clipboard.FmtImage, it.Data)
			b.lastImg = it.Data
		}
	}
	return nil
}

func (b *systemBackend) Watch() <-chan struct{} { return b.watchCh }
func (b *systemBackend) Close()                 { close(b.done) }
