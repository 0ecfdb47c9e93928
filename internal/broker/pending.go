package broker

import "sync"

// pendingTable tracks the one request each channel may have open
type pendingTable struct {
	mu   sync.Mutex
	open map[string]string
}

func newPendingTable() *pendingTable {
	return &pendingTable{open: make(map[string]string)}
}

// acquire marks channelID busy with kind. It returns false if the channel
// already has an open request.
func (p *pendingTable) acquire(channelID, kind string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, busy := p.open[channelID]; busy {
		return false
	}
	p.open[channelID] = kind
	return true
}

func (p *pendingTable) release(channelID string) {
	p.mu.Lock()
	delete(p.open, channelID)
	p.mu.Unlock()
}

func (p *pendingTable) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.open)
}
