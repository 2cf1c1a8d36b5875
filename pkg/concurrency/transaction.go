// Package concurrency provides the opaque per-client handle the REPL
// layer threads through table operations.
package concurrency

import (
	"sync"

	"github.com/google/uuid"
)

// Transaction identifies a single client. Each client has at most one
// transaction running at a given time, so clientId is a unique
// identifier for both the Transaction and its client.
type Transaction struct {
	clientId uuid.UUID
	mtx      sync.RWMutex
}

// NewTransaction creates a transaction for a freshly connected client.
func NewTransaction(clientId uuid.UUID) *Transaction {
	return &Transaction{clientId: clientId}
}

func (t *Transaction) WLock() {
	t.mtx.Lock()
}

func (t *Transaction) WUnlock() {
	t.mtx.Unlock()
}

func (t *Transaction) RLock() {
	t.mtx.RLock()
}

func (t *Transaction) RUnlock() {
	t.mtx.RUnlock()
}

// GetClientID returns the client id this transaction belongs to.
func (t *Transaction) GetClientID() uuid.UUID {
	return t.clientId
}
