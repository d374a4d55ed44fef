package services

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nft-ticket/internal/c32"
	"nft-ticket/internal/clarity"
	"nft-ticket/internal/services/stacks"
	"nft-ticket/internal/status"
	"nft-ticket/internal/store"
	"nft-ticket/models"
)

const testKey = "edf9aee84d9b7abc145504dde6726c64f369d37ee34ded868fabd876c26570bc01"

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testAccount(t *testing.T) *stacks.Account {
	t.Helper()
	account, err := stacks.ParseAccount(testKey, stacks.Testnet)
	require.NoError(t, err)
	return account
}

// testAddress derives a valid testnet address from seed.
func testAddress(t *testing.T, seed string) string {
	t.Helper()
	sum := sha256.Sum256([]byte(seed))
	addr, err := c32.Address(stacks.Testnet.AddressVersion, sum[:20])
	require.NoError(t, err)
	return addr
}

func testContract(t *testing.T) stacks.Contract {
	return stacks.Contract{Address: testAccount(t).Address(), Name: "nft-ticket"}
}

type txReply struct {
	tx  *stacks.Tx
	err error
}

func pendingReply() txReply { return txReply{tx: &stacks.Tx{TxStatus: TxStatusPending}} }

func notFoundReply() txReply { return txReply{err: stacks.ErrTxNotFound} }

func networkReply() txReply {
	return txReply{err: &status.NetworkError{Op: "getTransaction", Err: errors.New("http status 503")}}
}

func resultReply(txStatus, repr string) txReply {
	return txReply{tx: &stacks.Tx{TxStatus: txStatus, TxResult: &stacks.TxResult{Repr: repr}}}
}

// mintCall is the contract_call section of a mint to owner on testContract.
func mintCall(t *testing.T, owner string) *stacks.TxContractCall {
	t.Helper()
	principal, err := clarity.StandardPrincipal(owner)
	require.NoError(t, err)
	arg, err := principal.Hex()
	require.NoError(t, err)
	return &stacks.TxContractCall{
		ContractID:   testContract(t).ID(),
		FunctionName: "mint",
		FunctionArgs: []stacks.FunctionArg{
			{Hex: arg, Repr: "'" + owner, Name: "recipient", Type: "principal"},
			{Repr: `"ipfs://bafymeta"`, Name: "uri", Type: "(string-ascii 256)"},
		},
	}
}

func mintReply(t *testing.T, owner, repr string) txReply {
	r := resultReply(TxStatusSuccess, repr)
	r.tx.ContractCall = mintCall(t, owner)
	return r
}

// fakeChain scripts GetTransaction replies; the last reply repeats.
type fakeChain struct {
	mu sync.Mutex

	replies  []txReply
	getCalls int

	nonce         uint64
	nonceCalls    int
	broadcastTxID string
	broadcastErr  error
	broadcasts    [][]byte

	latest      *stacks.Tx
	latestErr   error
	latestCalls int

	owners   map[uint64]string
	ownerErr error
	uris     map[uint64]string
	holdings []stacks.Holding
	balance  stacks.Balance
}

func (f *fakeChain) GetTransaction(_ context.Context, txid string) (*stacks.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return nil, stacks.ErrTxNotFound
	}
	r := f.replies[min(f.getCalls, len(f.replies)-1)]
	f.getCalls++
	if r.tx == nil {
		return nil, r.err
	}
	tx := *r.tx
	tx.TxID = txid
	return &tx, r.err
}

func (f *fakeChain) GetNonce(context.Context, string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceCalls++
	return f.nonce, nil
}

func (f *fakeChain) Broadcast(_ context.Context, raw []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, raw)
	if f.broadcastErr != nil {
		return "", f.broadcastErr
	}
	return f.broadcastTxID, nil
}

func (f *fakeChain) LatestTransaction(context.Context, string) (*stacks.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestCalls++
	return f.latest, f.latestErr
}

func (f *fakeChain) Owner(_ context.Context, _ stacks.Contract, id uint64) (string, bool, error) {
	if f.ownerErr != nil {
		return "", false, f.ownerErr
	}
	owner, ok := f.owners[id]
	return owner, ok, nil
}

func (f *fakeChain) TokenURI(_ context.Context, _ stacks.Contract, id uint64) (string, bool, error) {
	uri, ok := f.uris[id]
	return uri, ok, nil
}

func (f *fakeChain) NFTHoldings(context.Context, string) ([]stacks.Holding, error) {
	return f.holdings, nil
}

func (f *fakeChain) STXBalance(context.Context, string) (stacks.Balance, error) {
	return f.balance, nil
}

func (f *fakeChain) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func (f *fakeChain) chainWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonceCalls + len(f.broadcasts)
}

type memEvents struct {
	mu     sync.Mutex
	events map[string]models.Event
}

func newMemEvents(events ...models.Event) *memEvents {
	m := &memEvents{events: map[string]models.Event{}}
	for _, e := range events {
		m.events[e.ID] = e
	}
	return m
}

func (m *memEvents) Create(_ context.Context, e models.Event) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
	return e, nil
}

func (m *memEvents) Get(_ context.Context, id string) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return models.Event{}, fmt.Errorf("event %s: %w", id, status.ErrNotFound)
	}
	return e, nil
}

func (m *memEvents) List(context.Context, store.EventFilter) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Event, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e)
	}
	return out, nil
}

func (m *memEvents) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// memTickets mirrors the SETNX semantics of store.TicketStore.
type memTickets struct {
	mu      sync.Mutex
	tickets map[string]models.Ticket
}

func newMemTickets() *memTickets {
	return &memTickets{tickets: map[string]models.Ticket{}}
}

func (m *memTickets) Create(_ context.Context, t models.Ticket) (models.Ticket, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.tickets[t.TxID]; ok {
		return existing, false, nil
	}
	m.tickets[t.TxID] = t
	return t, true, nil
}

func (m *memTickets) GetByTx(_ context.Context, txid string) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[txid]
	if !ok {
		return models.Ticket{}, status.ErrNotFound
	}
	return t, nil
}

func (m *memTickets) GetByToken(_ context.Context, contractID string, tokenID uint64) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickets {
		if t.ContractID == contractID && t.TokenID == tokenID {
			return t, nil
		}
	}
	return models.Ticket{}, status.ErrNotFound
}

func (m *memTickets) ListByOwner(_ context.Context, owner string) ([]models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Ticket{}
	for _, t := range m.tickets {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTickets) ConfirmPresence(_ context.Context, txid string, at time.Time) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[txid]
	if !ok {
		return models.Ticket{}, status.ErrNotFound
	}
	if !t.PresenceConfirmed {
		t.PresenceConfirmed = true
		t.PresenceConfirmedAt = &at
		m.tickets[txid] = t
	}
	return t, nil
}

func (m *memTickets) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickets)
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]models.MintJob
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[string]models.MintJob{}}
}

func (m *memJobs) Save(_ context.Context, j models.MintJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.TxID] = j
	return nil
}

func (m *memJobs) Get(_ context.Context, txid string) (models.MintJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[txid]
	if !ok {
		return models.MintJob{}, status.ErrNotFound
	}
	return j, nil
}

func (m *memJobs) Pending(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, j := range m.jobs {
		if !j.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []map[string]any
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, msg map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	for i, m := range n.messages {
		out[i], _ = m["type"].(string)
	}
	return out
}

// harness wires the core services over fakes.
type harness struct {
	chain      *fakeChain
	events     *memEvents
	tickets    *memTickets
	jobs       *memJobs
	notifier   *recordingNotifier
	submitter  *Submitter
	poller     *Poller
	reconciler *Reconciler
}

func newHarness(t *testing.T, chain *fakeChain, events ...models.Event) *harness {
	t.Helper()
	h := &harness{
		chain:    chain,
		events:   newMemEvents(events...),
		tickets:  newMemTickets(),
		jobs:     newMemJobs(),
		notifier: &recordingNotifier{},
	}
	h.submitter = NewSubmitter(chain, SubmitterConfig{
		Network:  stacks.Testnet,
		Contract: testContract(t),
		Account:  testAccount(t),
		Fee:      2000,
	})
	h.submitter.now = func() time.Time { return fixedNow }
	h.poller = NewPoller(chain, time.Millisecond)
	h.reconciler = NewReconciler(h.events, h.tickets, h.jobs, h.notifier, h.poller, testContract(t))
	h.reconciler.now = func() time.Time { return fixedNow }
	return h
}

func sampleEvent() models.Event {
	return models.Event{
		ID:          "evt-42",
		Title:       "Stacks Summit",
		MetadataURI: "ipfs://bafymeta",
		ImageURI:    "ipfs://bafyimage",
		Status:      models.EventStatusUpcoming,
	}
}
