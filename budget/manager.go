// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"math/rand"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// BudgetMode selects what a masternode does with its locally-preferred
// slate: author and relay it ("suggest"), auto-vote on a matching one
// already in flight ("auto"), or neither (anything else).
type BudgetMode string

const (
	ModeSuggest  BudgetMode = "suggest"
	ModeAuto     BudgetMode = "auto"
	ModeDisabled BudgetMode = ""
)

// Manager owns the four independently-locked maps holding proposals,
// finalized budgets, and their votes, and is the single entry point
// network, block-processing, and maintenance code calls into. A
// process embeds exactly one Manager; there is no package-level
// singleton state.
type Manager struct {
	params  *Params
	chain   ChainIndex
	wallet  Wallet
	mnDir   MasternodeDirectory
	net     Network
	crypto  Crypto
	metrics *metrics

	mode BudgetMode

	proposalsMu sync.RWMutex
	proposals   map[chainhash.Hash]*Proposal

	budgetsMu sync.RWMutex
	budgets   map[chainhash.Hash]*FinalizedBudget

	votesMu             sync.Mutex
	seenProposalVotes   map[chainhash.Hash]*BudgetVote
	orphanProposalVotes map[chainhash.Hash][]*BudgetVote

	finalizedVotesMu      sync.Mutex
	seenFinalizedVotes    map[chainhash.Hash]*FinalizedBudgetVote
	orphanFinalizedVotes  map[chainhash.Hash][]*FinalizedBudgetVote

	askedMu sync.Mutex
	asked   map[chainhash.Hash]time.Time

	syncOnceMu sync.Mutex
	syncOnce   map[int32]bool

	bestHeightMu sync.Mutex
	bestHeight   int32

	submitMu            sync.Mutex
	lastSubmittedHeight int32
	collateralTxids     map[chainhash.Hash]chainhash.Hash

	votingOutpoint wire.OutPoint
	votingKey      *btcec.PrivateKey

	rng *rand.Rand
	now func() time.Time
}

// UseVotingKey arms the manager to cast its own masternode's votes:
// a finalized budget that CheckAndVote finds matching this node's
// locally-computed slate gets a vote signed with key, relayed
// automatically. A
// manager that never calls this still tallies and relays everyone
// else's votes; it just never casts one of its own.
func (m *Manager) UseVotingKey(outpoint wire.OutPoint, key *btcec.PrivateKey) {
	m.votingOutpoint = outpoint
	m.votingKey = key
}

// isMasternode reports whether this manager has been armed with a
// voting key, i.e. whether the host process is itself operating as an
// enabled masternode rather than a plain node.
func (m *Manager) isMasternode() bool {
	return m.votingKey != nil
}

// New constructs a Manager bound to its collaborators.
func New(params *Params, chain ChainIndex, wallet Wallet, mnDir MasternodeDirectory, net Network, crypto Crypto, mode BudgetMode) *Manager {
	return &Manager{
		params:               params,
		chain:                chain,
		wallet:               wallet,
		mnDir:                mnDir,
		net:                  net,
		crypto:               crypto,
		mode:                 mode,
		proposals:            make(map[chainhash.Hash]*Proposal),
		budgets:              make(map[chainhash.Hash]*FinalizedBudget),
		seenProposalVotes:    make(map[chainhash.Hash]*BudgetVote),
		orphanProposalVotes:  make(map[chainhash.Hash][]*BudgetVote),
		seenFinalizedVotes:   make(map[chainhash.Hash]*FinalizedBudgetVote),
		orphanFinalizedVotes: make(map[chainhash.Hash][]*FinalizedBudgetVote),
		asked:                make(map[chainhash.Hash]time.Time),
		syncOnce:             make(map[int32]bool),
		collateralTxids:      make(map[chainhash.Hash]chainhash.Hash),
		rng:                  rand.New(rand.NewSource(time.Now().UnixNano())),
		now:                  time.Now,
	}
}

// UseMetrics registers the manager's prometheus instrumentation.
func (m *Manager) UseMetrics(registerer prometheus.Registerer) {
	m.metrics = newMetrics(registerer)
	m.refreshGaugeMetrics()
}

// BestHeight returns the height last reported to NewBlock.
func (m *Manager) BestHeight() int32 {
	m.bestHeightMu.Lock()
	defer m.bestHeightMu.Unlock()
	return m.bestHeight
}

func (m *Manager) setBestHeight(h int32) {
	m.bestHeightMu.Lock()
	m.bestHeight = h
	m.bestHeightMu.Unlock()
}

// AddProposal validates p's collateral and, on success, inserts it into
// the live proposal map and resolves any orphaned votes waiting on its
// hash. Collateral verification happens without holding the proposal
// map's lock: AddProposal only takes the lock to check for a
// duplicate and, separately, to insert.
func (m *Manager) AddProposal(p *Proposal, height int32) (bool, error) {
	hash := p.Hash()

	m.proposalsMu.RLock()
	_, exists := m.proposals[hash]
	m.proposalsMu.RUnlock()
	if exists {
		return false, newError(ErrDuplicate, "proposal already known", nil)
	}

	if err := p.IsWellFormed(m.params.TotalBudget(cycleStartFor(height, m.params.CycleLength))); err != nil {
		return false, err
	}

	if _, err := CheckCollateral(m.chain, m.params, p.FeeTxHash, hash, height, false); err != nil {
		return false, err
	}

	m.proposalsMu.Lock()
	if _, exists = m.proposals[hash]; exists {
		m.proposalsMu.Unlock()
		return false, newError(ErrDuplicate, "proposal already known", nil)
	}
	m.proposals[hash] = p
	m.proposalsMu.Unlock()

	m.checkOrphanProposalVotes(hash)
	m.refreshGaugeMetrics()
	return true, nil
}

// AddFinalizedBudget is AddProposal's counterpart for finalized
// budgets.
func (m *Manager) AddFinalizedBudget(b *FinalizedBudget, height int32) (bool, error) {
	hash := b.Hash()

	m.budgetsMu.RLock()
	_, exists := m.budgets[hash]
	m.budgetsMu.RUnlock()
	if exists {
		return false, newError(ErrDuplicate, "finalized budget already known", nil)
	}

	if err := b.IsWellFormed(m.params.CycleLength, m.params.TotalBudget(b.BlockStart)); err != nil {
		return false, err
	}

	if _, err := CheckCollateral(m.chain, m.params, b.FeeTxHash, hash, height, true); err != nil {
		return false, err
	}

	m.budgetsMu.Lock()
	if _, exists = m.budgets[hash]; exists {
		m.budgetsMu.Unlock()
		return false, newError(ErrDuplicate, "finalized budget already known", nil)
	}
	m.budgets[hash] = b
	m.budgetsMu.Unlock()

	m.checkOrphanFinalizedVotes(hash)
	m.refreshGaugeMetrics()
	return true, nil
}

// Proposal returns a copy of the proposal with the given hash, safe for
// the caller to read without the manager's lock: its Votes map is a
// fresh copy of independently-copied votes, so nothing the caller does
// with the result is visible to the stored original. Code inside this
// package that needs to mutate the stored proposal itself (applying a
// vote, flipping Synced) must go through withProposal instead, which
// holds proposalsMu for the duration.
func (m *Manager) Proposal(hash chainhash.Hash) (*Proposal, bool) {
	m.proposalsMu.RLock()
	defer m.proposalsMu.RUnlock()
	p, ok := m.proposals[hash]
	if !ok {
		return nil, false
	}
	return copyProposal(p), true
}

// FinalizedBudget returns a copy of the finalized budget with the given
// hash, with the same copy-on-read guarantee as Proposal.
func (m *Manager) FinalizedBudget(hash chainhash.Hash) (*FinalizedBudget, bool) {
	m.budgetsMu.RLock()
	defer m.budgetsMu.RUnlock()
	b, ok := m.budgets[hash]
	if !ok {
		return nil, false
	}
	return copyFinalizedBudget(b), true
}

// withProposal calls fn with the live, stored proposal for hash while
// holding proposalsMu, reporting whether hash was found. Every write to
// a stored proposal's fields or Votes map must happen inside fn.
func (m *Manager) withProposal(hash chainhash.Hash, fn func(p *Proposal)) bool {
	m.proposalsMu.Lock()
	defer m.proposalsMu.Unlock()
	p, ok := m.proposals[hash]
	if !ok {
		return false
	}
	fn(p)
	return true
}

// withFinalizedBudget is withProposal's counterpart for finalized
// budgets, holding budgetsMu for fn's duration.
func (m *Manager) withFinalizedBudget(hash chainhash.Hash, fn func(b *FinalizedBudget)) bool {
	m.budgetsMu.Lock()
	defer m.budgetsMu.Unlock()
	b, ok := m.budgets[hash]
	if !ok {
		return false
	}
	fn(b)
	return true
}

// forEachProposal calls fn for every proposal under proposalsMu's read
// lock. fn must not mutate p and must not call back into the manager.
func (m *Manager) forEachProposal(fn func(hash chainhash.Hash, p *Proposal)) {
	m.proposalsMu.RLock()
	defer m.proposalsMu.RUnlock()
	for h, p := range m.proposals {
		fn(h, p)
	}
}

func (m *Manager) forEachFinalizedBudget(fn func(hash chainhash.Hash, b *FinalizedBudget)) {
	m.budgetsMu.RLock()
	defer m.budgetsMu.RUnlock()
	for h, b := range m.budgets {
		fn(h, b)
	}
}

// forEachProposalMut is forEachProposal's write-locked counterpart, for
// callers whose fn mutates a proposal or one of its votes (e.g.
// flipping Synced while pushing a full sync).
func (m *Manager) forEachProposalMut(fn func(hash chainhash.Hash, p *Proposal)) {
	m.proposalsMu.Lock()
	defer m.proposalsMu.Unlock()
	for h, p := range m.proposals {
		fn(h, p)
	}
}

func (m *Manager) forEachFinalizedBudgetMut(fn func(hash chainhash.Hash, b *FinalizedBudget)) {
	m.budgetsMu.Lock()
	defer m.budgetsMu.Unlock()
	for h, b := range m.budgets {
		fn(h, b)
	}
}

// CheckAndRemove rebuilds the proposal and finalized-budget maps from
// the survivors of a validity pass, avoiding the iterator churn an
// in-place delete-during-range would cause.
func (m *Manager) CheckAndRemove(height int32, lastSuperblockHeight int32) {
	enabled := m.mnDir.CountEnabled(m.params.ActiveProtocol())

	m.proposalsMu.Lock()
	survivors := make(map[chainhash.Hash]*Proposal, len(m.proposals))
	for h, p := range m.proposals {
		p.CleanAndRemove(m.mnDir)
		p.UpdateValid(height, enabled)
		if p.Valid() {
			survivors[h] = p
		}
	}
	m.proposals = survivors
	m.proposalsMu.Unlock()

	m.budgetsMu.Lock()
	bsurvivors := make(map[chainhash.Hash]*FinalizedBudget, len(m.budgets))
	for h, b := range m.budgets {
		b.CleanAndRemove(m.mnDir)
		if b.BlockEnd() < lastSuperblockHeight {
			continue
		}
		bsurvivors[h] = b
	}
	m.budgets = bsurvivors
	m.budgetsMu.Unlock()

	m.refreshGaugeMetrics()
}

// tryCleanProposals performs the try-lock half of NewBlock's
// contention-tolerant cleanup pass: CleanAndRemove without the
// expiry/downvote eviction, skipped entirely if the lock is busy.
func (m *Manager) tryCleanProposals() {
	if !m.proposalsMu.TryLock() {
		return
	}
	defer m.proposalsMu.Unlock()
	for _, p := range m.proposals {
		p.CleanAndRemove(m.mnDir)
	}
}

func (m *Manager) tryCleanBudgets() {
	if !m.budgetsMu.TryLock() {
		return
	}
	defer m.budgetsMu.Unlock()
	for _, b := range m.budgets {
		b.CleanAndRemove(m.mnDir)
	}
}

// cycleStartFor snaps height down to the start of its cycle.
func cycleStartFor(height, cycleLength int32) int32 {
	return height - mod(height, cycleLength)
}

// NewBlock drives the periodic maintenance cycle: pruning expired
// proposals and budgets, refreshing vote validity, and (once every
// maintenance interval) giving the caller's collaborators a chance to
// auto-vote and relay. pastBudgetStage and fullySynced reflect the host's own
// masternode-sync progress (an external collaborator this package does
// not model); peers is the current connection set, used only for the
// incremental Sync fan-out.
func (m *Manager) NewBlock(height int32, lastSuperblockHeight int32, pastBudgetStage, fullySynced bool, peers []Peer) error {
	m.setBestHeight(height)

	if !pastBudgetStage {
		return nil
	}
	if m.mode == ModeSuggest {
		return m.SubmitFinalBudget(height)
	}
	if mod(height, MaintenanceTickBlocks) != 0 {
		return nil
	}

	if fullySynced {
		if m.rng.Intn(1440) == 0 {
			m.resetSyncState()
		}
		if err := m.broadcastIncrementalSync(peers); err != nil {
			return err
		}
	}

	m.CheckAndRemove(height, lastSuperblockHeight)
	m.pruneAsked()
	m.tryCleanProposals()
	m.tryCleanBudgets()

	if m.mode == ModeAuto && m.isMasternode() {
		blockStart := cycleStartFor(height, m.params.CycleLength) + m.params.CycleLength
		m.voteOnMatchingBudgets(blockStart, m.GetBudget(height))
	}
	return nil
}

func (m *Manager) resetSyncState() {
	m.syncOnceMu.Lock()
	m.syncOnce = make(map[int32]bool)
	m.syncOnceMu.Unlock()
}

// fulfillSyncRequestOnce reports whether peerID's full BUDGETVOTESYNC
// request is the first one seen since the last resetSyncState, marking
// it fulfilled as a side effect. Subsequent calls for the same peer
// return false until the periodic reset clears the map.
func (m *Manager) fulfillSyncRequestOnce(peerID int32) bool {
	m.syncOnceMu.Lock()
	defer m.syncOnceMu.Unlock()
	if m.syncOnce[peerID] {
		return false
	}
	m.syncOnce[peerID] = true
	return true
}

func (m *Manager) broadcastIncrementalSync(peers []Peer) error {
	var g errgroup.Group
	for _, p := range peers {
		peer := p
		if peer.ProtocolVersion() < m.params.ActiveProtocol() {
			continue
		}
		g.Go(func() error {
			return m.Sync(peer, nil, true)
		})
	}
	return g.Wait()
}

// askedRecently reports whether hash has already been requested from a
// peer within AskedForSourceExpiry.
func (m *Manager) askedRecently(hash chainhash.Hash) bool {
	m.askedMu.Lock()
	defer m.askedMu.Unlock()
	t, ok := m.asked[hash]
	if !ok {
		return false
	}
	return m.now().Sub(t) < AskedForSourceExpiry
}

func (m *Manager) markAsked(hash chainhash.Hash) {
	m.askedMu.Lock()
	m.asked[hash] = m.now()
	m.askedMu.Unlock()
}

func (m *Manager) pruneAsked() {
	m.askedMu.Lock()
	defer m.askedMu.Unlock()
	now := m.now()
	for h, t := range m.asked {
		if now.Sub(t) >= AskedForSourceExpiry {
			delete(m.asked, h)
		}
	}
}
