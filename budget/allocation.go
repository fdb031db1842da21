// Copyright (c) 2024 The budgetd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package budget

import (
	"sort"

	"github.com/btcsuite/btcd/btcutil"
)

// GetBudget runs the payment allocation algorithm for the cycle that
// begins after height h: it ranks every passing proposal by
// net-yes vote and admits them greedily until the per-cycle cap is
// exhausted. A proposal that does not fit in what remains of the cap is
// left with a zero Allotted amount and the scan goes on, so a
// lower-ranked proposal that still fits is admitted after it.
func (m *Manager) GetBudget(h int32) []*Proposal {
	cycle := m.params.CycleLength
	blockStart := cycleStartFor(h, cycle) + cycle
	blockEnd := blockStart + cycle - 1
	budgetCap := m.params.TotalBudget(blockStart)
	enabled := m.mnDir.CountEnabled(m.params.ActiveProtocol())
	now := m.now()

	var candidates []*Proposal
	m.proposalsMu.Lock()
	for _, p := range m.proposals {
		p.CleanAndRemove(m.mnDir)
		candidates = append(candidates, p)
	}
	m.proposalsMu.Unlock()

	sort.Slice(candidates, func(i, j int) bool {
		return PtrHigherYes(candidates[i], candidates[j])
	})

	var admitted []*Proposal
	var allocated btcutil.Amount
	for _, p := range candidates {
		if !p.IsPassing(blockStart, blockEnd, enabled, now, m.params.ProposalEstablishmentTime) {
			p.Allotted = 0
			continue
		}
		if allocated+p.Amount > budgetCap {
			p.Allotted = 0
			continue
		}
		p.Allotted = p.Amount
		allocated += p.Amount
		admitted = append(admitted, p)
	}

	return admitted
}
