// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package budget implements the masternode governance subsystem: proposal
// and finalized-budget entities, their vote tallies, the collateral
// confirmation protocol, the allocation algorithm that picks which
// proposals a cycle pays, and the consensus predicates block validation
// consults to decide whether a superblock pays the right thing.
package budget
