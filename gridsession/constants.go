// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package gridsession

// Statement kinds issued by the reconciler
const (
	OpUpdate = "update"
	OpDelete = "delete"
	OpInsert = "insert"
)

// Apply outcomes
const (
	OutcomeApplied        = "applied"
	OutcomeNothingToApply = "nothing_to_apply"
	OutcomeFailed         = "failed"
)

// State of an edit session
type State string

const (
	StateClean State = "clean"
	StateDirty State = "dirty"
)

// DefaultImageOptions is the recipe image catalog offered by the grid's image column
var DefaultImageOptions = []string{
	"BakedPotato",
	"FondantPotatoes",
	"GarlicHerbRoastedPotatoes",
	"GreekLemonPotatoes",
	"LoadedBakedPotatoSoup",
	"TwiceBakedPotatoes",
}
