package model

type MutationKind string

const (
	MutationStockToggle MutationKind = "stock-toggle"
	MutationDelete      MutationKind = "delete"
)

type DeltaSource string

const (
	SourceStream   DeltaSource = "stream"
	SourceResponse DeltaSource = "response" // product returned by a remote call
	SourceResync   DeltaSource = "resync"
)

// Delta is one incoming change to a product. A nil Version means the
// reconciler assigns the increment of whatever it currently holds.
type Delta struct {
	Product Product
	Version *uint64
	Source  DeltaSource
}

// PendingMutation is an in-flight local change awaiting remote confirmation.
type PendingMutation struct {
	ID            string
	ProductID     string
	Kind          MutationKind
	Prior         Product
	IssuedVersion uint64
	// Target is the optimistic value written for a toggle; zero for delete.
	Target Product
}
