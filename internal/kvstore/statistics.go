package kvstore

// StatisticID enumerates the process-wide monotonic counters of
// spec.md §6's `statistic->count` table.
type StatisticID uint64

const (
	StatisticLostCoins StatisticID = iota
	StatisticCursedInscriptions
	StatisticBlessedInscriptions
	StatisticIndexCommits
	StatisticCommitHeight

	// StatisticReservedDuneCount is reserved for forward compatibility
	// with the upstream rune/dune family; nothing writes or reads it on
	// the Dogecoin target chain, per spec.md §9's open question. Kept so
	// the statistics table has a stable layout if a future protocol
	// needs it.
	StatisticReservedDuneCount
)
