package rewards

import "sync"

// participantLocks сериализует переходы, связанные с выплатами, по каждому
// участнику отдельно.
// participantLocks serializes reward-triggering transitions per participant
// while letting different participants proceed in parallel. Locks are
// created on first use and kept for the process lifetime; the participant
// set of a single campaign is small enough that eviction is not worth the
// complexity.
type participantLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newParticipantLocks() *participantLocks {
	return &participantLocks{locks: make(map[int64]*sync.Mutex)}
}

// get возвращает мьютекс участника, создавая его при первом обращении.
func (pl *participantLocks) get(tgUserID int64) *sync.Mutex {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	l, ok := pl.locks[tgUserID]
	if !ok {
		l = &sync.Mutex{}
		pl.locks[tgUserID] = l
	}
	return l
}
