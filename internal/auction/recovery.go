package auction

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// RecoveryReport summarises what startup reconciliation did
type RecoveryReport struct {
	Finalized     []TallyEntry // lots committed on behalf of the crashed process
	Requeued      int          // interrupted lots put back in the queue untouched
	MovedToStore  int          // queued-but-unauctioned lots returned to the store
	CooldownUntil time.Time
}

func (r RecoveryReport) Empty() bool {
	return len(r.Finalized) == 0 && r.Requeued == 0 && r.MovedToStore == 0
}

// Recover reconciles in-memory state against the last persisted
// snapshot. A lot that crashed with a committed winner is finalized
// exactly as a normal close would have: the winner pays, the tally is
// written, and a fresh cooldown begins. A lot without a committed
// winner never moved any points, so it goes back in the queue as is.
func (e *Engine) Recover() (RecoveryReport, error) {
	snapshot, err := e.store.LoadSnapshot()
	if err != nil {
		return RecoveryReport{}, fmt.Errorf("could not load snapshot: %w", err)
	}
	if snapshot == nil || !snapshot.Active {
		log.Info().Msg("No interrupted session found")
		return RecoveryReport{}, nil
	}

	log.Warn().Msg("Interrupted session found, recovering")
	points, err := e.store.GetMemberBalances()
	if err != nil {
		return RecoveryReport{}, fmt.Errorf("could not load member balances: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.ledger.Load(points)
	now := e.clock.Now()
	report := RecoveryReport{}

	if snapshot.Lot != nil {
		if len(snapshot.Lot.Bids) > 0 {
			report.Finalized = e.finalizeRecoveredLocked(snapshot, now)
			e.cooldownUntil = now.Add(e.cfg.Cooldown)
			report.CooldownUntil = e.cooldownUntil
		} else {
			// No committed winner means no ledger mutation happened;
			// the lot just waits for the next session
			e.queue.PushFront(snapshot.Lot.LotSpec.lot())
			report.Requeued = 1
		}
	}

	if len(snapshot.Queue) > 0 {
		if err := e.store.MoveQueueItems(snapshot.Queue); err != nil {
			// Keep them locally rather than lose them
			log.Error().Msg(fmt.Sprintf("Could not return %d queued lots to the store: %s", len(snapshot.Queue), err))
			for _, spec := range snapshot.Queue {
				e.queue.Add(spec.lot())
			}
		} else {
			report.MovedToStore = len(snapshot.Queue)
		}
	}

	// Persist the reconciled idle state right away so a crash loop
	// cannot finalize the same lot twice
	if err := e.store.SaveSnapshot(e.snapshotLocked()); err != nil {
		log.Error().Msg(fmt.Sprintf("Could not persist recovered state: %s", err))
	}

	log.Info().Msg(fmt.Sprintf("Recovery done: %d finalized, %d requeued, %d returned to store",
		len(report.Finalized), report.Requeued, report.MovedToStore))
	if !report.Empty() {
		e.notifier.SessionRecovered(report)
	}
	return report, nil
}

// finalizeRecoveredLocked replays the normal close on a snapshot lot:
// commit the winners' locks, release the losers', submit the tally
func (e *Engine) finalizeRecoveredLocked(snapshot *Snapshot, now time.Time) []TallyEntry {
	e.ledger.RestoreLocks(snapshot.Locks)

	lot := snapshot.Lot.LotSpec.lot()
	lot.Bids = snapshot.Lot.Bids
	lot.Locks = snapshot.Lot.Locks
	if lot.Locks == nil {
		lot.Locks = map[string]int{}
	}

	entries := []TallyEntry{}
	committed := map[string]struct{}{}
	for _, w := range lot.winners() {
		if err := e.ledger.Commit(w.member, w.amount); err != nil {
			log.Error().Msg(fmt.Sprintf("Recovery commit failed for %s on %s: %s", w.member, lot.Name, err))
			continue
		}
		committed[memberKey(w.member)] = struct{}{}
		entries = append(entries, TallyEntry{Lot: lot.Name, Winner: w.member, Amount: w.amount, Timestamp: now})
	}
	for k, amount := range lot.Locks {
		if _, ok := committed[k]; ok {
			continue
		}
		e.ledger.Release(k, amount)
	}

	tally := append(append([]TallyEntry(nil), snapshot.Tally...), entries...)
	stamp := snapshot.SessionStamp
	if stamp == "" {
		stamp = now.Format("01/02/06 15:04")
	}
	if err := e.store.SubmitTally(stamp, tally); err != nil {
		log.Error().Msg(fmt.Sprintf("Recovered tally submission failed: %s", err))
	}
	e.lastTally = tally
	e.lastStamp = stamp
	return entries
}
