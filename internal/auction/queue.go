package auction

import "strings"

// Queue is the ordered list of lots awaiting a session. It carries no
// lock of its own; the engine serializes every access.
type Queue struct {
	lots []*Lot
}

func (q *Queue) Add(lot *Lot) {
	q.lots = append(q.lots, lot)
}

// PushFront puts a lot at the head of the queue. Used by crash
// recovery to reinstate a lot that never saw a committed bid.
func (q *Queue) PushFront(lot *Lot) {
	q.lots = append([]*Lot{lot}, q.lots...)
}

func (q *Queue) PopFront() *Lot {
	if len(q.lots) == 0 {
		return nil
	}
	lot := q.lots[0]
	q.lots = q.lots[1:]
	return lot
}

// Remove drops the first lot matching the name, case-insensitively
func (q *Queue) Remove(name string) (*Lot, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for i, lot := range q.lots {
		if strings.ToLower(lot.Name) == needle {
			q.lots = append(q.lots[:i], q.lots[i+1:]...)
			return lot, true
		}
	}
	return nil, false
}

func (q *Queue) Clear() int {
	count := len(q.lots)
	q.lots = nil
	return count
}

func (q *Queue) Len() int {
	return len(q.lots)
}

func (q *Queue) Specs() []LotSpec {
	specs := make([]LotSpec, 0, len(q.lots))
	for _, lot := range q.lots {
		specs = append(specs, lot.Spec())
	}
	return specs
}
