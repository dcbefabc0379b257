package campaign

// Assign distributes contacts round-robin over the live lane slots.
//
// The result has one queue per slot in live; dead slots get empty queues.
// Every contact is registered as RETRY in the ledger before any queue is
// filled, so a contact no lane reaches still ends the phase as RETRY.
// With no live slot all queues are empty and the caller is expected to
// persist the pre-registered statuses without dispatching.
func Assign(contacts []Contact, live []bool, ledger *Ledger) [][]Contact {
	for _, ct := range contacts {
		ledger.Set(ct.Phone, StatusRetry)
	}

	queues := make([][]Contact, len(live))
	var slots []int
	for i, ok := range live {
		if ok {
			slots = append(slots, i)
		}
	}
	if len(slots) == 0 {
		return queues
	}
	for i, ct := range contacts {
		slot := slots[i%len(slots)]
		queues[slot] = append(queues[slot], ct)
	}
	return queues
}
