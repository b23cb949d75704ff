package session

import (
	"context"

	"github.com/sourcequery/engine/query"
	"github.com/sourcequery/engine/transport"
)

// handleChallenge implements the transparent challenge retry (spec.md
// §4.2 "Challenge protocol"): a CHALLENGE frame arrives instead of the
// PLAYERS or RULES response the caller actually asked for. The Session
// Manager resends the same request with the token substituted, under the
// same pending entry, at most once.
//
// A single CHALLENGE frame carries no indication of which kind provoked
// it, and PLAYERS/RULES dispatches to the same destination are allowed to
// be in flight at once (they occupy distinct correlation keys, spec.md
// §4.4), so one incoming CHALLENGE is applied to every still-unchallenged
// PLAYERS/RULES entry for dest rather than just the first kind found —
// resolving only one would starve the other, which never receives its
// own token and just retries blind until it exhausts its retry budget.
func (m *Manager) handleChallenge(dest transport.Destination, token uint32) {
	var matched bool
	for _, kind := range []query.ResponseKind{query.KindPlayers, query.KindRules} {
		key := udpKey(dest, kind)
		m.mu.Lock()
		entry, ok := m.pending[key]
		m.mu.Unlock()
		if !ok {
			continue
		}
		matched = true
		m.retryWithChallenge(entry, token)
	}
	if !matched {
		m.log.WithField("dest", dest).Debug("session: challenge with no matching pending players/rules request")
	}
}

// retryWithChallenge mutates entry's own fields (challenge, challengeRetried,
// timer), so every touch happens under m.mu even though entry itself is
// already out of the pending table's care — pending.go's invariant is that
// an entry never owns its own lock, not that it's only ever touched from one
// goroutine, and a retry timer firing concurrently with a second inbound
// CHALLENGE both reach this same entry.
func (m *Manager) retryWithChallenge(entry *pendingEntry, token uint32) {
	m.mu.Lock()
	if entry.challengeRetried {
		sameToken := entry.challenge == token
		m.mu.Unlock()
		if sameToken {
			// handleChallenge applies one inbound CHALLENGE frame to every
			// still-unchallenged PLAYERS/RULES entry for dest, since a single
			// frame can't say which kind provoked it. When PLAYERS and RULES
			// are both in flight, the server may answer with its own
			// CHALLENGE frame per original query, carrying the same token
			// (it's scoped to the client, not the query kind): the first
			// frame already retried every entry, so this one is a duplicate
			// of that same round, not a genuine second challenge. Ignore it.
			return
		}
		// A second CHALLENGE with a different token is treated as a failure
		// rather than looping forever (spec.md: "at most one transparent
		// challenge retry").
		m.finishEntry(entry, nil, ErrUnexpectedFrame)
		return
	}
	entry.challengeRetried = true
	entry.challenge = token
	m.invalidateTimerLocked(entry)
	m.mu.Unlock()

	frame := entry.buildFrame(token)
	if err := m.udp.Send(context.Background(), entry.dest, frame, entry.priority); err != nil {
		m.finishEntry(entry, nil, err)
		return
	}

	m.mu.Lock()
	// The challenge substitution isn't a backoff retry (entry.retries is
	// untouched), so the caller's per-request Deadline still governs this
	// wait the same way it governed the timer scheduleTimeout armed first.
	m.armTimerLocked(entry, entry.req.timeout(m.cfg.ReadTimeout), func() { m.udpTimeout(entry) })
	m.mu.Unlock()
}
