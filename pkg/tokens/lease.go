package tokens

// Lease is one reserved API call on a credential.
type Lease struct {
	pool     *Pool
	cred     *credential
	released bool
}

// Token returns the credential's token. It is empty in unauthenticated mode.
func (l *Lease) Token() string { return l.cred.token }

// Report updates the credential from the rate-limit metadata of an API response.
//
// Within one quota window the remaining count only decreases, so a late
// response never hands back quota that concurrent calls already spent.
// Quota reserved by other in-flight leases is subtracted from the reported value.
func (l *Lease) Report(u Usage) {
	p := l.pool
	p.mu.Lock()
	defer p.mu.Unlock()

	c := l.cred
	if u.Limit > 0 {
		c.limit = u.Limit
	}
	others := c.inFlight
	if !l.released {
		others--
	}
	remaining := max(u.Remaining-others, 0)

	switch {
	case u.Reset.IsZero() || !u.Reset.After(p.now()):
		c.remaining = min(c.remaining, remaining)
	case !c.reported || u.Reset.After(c.reset):
		c.remaining = remaining
		c.reset = u.Reset
		c.reported = true
	default:
		c.remaining = min(c.remaining, remaining)
	}
	p.broadcast()
}

// Release ends the reservation. It is safe to call more than once.
func (l *Lease) Release() {
	p := l.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	l.cred.inFlight--
	p.broadcast()
}
