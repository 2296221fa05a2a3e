package analytics

import "time"

// farFuture is the initial FirstContact of a relationship, narrowed by
// the first observed message.
var farFuture = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// ContactRelationship is the communication history with one contact.
// FromMe* count messages the user sent to the contact, ToMe* messages
// received from it by the user's exposure level.
type ContactRelationship struct {
	Contact      string
	FromMe       int
	FromMeCc     int
	FromMeBcc    int
	ToMe         int
	ToMeCc       int
	ToMeBcc      int
	ToMeGroups   int
	FirstContact time.Time
	LastContact  time.Time
}

func newContactRelationship(contact string) *ContactRelationship {
	return &ContactRelationship{
		Contact:      contact,
		FirstContact: farFuture,
		LastContact:  time.Time{},
	}
}

func (r *ContactRelationship) observe(date time.Time) {
	if date.Before(r.FirstContact) {
		r.FirstContact = date
	}
	if date.After(r.LastContact) {
		r.LastContact = date
	}
}

// Sent is the number of messages the user sent to the contact.
func (r ContactRelationship) Sent() int {
	return r.FromMe + r.FromMeCc + r.FromMeBcc
}

// Received is the number of messages the user received from the contact.
func (r ContactRelationship) Received() int {
	return r.ToMe + r.ToMeCc + r.ToMeBcc + r.ToMeGroups
}

// Secondary counts every exposure other than a direct To in either direction.
func (r ContactRelationship) Secondary() int {
	return r.ToMeCc + r.ToMeBcc + r.ToMeGroups + r.FromMeCc + r.FromMeBcc
}

// TotalInteractions is direct received plus direct sent plus secondary.
func (r ContactRelationship) TotalInteractions() int {
	return r.ToMe + r.FromMe + r.Secondary()
}

// Relationships holds one ContactRelationship per contact in discovery order.
type Relationships struct {
	order    []string
	contacts map[string]*ContactRelationship
	// Skipped counts records left out as malformed.
	Skipped int
}

func newRelationships() *Relationships {
	return &Relationships{contacts: map[string]*ContactRelationship{}}
}

// getOrInsert returns the relationship for contact, creating it on first use.
func (rs *Relationships) getOrInsert(contact string) *ContactRelationship {
	if rel, ok := rs.contacts[contact]; ok {
		return rel
	}
	rel := newContactRelationship(contact)
	rs.contacts[contact] = rel
	rs.order = append(rs.order, contact)
	return rel
}

// Len is the number of contacts.
func (rs *Relationships) Len() int {
	return len(rs.order)
}

// Get returns a copy of the relationship for contact.
func (rs *Relationships) Get(contact string) (ContactRelationship, bool) {
	rel, ok := rs.contacts[normalizeAddress(contact)]
	if !ok {
		return ContactRelationship{}, false
	}
	return *rel, true
}

// All returns copies of every relationship in discovery order.
func (rs *Relationships) All() []ContactRelationship {
	out := make([]ContactRelationship, 0, len(rs.order))
	for _, contact := range rs.order {
		out = append(out, *rs.contacts[contact])
	}
	return out
}

// Aggregate builds relationships from the user's sent and received mail.
// selfAddress classifies received messages; when it is empty every
// received message counts as group delivery.
func Aggregate(sent, received []MessageRecord, selfAddress string) *Relationships {
	rs := newRelationships()

	for _, message := range sent {
		if message.Validate() != nil {
			rs.Skipped++
			continue
		}
		rs.touchAll(message.Recipients, message.Date, func(r *ContactRelationship) { r.FromMe++ })
		rs.touchAll(message.Cc, message.Date, func(r *ContactRelationship) { r.FromMeCc++ })
		rs.touchAll(message.Bcc, message.Date, func(r *ContactRelationship) { r.FromMeBcc++ })
	}

	self := normalizeAddress(selfAddress)
	for _, message := range received {
		if message.validateReceived() != nil {
			rs.Skipped++
			continue
		}
		rel := rs.getOrInsert(normalizeAddress(message.Sender))
		switch {
		case containsAddress(message.Recipients, self):
			rel.ToMe++
		case containsAddress(message.Cc, self):
			rel.ToMeCc++
		case containsAddress(message.Bcc, self):
			rel.ToMeBcc++
		default:
			rel.ToMeGroups++
		}
		rel.observe(message.Date)
	}

	return rs
}

func (rs *Relationships) touchAll(addrs []string, date time.Time, bump func(*ContactRelationship)) {
	for _, addr := range addrs {
		contact := normalizeAddress(addr)
		if contact == "" {
			continue
		}
		rel := rs.getOrInsert(contact)
		bump(rel)
		rel.observe(date)
	}
}
