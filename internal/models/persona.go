package models

import "fmt"

// Record models that can receive bus notifications.
const (
	PartnerModel = "res.partner"
	GuestModel   = "mail.guest"
)

// Persona identifies the caller of a request: a registered user (with its
// partner), a guest, or nobody.
type Persona struct {
	UserID    int64 `json:"user_id,omitempty"`
	PartnerID int64 `json:"partner_id,omitempty"`
	GuestID   int64 `json:"guest_id,omitempty"`
}

// IsAnonymous reports whether the caller is neither a user nor a guest.
func (p Persona) IsAnonymous() bool {
	return p.PartnerID == 0 && p.GuestID == 0
}

// IsUser reports whether the caller authenticated as a registered user.
func (p Persona) IsUser() bool {
	return p.UserID != 0 && p.PartnerID != 0
}

// IsGuest reports whether the caller is a guest.
func (p Persona) IsGuest() bool {
	return p.PartnerID == 0 && p.GuestID != 0
}

// Target returns the bus target of the persona. Anonymous callers have none.
func (p Persona) Target() (Target, bool) {
	switch {
	case p.PartnerID != 0:
		return PartnerTarget(p.PartnerID), true
	case p.GuestID != 0:
		return GuestTarget(p.GuestID), true
	}
	return Target{}, false
}

// Target is a record a bus notification is addressed to.
type Target struct {
	Model string
	ID    int64
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Model, t.ID)
}

func PartnerTarget(id int64) Target { return Target{Model: PartnerModel, ID: id} }
func GuestTarget(id int64) Target   { return Target{Model: GuestModel, ID: id} }
func ChannelTarget(id int64) Target { return Target{Model: ChannelModel, ID: id} }

// Guest is an unregistered visitor allowed into public channels.
type Guest struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	AccessTokenHash string `json:"-"`
	CreatedAt       int64  `json:"create_date"`
}
