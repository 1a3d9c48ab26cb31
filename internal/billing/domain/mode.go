package domain

// Mode governs which bill fields a drawer may edit.
type Mode string

const (
	ModeCreate  Mode = "create"
	ModeView    Mode = "view"
	ModeEdit    Mode = "edit"
	ModeCollect Mode = "collect"
)

// Scope groups bill fields by the capability needed to edit them.
type Scope int

const (
	ScopeItems Scope = iota + 1
	ScopeParty
	ScopePayment
	ScopeReceived
)

func (s Scope) String() string {
	switch s {
	case ScopeItems:
		return "items"
	case ScopeParty:
		return "party"
	case ScopePayment:
		return "payment"
	case ScopeReceived:
		return "received"
	default:
		return "unknown"
	}
}

// Capabilities lists what a mode allows.
type Capabilities struct {
	CanEditItems   bool `json:"can_edit_items"`
	CanEditParty   bool `json:"can_edit_party"`
	CanEditPayment bool `json:"can_edit_payment"`

	// CanEditReceived covers the bill-level received amount. Once a bill is
	// stored that amount only moves through recorded payments.
	CanEditReceived bool `json:"can_edit_received"`
}

// Allows reports whether fields in the given scope are editable.
func (c Capabilities) Allows(scope Scope) bool {
	switch scope {
	case ScopeItems:
		return c.CanEditItems
	case ScopeParty:
		return c.CanEditParty
	case ScopePayment:
		return c.CanEditPayment
	case ScopeReceived:
		return c.CanEditReceived
	default:
		return false
	}
}

// Patient and doctor are fixed once a bill is persisted, so edit mode
// cannot change them. The received amount is only typed in at creation.
// Collect mode only touches the payment draft.
var capabilityTable = map[Mode]Capabilities{
	ModeCreate:  {CanEditItems: true, CanEditParty: true, CanEditPayment: true, CanEditReceived: true},
	ModeView:    {},
	ModeEdit:    {CanEditItems: true, CanEditPayment: true},
	ModeCollect: {CanEditPayment: true},
}

// CapabilitiesOf returns the capability row for a mode. Unknown modes
// are fully read-only.
func CapabilitiesOf(m Mode) Capabilities {
	return capabilityTable[m]
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	_, ok := capabilityTable[m]
	return ok
}

// Submittable reports whether a submit is meaningful in mode m.
func (m Mode) Submittable() bool {
	return m == ModeCreate || m == ModeEdit || m == ModeCollect
}
