package hub

// EventKind classifies a parsed line from a NORMAL-state hub connection.
type EventKind int

const (
	EventOther EventKind = iota
	EventSearch
	EventSearchResult
	EventConnectToMe
	EventRevConnectToMe
)

// Event is the protocol-neutral shape both internal/adc and internal/nmdc
// decode their wire lines into, so Client's dispatch loop never needs to
// know which dialect it's talking to.
type Event struct {
	Kind EventKind

	// From identifies the sender: a CID for ADC, a nick for NMDC.
	From string

	// SearchTerm and TTHOnly are set for EventSearch.
	SearchTerm string
	TTHOnly    string

	// Result is set for EventSearchResult.
	Result SearchResultEvent

	// Address and Token are set for EventConnectToMe/EventRevConnectToMe:
	// Address is the peer's listening "ip:port" (ConnectToMe only), Token
	// pairs a CTM with its originating RCM.
	Address string
	Token   string
}

// SearchResultEvent is one parsed RES/$SR payload.
type SearchResultEvent struct {
	Nick        string
	VirtualPath string
	Size        int64
	TTH         string
}

// SearchHandler answers an incoming search against the local share tree.
// Implemented by core, which owns the share.Manager; kept as an interface
// here so the hub package never imports share directly.
type SearchHandler interface {
	HandleSearch(c *Client, ev Event)
}

// ConnectHandler reacts to an incoming CTM/RCM, wired by core to the
// transfer layer so establishing or requesting a peer connection doesn't
// require the hub package to import transfer.
type ConnectHandler interface {
	HandleConnectToMe(c *Client, ev Event)
	HandleRevConnectToMe(c *Client, ev Event)
}
