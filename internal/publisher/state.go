package publisher

import (
	"fmt"

	"adpilot/internal/store"
)

// The publish walk is modeled as a typed state machine. Each state carries
// only the remote identifiers that exist once it has been reached, so a
// half-published campaign cannot be misread as further along than it is.
type State interface {
	Status() string
}

type Pending struct{}

type CampaignCreated struct {
	RemoteCampaignID string
}

type AdSetCreated struct {
	RemoteCampaignID string
	RemoteAdSetID    string
}

type Completed struct {
	RemoteCampaignID string
	RemoteAdSetID    string
	RemoteCreativeID string
}

type Failed struct {
	Message string
}

func (Pending) Status() string         { return store.CampaignStatusPending }
func (CampaignCreated) Status() string { return store.CampaignStatusCampaignCreated }
func (AdSetCreated) Status() string    { return store.CampaignStatusAdSetCreated }
func (Completed) Status() string       { return store.CampaignStatusCompleted }
func (Failed) Status() string          { return store.CampaignStatusError }

// Events are the outcomes of the remote provisioning steps.
type Event interface {
	event()
}

type CampaignProvisioned struct{ RemoteID string }
type AdSetProvisioned struct{ RemoteID string }
type CreativeAttached struct{ RemoteID string }
type StepFailed struct{ Message string }

func (CampaignProvisioned) event() {}
func (AdSetProvisioned) event()    {}
func (CreativeAttached) event()    {}
func (StepFailed) event()          {}

// ErrInvalidTransition reports an (state, event) pair the machine does not
// accept, e.g. an ad set outcome arriving while still pending.
type ErrInvalidTransition struct {
	From  string
	Event Event
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition from %q on %T", e.From, e.Event)
}

// Next is total over all (state, event) pairs: every combination either yields
// the successor state or an ErrInvalidTransition. StepFailed is accepted from
// any non-terminal state; terminal states accept nothing.
func Next(s State, e Event) (State, error) {
	switch cur := s.(type) {
	case Pending:
		switch ev := e.(type) {
		case CampaignProvisioned:
			return CampaignCreated{RemoteCampaignID: ev.RemoteID}, nil
		case StepFailed:
			return Failed{Message: ev.Message}, nil
		}
	case CampaignCreated:
		switch ev := e.(type) {
		case AdSetProvisioned:
			return AdSetCreated{RemoteCampaignID: cur.RemoteCampaignID, RemoteAdSetID: ev.RemoteID}, nil
		case StepFailed:
			return Failed{Message: ev.Message}, nil
		}
	case AdSetCreated:
		switch ev := e.(type) {
		case CreativeAttached:
			return Completed{
				RemoteCampaignID: cur.RemoteCampaignID,
				RemoteAdSetID:    cur.RemoteAdSetID,
				RemoteCreativeID: ev.RemoteID,
			}, nil
		case StepFailed:
			return Failed{Message: ev.Message}, nil
		}
	case Completed, Failed:
		// terminal
	}

	return nil, &ErrInvalidTransition{From: s.Status(), Event: e}
}

// StateFromRecord rebuilds the typed state from a persisted campaign row, so a
// walk can resume from whatever step last committed.
func StateFromRecord(c *store.Campaign) (State, error) {
	str := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}

	switch c.Status {
	case store.CampaignStatusPending:
		return Pending{}, nil
	case store.CampaignStatusCampaignCreated:
		return CampaignCreated{RemoteCampaignID: str(c.RemoteCampaignID)}, nil
	case store.CampaignStatusAdSetCreated:
		return AdSetCreated{
			RemoteCampaignID: str(c.RemoteCampaignID),
			RemoteAdSetID:    str(c.RemoteAdSetID),
		}, nil
	case store.CampaignStatusCompleted:
		return Completed{
			RemoteCampaignID: str(c.RemoteCampaignID),
			RemoteAdSetID:    str(c.RemoteAdSetID),
			RemoteCreativeID: str(c.RemoteCreativeID),
		}, nil
	case store.CampaignStatusError:
		return Failed{Message: str(c.ErrorMessage)}, nil
	}

	return nil, fmt.Errorf("unknown campaign status %q", c.Status)
}
