package publisher

import (
	"testing"

	"adpilot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextHappyPath(t *testing.T) {
	s, err := Next(Pending{}, CampaignProvisioned{RemoteID: "c1"})
	require.NoError(t, err)
	require.Equal(t, CampaignCreated{RemoteCampaignID: "c1"}, s)

	s, err = Next(s, AdSetProvisioned{RemoteID: "a1"})
	require.NoError(t, err)
	require.Equal(t, AdSetCreated{RemoteCampaignID: "c1", RemoteAdSetID: "a1"}, s)

	s, err = Next(s, CreativeAttached{RemoteID: "cr1"})
	require.NoError(t, err)
	require.Equal(t, Completed{RemoteCampaignID: "c1", RemoteAdSetID: "a1", RemoteCreativeID: "cr1"}, s)
}

func TestNextStepFailedFromAnyNonTerminalState(t *testing.T) {
	for _, s := range []State{
		Pending{},
		CampaignCreated{RemoteCampaignID: "c1"},
		AdSetCreated{RemoteCampaignID: "c1", RemoteAdSetID: "a1"},
	} {
		next, err := Next(s, StepFailed{Message: "boom"})
		require.NoError(t, err, "from %s", s.Status())
		assert.Equal(t, Failed{Message: "boom"}, next)
	}
}

func TestNextRejectsInvalidPairs(t *testing.T) {
	cases := []struct {
		state State
		event Event
	}{
		{Pending{}, AdSetProvisioned{RemoteID: "a1"}},
		{Pending{}, CreativeAttached{RemoteID: "cr1"}},
		{CampaignCreated{}, CampaignProvisioned{RemoteID: "c1"}},
		{CampaignCreated{}, CreativeAttached{RemoteID: "cr1"}},
		{AdSetCreated{}, CampaignProvisioned{RemoteID: "c1"}},
		{AdSetCreated{}, AdSetProvisioned{RemoteID: "a1"}},
		{Completed{}, CampaignProvisioned{RemoteID: "c1"}},
		{Completed{}, StepFailed{Message: "boom"}},
		{Failed{}, CampaignProvisioned{RemoteID: "c1"}},
		{Failed{}, StepFailed{Message: "boom"}},
	}

	for _, tc := range cases {
		next, err := Next(tc.state, tc.event)
		assert.Nil(t, next)
		var invalid *ErrInvalidTransition
		require.ErrorAs(t, err, &invalid, "from %s on %T", tc.state.Status(), tc.event)
		assert.Equal(t, tc.state.Status(), invalid.From)
	}
}

func TestStateFromRecord(t *testing.T) {
	campaignID, adsetID, creativeID, msg := "c1", "a1", "cr1", "boom"

	cases := []struct {
		name     string
		campaign store.Campaign
		want     State
	}{
		{"pending", store.Campaign{Status: store.CampaignStatusPending}, Pending{}},
		{
			"campaign created",
			store.Campaign{Status: store.CampaignStatusCampaignCreated, RemoteCampaignID: &campaignID},
			CampaignCreated{RemoteCampaignID: "c1"},
		},
		{
			"adset created",
			store.Campaign{Status: store.CampaignStatusAdSetCreated, RemoteCampaignID: &campaignID, RemoteAdSetID: &adsetID},
			AdSetCreated{RemoteCampaignID: "c1", RemoteAdSetID: "a1"},
		},
		{
			"completed",
			store.Campaign{
				Status:           store.CampaignStatusCompleted,
				RemoteCampaignID: &campaignID, RemoteAdSetID: &adsetID, RemoteCreativeID: &creativeID,
			},
			Completed{RemoteCampaignID: "c1", RemoteAdSetID: "a1", RemoteCreativeID: "cr1"},
		},
		{"error", store.Campaign{Status: store.CampaignStatusError, ErrorMessage: &msg}, Failed{Message: "boom"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := StateFromRecord(&tc.campaign)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStateFromRecordUnknownStatus(t *testing.T) {
	_, err := StateFromRecord(&store.Campaign{Status: "draft"})
	require.Error(t, err)
}
