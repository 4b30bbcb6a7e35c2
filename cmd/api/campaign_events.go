package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 15 * time.Second

// campaignEventsHandler godoc
//
//	@Summary		Stream campaign status events
//	@Description	Server-sent events stream of the campaign's publish transitions, in commit order. The current snapshot is sent first.
//	@Tags			campaigns
//	@Produce		text/event-stream
//	@Param			campaignID	path	string	true	"Campaign ID or reference code"
//	@Success		200
//	@Failure		404	{object}	error
//	@Security		ApiKeyAuth
//	@Router			/campaigns/{campaignID}/events [get]
func (app *application) campaignEventsHandler(w http.ResponseWriter, r *http.Request) {
	campaign, ok := app.resolveCampaign(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		app.internalServerError(w, r, fmt.Errorf("streaming unsupported by response writer"))
		return
	}

	// Subscribe before sending the snapshot so a transition landing in between
	// is queued rather than lost.
	updates, cancel := app.broadcaster.Subscribe(campaign.ID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, campaign); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case update, open := <-updates:
			if !open {
				// Detached for lagging, or the broadcaster shut the stream.
				return
			}
			if err := writeSSE(w, update); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}
