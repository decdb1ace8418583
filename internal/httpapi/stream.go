package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/capgen-ai/capgen/internal/domain"
	"github.com/capgen-ai/capgen/internal/eventbus"
)

func lastEventID(r *http.Request) uint64 {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("last_event_id")
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// subtitleEventBody is the documented data shape for every subtitle.* tag:
// the sentence's index alongside the full sentence, with is_update set for
// every tag past the initial transcription and perplexity surfaced
// top-level when the stage that produced it set one.
type subtitleEventBody struct {
	Index      int             `json:"index"`
	Sentence   domain.Sentence `json:"sentence"`
	IsUpdate   bool            `json:"is_update,omitempty"`
	Perplexity *float64        `json:"perplexity,omitempty"`
}

func isSubtitleTag(tag domain.EventTag) bool {
	switch tag {
	case domain.EventSubtitlePrimary, domain.EventSubtitlePatch,
		domain.EventSubtitleLLMProof, domain.EventSubtitleLLMTrans:
		return true
	default:
		return false
	}
}

// shapeBody rewrites a subtitle.* event's body from the bare domain.Sentence
// the Subtitle Session publishes into the documented {index, sentence, ...}
// envelope. Every other tag's body passes through unchanged.
func shapeBody(ev domain.Event) any {
	if !isSubtitleTag(ev.Tag) {
		return ev.Body
	}
	sent, ok := ev.Body.(domain.Sentence)
	if !ok {
		return ev.Body
	}
	return subtitleEventBody{
		Index:      sent.Index,
		Sentence:   sent,
		IsUpdate:   ev.Tag != domain.EventSubtitlePrimary,
		Perplexity: sent.Perplexity,
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, ev domain.Event) {
	ev.Body = shapeBody(ev)
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Tag, payload)
	flusher.Flush()
}

// streamSSE drives one subscriber's connection lifetime: a replay_gap
// notice if the client's Last-Event-ID fell outside the ring, then the
// buffered replay, then live events until the client disconnects, selecting
// over r.Context().Done() and the subscriber channel.
func streamSSE(w http.ResponseWriter, r *http.Request, sub *eventbus.Subscription) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	defer sub.Close()

	if sub.Gap {
		writeSSEEvent(w, flusher, domain.Event{Tag: domain.EventSignalReplayGap})
	}
	for _, ev := range sub.Replay {
		writeSSEEvent(w, flusher, ev)
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			writeSSEEvent(w, flusher, ev)
		}
	}
}

func (s *Server) handleStreamJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	sub := s.Bus.Subscribe(jobID, lastEventID(r))
	streamSSE(w, r, sub)
}

func (s *Server) handleStreamGlobal(w http.ResponseWriter, r *http.Request) {
	sub := s.Bus.SubscribeGlobal(lastEventID(r))
	streamSSE(w, r, sub)
}
