package main

import (
	"encoding/json"
	"net/http"

	"github.com/aicc2025/ai-native-callcenter/telemetry"
	"github.com/aicc2025/ai-native-callcenter/turn"
)

type turnRequest struct {
	SessionID string         `json:"session_id"`
	Utterance string         `json:"utterance"`
	Hints     map[string]any `json:"hints"`
}

type turnResponse struct {
	Reply              string `json:"reply"`
	JourneyID          string `json:"journey_id,omitempty"`
	State              string `json:"state,omitempty"`
	IsNewJourney       bool   `json:"is_new_journey"`
	JourneyActivated   bool   `json:"journey_activated"`
	TransitionOccurred bool   `json:"transition_occurred"`
	Valid              bool   `json:"valid"`
}

// turnHandler exposes Pipeline.ProcessTurn over a single POST /turn
// endpoint. The call platform (telephony/ASR/TTS integration) is out of
// scope for this core; it speaks to this endpoint per utterance.
type turnHandler struct {
	pipeline *turn.Pipeline
	log      telemetry.Logger
}

func newTurnHandler(pipeline *turn.Pipeline, log telemetry.Logger) *turnHandler {
	return &turnHandler{pipeline: pipeline, log: log}
}

func (h *turnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.Utterance == "" {
		http.Error(w, "session_id and utterance are required", http.StatusBadRequest)
		return
	}

	result, err := h.pipeline.ProcessTurn(r.Context(), req.SessionID, req.Utterance, req.Hints)
	if err != nil {
		h.log.Error(r.Context(), "turn processing failed", "session_id", req.SessionID, "error", err.Error())
		http.Error(w, "turn processing failed", http.StatusInternalServerError)
		return
	}

	resp := turnResponse{
		Reply:              result.Reply,
		JourneyID:          result.JourneyID,
		State:              result.State,
		IsNewJourney:       result.IsNewJourney,
		JourneyActivated:   result.JourneyActivated,
		TransitionOccurred: result.TransitionOccurred,
		Valid:              result.Validation.Valid,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
