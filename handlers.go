package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"climb/internal/engine"
)

type apiResponse map[string]any

type registerRequest struct {
	Name string `json:"name"`
}

type credentialRequest struct {
	PlayerToken string `json:"player_token"`
}

type advanceRequest struct {
	PlayerToken string `json:"player_token"`
	Option      int    `json:"option"`
	Columns     []int  `json:"columns"`
}

func newMux(eng *engine.Engine, hub *EventHub, schemas requestSchemas, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/players", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req registerRequest
		if err := schemas.decode(r, schemaRegister, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		p, err := eng.Register(r.Context(), req.Name)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, apiResponse{
			"status":       "success",
			"message":      "Player registered.",
			"player_id":    p.ID,
			"player_name":  p.Name,
			"player_token": p.Token,
		})
	})

	mux.HandleFunc("/games", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req credentialRequest
		if err := schemas.decode(r, schemaCredential, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		g, err := eng.CreateGame(r.Context(), req.PlayerToken)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, apiResponse{
			"status":      "success",
			"message":     "Game created. Waiting for another player to join.",
			"game_id":     g.ID,
			"game_status": g.Status,
		})
	})

	mux.HandleFunc("/games/join", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req credentialRequest
		if err := schemas.decode(r, schemaCredential, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		g, err := eng.JoinGame(r.Context(), req.PlayerToken)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, apiResponse{
			"status":      "success",
			"message":     "Joined game successfully.",
			"game_id":     g.ID,
			"game_status": g.Status,
			"turn_owner":  g.TurnOwner,
		})
	})

	mux.HandleFunc("/games/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		v, err := eng.View(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, apiResponse{"status": "success", "game": v})
	})

	mux.HandleFunc("/games/{id}/roll", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req credentialRequest
		if err := schemas.decode(r, schemaCredential, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		res, err := eng.Roll(r.Context(), r.PathValue("id"), req.PlayerToken)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, apiResponse{"status": "success", "message": res.Message(), "roll": res})
	})

	mux.HandleFunc("/games/{id}/advance", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req advanceRequest
		if err := schemas.decode(r, schemaAdvance, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		sel := engine.Selection{Option: req.Option, Columns: req.Columns}
		res, err := eng.Advance(r.Context(), r.PathValue("id"), req.PlayerToken, sel)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, apiResponse{"status": "success", "message": res.Message(), "advance": res})
	})

	mux.HandleFunc("/games/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req credentialRequest
		if err := schemas.decode(r, schemaCredential, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		res, err := eng.Stop(r.Context(), r.PathValue("id"), req.PlayerToken)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, apiResponse{"status": "success", "message": res.Message(), "stop": res})
	})

	mux.HandleFunc("/games/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := r.PathValue("id")
		if _, err := eng.View(r.Context(), id); err != nil {
			writeError(w, logger, err)
			return
		}
		hub.ServeGame(w, r, id)
	})

	mux.HandleFunc("/scoreboard", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		if gameID := strings.TrimSpace(q.Get("game_id")); gameID != "" {
			board, err := eng.Scoreboard(r.Context(), gameID)
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, apiResponse{
				"status":      "success",
				"game_id":     board.GameID,
				"game_status": board.Status,
				"winner_id":   board.Winner,
				"scoreboard":  board.Entries,
			})
			return
		}
		if q.Get("mode") != "all" {
			writeError(w, logger, inputError("Provide game_id or mode=all."))
			return
		}
		tallies, err := eng.GlobalScoreboard(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if tallies == nil {
			tallies = []engine.WinTally{}
		}
		writeJSON(w, http.StatusOK, apiResponse{"status": "success", "scoreboard": tallies})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to its HTTP status. Storage failures are
// logged with their cause and reported generically.
func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	code := engine.CodeOf(err)
	msg := err.Error()
	var e *engine.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	if code == engine.CodeStorage {
		logger.Printf("storage failure: %v", err)
		msg = engine.ErrStorage.Message
	}
	writeJSON(w, httpStatus(code), apiResponse{"status": "error", "code": code, "message": msg})
}

func httpStatus(code engine.Code) int {
	switch code {
	case engine.CodeInvalidInput, engine.CodeInvalidOption:
		return http.StatusBadRequest
	case engine.CodeInvalidCredential:
		return http.StatusUnauthorized
	case engine.CodeGameNotFound:
		return http.StatusNotFound
	case engine.CodeNotYourTurn, engine.CodeNotInProgress, engine.CodeAlreadyRolled,
		engine.CodeNoPendingRoll, engine.CodePendingRoll, engine.CodeNoGameAvailable:
		return http.StatusConflict
	case engine.CodeNoValidColumns:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
