package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/yufr007/seacaster-sub001/middleware"
	"github.com/yufr007/seacaster-sub001/models"
	"github.com/yufr007/seacaster-sub001/services"
)

type TournamentHandler struct {
	tournamentService  *services.TournamentService
	leaderboardService *services.LeaderboardService
}

func NewTournamentHandler(ts *services.TournamentService, ls *services.LeaderboardService) *TournamentHandler {
	return &TournamentHandler{
		tournamentService:  ts,
		leaderboardService: ls,
	}
}

// CreateHandler обрабатывает POST /tournaments
func (h *TournamentHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.GetPlayerIDFromContext(r.Context()); err != nil {
		unauthorizedResponse(w, r, "authentication required to create tournament")
		return
	}

	var input services.CreateTournamentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.CreateTournament(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByIDHandler обрабатывает GET /tournaments/{tournamentID}
func (h *TournamentHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.GetTournament(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler обрабатывает GET /tournaments.
// Без query-параметров отдаёт активные турниры (open и live); status и kind
// позволяют запросить конкретный срез, включая завершённые.
func (h *TournamentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	statusStr := query.Get("status")
	kindStr := query.Get("kind")

	var (
		tournaments []models.Tournament
		err         error
	)
	if statusStr == "" && kindStr == "" {
		tournaments, err = h.tournamentService.ListActiveTournaments(r.Context())
	} else {
		var filter services.ListTournamentsInput
		if statusStr != "" {
			status := models.TournamentStatus(statusStr)
			if status != models.StatusOpen && status != models.StatusLive && status != models.StatusEnded {
				badRequestResponse(w, r, errors.New("invalid status query parameter"))
				return
			}
			filter.Status = &status
		}
		if kindStr != "" {
			kind := models.TournamentKind(kindStr)
			if _, ok := models.DefaultsForKind(kind); !ok {
				badRequestResponse(w, r, errors.New("invalid kind query parameter"))
				return
			}
			filter.Kind = &kind
		}
		tournaments, err = h.tournamentService.ListTournaments(r.Context(), filter)
	}
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": tournaments}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type enterInput struct {
	Method models.EntryMethod `json:"method"`
}

// EnterHandler обрабатывает POST /tournaments/{tournamentID}/entries
func (h *TournamentHandler) EnterHandler(w http.ResponseWriter, r *http.Request) {
	playerID, err := middleware.GetPlayerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to enter tournament")
		return
	}

	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	input := enterInput{Method: models.EntryMethodPaid}
	if r.ContentLength > 0 {
		if err := readJSON(w, r, &input); err != nil {
			badRequestResponse(w, r, err)
			return
		}
	}
	if input.Method != models.EntryMethodPaid && input.Method != models.EntryMethodTicket {
		badRequestResponse(w, r, errors.New("method must be 'paid' or 'ticket'"))
		return
	}

	entry, err := h.tournamentService.Enter(r.Context(), id, playerID, input.Method)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"entry": entry}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type submitScoreInput struct {
	Score float64 `json:"score"`
}

// SubmitScoreHandler обрабатывает POST /tournaments/{tournamentID}/scores.
// REST-фоллбек для клиентов без websocket-соединения.
func (h *TournamentHandler) SubmitScoreHandler(w http.ResponseWriter, r *http.Request) {
	playerID, err := middleware.GetPlayerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to submit score")
		return
	}

	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input submitScoreInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.tournamentService.SubmitScore(r.Context(), id, playerID, input.Score); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusAccepted, jsonResponse{"status": "accepted"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// LeaderboardHandler обрабатывает GET /tournaments/{tournamentID}/leaderboard.
// Query-параметры: limit (топ N), around + window (окно вокруг игрока).
func (h *TournamentHandler) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	query := r.URL.Query()

	if aroundStr := query.Get("around"); aroundStr != "" {
		aroundPlayerID, err := strconv.Atoi(aroundStr)
		if err != nil || aroundPlayerID <= 0 {
			badRequestResponse(w, r, errors.New("invalid around query parameter"))
			return
		}

		window := 5
		if windowStr := query.Get("window"); windowStr != "" {
			if parsed, err := strconv.Atoi(windowStr); err == nil && parsed > 0 {
				window = parsed
			} else {
				badRequestResponse(w, r, errors.New("invalid window query parameter"))
				return
			}
		}

		rank, rows, err := h.leaderboardService.Around(r.Context(), id, aroundPlayerID, window)
		if err != nil {
			mapServiceErrorToHTTP(w, r, err)
			return
		}

		payload := jsonResponse{"player_rank": rank, "entries": rows}
		if err := writeJSON(w, http.StatusOK, payload, nil); err != nil {
			serverErrorResponse(w, r, err)
		}
		return
	}

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		} else {
			badRequestResponse(w, r, errors.New("invalid limit query parameter"))
			return
		}
	}

	snapshot, err := h.leaderboardService.Top(r.Context(), id, limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, snapshot, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
