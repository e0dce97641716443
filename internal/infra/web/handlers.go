package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"pharmacy-intake-bot/internal/domain"
	"pharmacy-intake-bot/internal/domain/model"
	"pharmacy-intake-bot/internal/infra/logging"
	"pharmacy-intake-bot/internal/infra/metrics"
	red "pharmacy-intake-bot/internal/infra/redis"
)

const welcomeMessage = "Bem-vindo à Farmácia Local! 💊 Quer pedir seu medicamento sem complicações? Estamos prontos para te atender.\nComo podemos ajudar hoje?"

// turnLockTTL caps how long one turn may hold its session. An Advance
// that hangs past this (resolver at its worst is 5s) loses the lock.
const turnLockTTL = 30 * time.Second

type startResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Success   bool   `json:"success"`
}

type conversationRequest struct {
	SessionID string  `json:"session_id"`
	Message   *string `json:"message"`
}

type conversationResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Reply     string `json:"reply"`
	Finished  bool   `json:"finished"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := uuid.NewString()
	if _, err := s.sessions.Create(ctx, sessionID); err != nil {
		s.log.Error().Err(err).Msg("session create failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Erro interno no servidor"})
		return
	}
	metrics.IncSessionStarted()

	s.log.Info().Str("session_id", sessionID).Str("remote", r.RemoteAddr).Msg("new session started")
	writeJSON(w, http.StatusOK, startResponse{
		SessionID: sessionID,
		Message:   welcomeMessage,
		Success:   true,
	})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req conversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || req.Message == nil {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("invalid conversation request")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session_id e message são obrigatórios"})
		return
	}
	ctx = logging.WithSessID(ctx, req.SessionID)

	ok, err := s.limiter.Allow(ctx, red.SessionTurnKey(req.SessionID), s.ratePerMinute, time.Minute)
	if err != nil {
		s.log.Error().Err(err).Msg("rate limiter failed")
	} else if !ok {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Muitas mensagens. Aguarde um instante."})
		return
	}

	// One in-flight turn per session: the session record has no
	// internal locking, so concurrent turns must be rejected here.
	lockKey := red.SessionLockKey(req.SessionID)
	token, err := s.locker.TryLock(ctx, lockKey, turnLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrSessionBusy) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "Já existe uma mensagem em processamento para esta sessão"})
			return
		}
		s.log.Error().Err(err).Str("session_id", req.SessionID).Msg("turn lock failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Erro interno no servidor"})
		return
	}
	defer func() {
		if err := s.locker.Unlock(ctx, lockKey, token); err != nil {
			s.log.Warn().Err(err).Str("session_id", req.SessionID).Msg("turn unlock failed")
		}
	}()

	session, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{
				Error:      "Sessão não encontrada",
				Suggestion: "Inicie uma nova sessão em /start",
			})
			return
		}
		s.log.Error().Err(err).Msg("session load failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Erro interno no servidor"})
		return
	}

	reply := s.advance(ctx, session, *req.Message)

	if err := s.sessions.Save(ctx, session); err != nil {
		s.log.Error().Err(err).Str("session_id", session.ID).Msg("session save failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Erro interno no servidor"})
		return
	}

	writeJSON(w, http.StatusOK, conversationResponse{
		SessionID: session.ID,
		State:     string(session.State),
		Reply:     reply,
		Finished:  session.State.Terminal(),
	})
}

// advance runs the turn, folds the intermediate RESOLVE_ADDRESS step
// into the same response, and persists a just-completed order.
func (s *Server) advance(ctx context.Context, session *model.Session, message string) string {
	log := logging.With(ctx, s.log)
	from := session.State
	reply := s.conv.Advance(ctx, session, message)

	// The postal-code step parks the session in RESOLVE_ADDRESS and
	// answers "consultando...". Run the lookup right away so the user
	// gets the resolved address in this response.
	if session.State == model.StateResolveAddress {
		reply = reply + "\n" + s.conv.Advance(ctx, session, "")
	}

	metrics.IncTurn(string(from), turnOutcome(from, session.State))

	if from != model.StateEnd && session.State == model.StateEnd && session.Order.Completed() {
		metrics.IncOrderCompleted()
		if s.orders != nil {
			if err := s.orders.Save(ctx, session.ID, &session.Order); err != nil {
				// The user already has the confirmation; losing the
				// back-office row must not fail the turn.
				log.Error().Err(err).Str("order_id", session.Order.OrderID).Msg("order persist failed")
			}
		}
	}

	return reply
}

func turnOutcome(from, to model.State) string {
	switch {
	case to == model.StateEnd && from != model.StateEnd:
		return metrics.OutcomeFinished
	case from == to:
		return metrics.OutcomeRetried
	default:
		return metrics.OutcomeAdvanced
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	if s.orders == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "order persistence is disabled"})
		return
	}
	orders, err := s.orders.ListRecent(r.Context(), 50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list orders"})
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
