// Package telegram is an optional second front-end: the same intake
// dialogue, driven from a Telegram chat instead of the web widget.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"pharmacy-intake-bot/internal/domain"
	"pharmacy-intake-bot/internal/domain/model"
	"pharmacy-intake-bot/internal/domain/ports/repository"
	"pharmacy-intake-bot/internal/infra/metrics"
	red "pharmacy-intake-bot/internal/infra/redis"
	"pharmacy-intake-bot/internal/usecase"
)

const welcomeMessage = "Bem-vindo à Farmácia Local! 💊 Quer pedir seu medicamento sem complicações? Envie o nome do medicamento para começar."

// Bot polls Telegram and feeds each message through the conversation
// engine. Sessions are keyed by chat ID so a chat is one dialogue.
type Bot struct {
	api      *tgbotapi.BotAPI
	sessions repository.SessionRepository
	orders   repository.OrderRepository // nil when persistence is disabled
	conv     usecase.ConversationUseCase
	locker   red.Locker
	workers  int
	log      *zerolog.Logger
}

func NewBot(
	token string,
	sessions repository.SessionRepository,
	orders repository.OrderRepository,
	conv usecase.ConversationUseCase,
	locker red.Locker,
	workers int,
	logger *zerolog.Logger,
) (*Bot, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if workers <= 0 {
		workers = 4
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Bot{
		api:      api,
		sessions: sessions,
		orders:   orders,
		conv:     conv,
		locker:   locker,
		workers:  workers,
		log:      logger,
	}, nil
}

// StartPolling runs until ctx is canceled. Updates are fanned out to a
// fixed worker pool; the per-session lock keeps turns serialized even
// when two updates for the same chat land on different workers.
func (b *Bot) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case update, ok := <-updateChan:
					if !ok {
						return
					}
					if err := b.handleUpdate(ctx, update); err != nil {
						b.log.Error().Err(err).Msg("telegram update failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(updateChan)
		for {
			select {
			case update := <-updates:
				select {
				case updateChan <- update:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	b.api.StopReceivingUpdates()
	wg.Wait()
	return ctx.Err()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.Message == nil || update.Message.Text == "" {
		return nil
	}
	chatID := update.Message.Chat.ID
	text := update.Message.Text
	sessionID := fmt.Sprintf("tg:%d", chatID)

	lockKey := red.SessionLockKey(sessionID)
	token, err := b.locker.TryLock(ctx, lockKey, 30*time.Second)
	if err != nil {
		if errors.Is(err, domain.ErrSessionBusy) {
			return b.send(chatID, "Ainda estou processando sua última mensagem. Um instante...")
		}
		return err
	}
	defer func() { _ = b.locker.Unlock(ctx, lockKey, token) }()

	session, err := b.sessions.Get(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		session, err = b.sessions.Create(ctx, sessionID)
		if err != nil {
			return err
		}
		metrics.IncSessionStarted()
		if text == "/start" {
			return b.send(chatID, welcomeMessage)
		}
	} else if err != nil {
		return err
	}

	// /start mid-dialogue abandons the current order.
	if text == "/start" {
		session = model.NewSession(sessionID)
	}

	from := session.State
	reply := b.conv.Advance(ctx, session, text)
	if session.State == model.StateResolveAddress {
		reply = reply + "\n" + b.conv.Advance(ctx, session, "")
	}

	if err := b.sessions.Save(ctx, session); err != nil {
		return err
	}

	if from != model.StateEnd && session.State == model.StateEnd && session.Order.Completed() {
		metrics.IncOrderCompleted()
		if b.orders != nil {
			if err := b.orders.Save(ctx, session.ID, &session.Order); err != nil {
				b.log.Error().Err(err).Str("order_id", session.Order.OrderID).Msg("order persist failed")
			}
		}
	}

	return b.send(chatID, reply)
}

func (b *Bot) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}
