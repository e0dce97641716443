package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"pharmacy-intake-bot/internal/domain/model"
	"pharmacy-intake-bot/internal/domain/ports/adapter"
	"pharmacy-intake-bot/internal/infra/logging"
	"pharmacy-intake-bot/internal/validate"
)

// ConversationUseCase is the intake dialogue state machine. One call to
// Advance consumes one user message, mutates the session in place and
// returns the reply to show. The caller owns the session lifecycle and
// must serialize Advance calls per session; calls across different
// sessions are independent.
type ConversationUseCase interface {
	Advance(ctx context.Context, s *model.Session, input string) string
}

var _ ConversationUseCase = (*conversationUC)(nil)

type conversationUC struct {
	resolver adapter.AddressResolver
	pricing  PricingUseCase
	log      *zerolog.Logger
	dev      bool
}

// NewConversationUseCase wires the dialogue engine. The resolver is
// only called from the RESOLVE_ADDRESS step.
func NewConversationUseCase(resolver adapter.AddressResolver, pricing PricingUseCase, logger *zerolog.Logger, dev bool) ConversationUseCase {
	return &conversationUC{resolver: resolver, pricing: pricing, log: logger, dev: dev}
}

// Replies shown more than once; tests and transports key off these.
const (
	replyFinished = "Conversa finalizada"
	replyOops     = "Desculpe, ocorreu um erro inesperado. Vamos recomeçar seu atendimento. Envie qualquer mensagem para continuar."
	replyRetryCEP = "Erro ao consultar o CEP. Informe novamente"
	replyRedoCEP  = "Sem problemas. Informe o CEP novamente"
)

// Advance runs one turn of the dialogue. It never panics: anything a
// handler throws is recovered, the session is reset to INIT and a
// generic apology is returned.
func (c *conversationUC) Advance(ctx context.Context, s *model.Session, input string) (reply string) {
	from := s.State
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("session_id", s.ID).Str("state", string(from)).Msg("conversation handler panicked; resetting session")
			*s = *model.NewSession(s.ID)
			reply = replyOops
			return
		}
		c.log.Info().
			Str("session_id", s.ID).
			Str("from", string(from)).
			Str("to", string(s.State)).
			Int("input_len", len(input)).
			Msg("conversation turn")
	}()

	switch s.State {
	case model.StateInit:
		return c.handleInit(s)
	case model.StateAskMedicine:
		return c.handleAskMedicine(s, input)
	case model.StateAskName:
		return c.handleAskName(s, input)
	case model.StateAskID:
		return c.handleAskID(s, input)
	case model.StateAskPhone:
		return c.handleAskPhone(s, input)
	case model.StateAskPostal:
		return c.handleAskPostal(s, input)
	case model.StateResolveAddress:
		return c.handleResolveAddress(ctx, s)
	case model.StateConfirmCity:
		return c.handleConfirmCity(s, input)
	case model.StateAskStreet:
		return c.handleAskStreet(s, input)
	case model.StateAskNumber:
		return c.handleAskNumber(s, input)
	case model.StateAskDistrict:
		return c.handleAskDistrict(s, input)
	case model.StateConfirmAddress:
		return c.handleConfirmAddress(s, input)
	case model.StateEnd:
		// Terminal and idempotent: nothing is mutated here.
		return replyFinished
	default:
		c.log.Warn().Str("session_id", s.ID).Str("state", string(s.State)).Msg("unknown conversation state; resetting session")
		*s = *model.NewSession(s.ID)
		return "Desculpe, algo deu errado com seu atendimento. Vamos recomeçar. Envie qualquer mensagem para iniciar."
	}
}

func (c *conversationUC) handleInit(s *model.Session) string {
	s.State = model.StateAskMedicine
	return "Qual o nome do medicamento?"
}

func (c *conversationUC) handleAskMedicine(s *model.Session, input string) string {
	name := validate.Text(input)
	if name == "" {
		return "Não entendi. Qual o nome do medicamento?"
	}
	s.Order.Medicine = name
	s.Order.PriceCents = c.pricing.PriceCents(name)
	s.State = model.StateAskName
	return fmt.Sprintf("%s custa %s. Agora, digite seu nome completo", name, model.FormatPrice(s.Order.PriceCents))
}

func (c *conversationUC) handleAskName(s *model.Session, input string) string {
	s.Order.CustomerName = validate.Text(input)
	s.State = model.StateAskID
	return "Digite seu CPF (apenas números)"
}

func (c *conversationUC) handleAskID(s *model.Session, input string) string {
	if !validate.CPF(input) {
		c.logValidationFailure(s, "cpf", input)
		return "CPF inválido. Digite novamente"
	}
	s.Order.CPF = validate.Digits(input)
	s.State = model.StateAskPhone
	return "Digite seu telefone com DDD (apenas números)"
}

func (c *conversationUC) handleAskPhone(s *model.Session, input string) string {
	if !validate.Phone(input) {
		c.logValidationFailure(s, "phone", input)
		return "Telefone inválido. Digite novamente"
	}
	s.Order.Phone = validate.Digits(input)
	s.State = model.StateAskPostal
	return "Informe o CEP para entrega"
}

func (c *conversationUC) handleAskPostal(s *model.Session, input string) string {
	if !validate.CEP(input) {
		c.logValidationFailure(s, "cep", input)
		return "CEP inválido. Informe novamente"
	}
	s.Order.CEP = validate.Digits(input)
	s.State = model.StateResolveAddress
	return "Consultando endereço..."
}

func (c *conversationUC) handleResolveAddress(ctx context.Context, s *model.Session) string {
	addr, err := c.resolver.Resolve(ctx, s.Order.CEP)
	if err != nil {
		c.log.Warn().Err(err).Str("session_id", s.ID).Str("cep", s.Order.CEP).Msg("address resolution failed")
		s.State = model.StateAskPostal
		return replyRetryCEP
	}
	s.Order.Address = *addr
	s.State = model.StateConfirmCity
	return fmt.Sprintf("O CEP %s fica em %s/%s. Está correto? (sim ou não)",
		s.Order.CEP, addr.City, addr.Region)
}

func (c *conversationUC) handleConfirmCity(s *model.Session, input string) string {
	if !affirmative(input) {
		s.Order.ResetDelivery()
		s.State = model.StateAskPostal
		return replyRedoCEP
	}
	s.State = model.StateAskStreet
	if s.Order.Address.Street != "" {
		return fmt.Sprintf("Encontrei a rua %s. Confirme enviando o nome da rua, ou envie outro nome para corrigir", s.Order.Address.Street)
	}
	return "Não encontrei o nome da rua. Pode informar o nome da rua?"
}

func (c *conversationUC) handleAskStreet(s *model.Session, input string) string {
	street := validate.Text(input)
	if street == "" {
		if s.Order.Address.Street == "" {
			return "Não entendi. Pode informar o nome da rua?"
		}
		// Empty answer keeps the resolved street.
	} else {
		s.Order.Address.Street = street
	}
	s.State = model.StateAskNumber
	return "Informe o número da residência"
}

func (c *conversationUC) handleAskNumber(s *model.Session, input string) string {
	s.Order.HouseNumber = validate.Text(input)
	if s.Order.Address.District == "" {
		s.State = model.StateAskDistrict
		return "Não encontrei o bairro. Pode informar o nome do bairro?"
	}
	s.State = model.StateConfirmAddress
	return c.confirmAddressPrompt(s)
}

func (c *conversationUC) handleAskDistrict(s *model.Session, input string) string {
	district := validate.Text(input)
	if district == "" {
		return "Não entendi. Pode informar o nome do bairro?"
	}
	s.Order.Address.District = district
	s.State = model.StateConfirmAddress
	return c.confirmAddressPrompt(s)
}

func (c *conversationUC) confirmAddressPrompt(s *model.Session) string {
	return fmt.Sprintf("Encontrei este endereço:\n\n%s\n\nEstá correto? (sim ou não)", s.Order.FormatAddressLines())
}

func (c *conversationUC) handleConfirmAddress(s *model.Session, input string) string {
	if !affirmative(input) {
		s.Order.ResetDelivery()
		s.State = model.StateAskPostal
		return replyRedoCEP
	}

	now := time.Now()
	s.Order.OrderID = NewOrderID(now)
	s.Order.CreatedAt = &now
	s.State = model.StateEnd

	c.log.Info().
		Str("session_id", s.ID).
		Str("order_id", s.Order.OrderID).
		Str("cpf", logging.Redact(s.Order.CPF, c.dev)).
		Str("medicine", s.Order.Medicine).
		Msg("order confirmed")

	return fmt.Sprintf(`✅ Pedido %s confirmado com sucesso!

👤 Cliente: %s
🪪 CPF: %s
💊 Medicamento: %s (%s)
📍 Endereço: %s
CEP: %s
Obrigado por comprar na Farmácia Local!`,
		s.Order.OrderID,
		s.Order.CustomerName,
		s.Order.CPF,
		s.Order.Medicine,
		model.FormatPrice(s.Order.PriceCents),
		s.Order.FormatAddressLines(),
		s.Order.CEP,
	)
}

func (c *conversationUC) logValidationFailure(s *model.Session, field, raw string) {
	c.log.Debug().
		Str("session_id", s.ID).
		Str("state", string(s.State)).
		Str("field", field).
		Str("value", logging.Redact(validate.Digits(raw), c.dev)).
		Msg("field validation failed")
}

// affirmative parses confirmation answers. Only "sim" or "s" (any case)
// count as yes; everything else is a decline, never a validation error.
func affirmative(input string) bool {
	switch strings.ToLower(validate.Text(input)) {
	case "sim", "s":
		return true
	}
	return false
}

// orderIDPrefix marks order IDs from this intake channel.
const orderIDPrefix = "FARMA-"

// NewOrderID builds an order identifier from a fixed prefix plus a ULID
// (millisecond timestamp + random suffix). Unique with overwhelming
// probability; collisions are not detected or retried.
func NewOrderID(ts time.Time) string {
	return orderIDPrefix + ulid.MustNew(ulid.Timestamp(ts), ulid.DefaultEntropy()).String()
}
