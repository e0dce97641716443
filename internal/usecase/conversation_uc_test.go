package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pharmacy-intake-bot/internal/domain"
	"pharmacy-intake-bot/internal/domain/model"
)

// ---- Fakes ----

type fakeResolver struct {
	addr  *model.Address
	err   error
	calls int
	panic bool
}

func (f *fakeResolver) Resolve(ctx context.Context, cep string) (*model.Address, error) {
	f.calls++
	if f.panic {
		panic("resolver blew up")
	}
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.addr
	return &cp, nil
}

type fixedPricing struct{ cents int64 }

func (f fixedPricing) PriceCents(string) int64 { return f.cents }

func nopLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func newEngine(r *fakeResolver) ConversationUseCase {
	return NewConversationUseCase(r, fixedPricing{cents: 1290}, nopLogger(), true)
}

func sessionAt(state model.State) *model.Session {
	s := model.NewSession("sess-1")
	s.State = state
	return s
}

const validCPF = "52998224725"

// ---- Tests ----

func TestAdvanceFromInit(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := model.NewSession("sess-1")

	reply := eng.Advance(context.Background(), s, "oi")
	if s.State != model.StateAskMedicine {
		t.Fatalf("state = %s, want ASK_MEDICINE", s.State)
	}
	if !strings.Contains(reply, "medicamento") {
		t.Errorf("reply %q does not mention the medicine question", reply)
	}
}

func TestAskMedicineRejectsEmpty(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.StateAskMedicine)

	eng.Advance(context.Background(), s, "   ")
	if s.State != model.StateAskMedicine {
		t.Fatalf("state = %s, want ASK_MEDICINE (unchanged)", s.State)
	}
	if s.Order.Medicine != "" {
		t.Error("empty input must not set the medicine")
	}
}

func TestAskMedicineSetsNameAndPrice(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.StateAskMedicine)

	reply := eng.Advance(context.Background(), s, "dipirona")
	if s.State != model.StateAskName {
		t.Fatalf("state = %s, want ASK_NAME", s.State)
	}
	if s.Order.Medicine != "dipirona" || s.Order.PriceCents != 1290 {
		t.Errorf("order = %q/%d, want dipirona/1290", s.Order.Medicine, s.Order.PriceCents)
	}
	if !strings.Contains(reply, "R$ 12,90") {
		t.Errorf("reply %q does not quote the price", reply)
	}
}

func TestAskIDInvalidKeepsState(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.StateAskID)

	reply := eng.Advance(context.Background(), s, "123")
	if s.State != model.StateAskID {
		t.Fatalf("state = %s, want ASK_ID (unchanged)", s.State)
	}
	if !strings.Contains(reply, "inválido") {
		t.Errorf("reply %q does not flag invalid input", reply)
	}
	if s.Order.CPF != "" {
		t.Error("invalid CPF must not be stored")
	}
}

func TestAskIDValidAdvances(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.StateAskID)

	eng.Advance(context.Background(), s, "529.982.247-25")
	if s.State != model.StateAskPhone {
		t.Fatalf("state = %s, want ASK_PHONE", s.State)
	}
	if s.Order.CPF != validCPF {
		t.Errorf("stored CPF = %q, want digits only", s.Order.CPF)
	}
}

func TestAskPhone(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.StateAskPhone)

	eng.Advance(context.Background(), s, "123")
	if s.State != model.StateAskPhone {
		t.Fatalf("state = %s, want ASK_PHONE (unchanged)", s.State)
	}

	eng.Advance(context.Background(), s, "(11) 93333-4444")
	if s.State != model.StateAskPostal {
		t.Fatalf("state = %s, want ASK_POSTAL", s.State)
	}
	if s.Order.Phone != "11933334444" {
		t.Errorf("stored phone = %q, want digits only", s.Order.Phone)
	}
}

func TestAskPostal(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.StateAskPostal)

	eng.Advance(context.Background(), s, "123")
	if s.State != model.StateAskPostal {
		t.Fatalf("state = %s, want ASK_POSTAL (unchanged)", s.State)
	}

	eng.Advance(context.Background(), s, "01001-000")
	if s.State != model.StateResolveAddress {
		t.Fatalf("state = %s, want RESOLVE_ADDRESS", s.State)
	}
	if s.Order.CEP != "01001000" {
		t.Errorf("stored CEP = %q, want 01001000", s.Order.CEP)
	}
}

func TestResolveAddressSuccess(t *testing.T) {
	r := &fakeResolver{addr: &model.Address{Street: "Praça da Sé", District: "Sé", City: "São Paulo", Region: "SP"}}
	eng := newEngine(r)
	s := sessionAt(model.StateResolveAddress)
	s.Order.CEP = "01001000"

	reply := eng.Advance(context.Background(), s, "")
	if s.State != model.StateConfirmCity {
		t.Fatalf("state = %s, want CONFIRM_CITY", s.State)
	}
	if !strings.Contains(reply, "São Paulo") || !strings.Contains(reply, "SP") {
		t.Errorf("reply %q does not mention city and region", reply)
	}
	if r.calls != 1 {
		t.Errorf("resolver called %d times, want 1", r.calls)
	}
}

func TestResolveAddressFailure(t *testing.T) {
	r := &fakeResolver{err: domain.ErrAddressNotFound}
	eng := newEngine(r)
	s := sessionAt(model.StateResolveAddress)
	s.Order.CEP = "99999999"

	reply := eng.Advance(context.Background(), s, "")
	if s.State != model.StateAskPostal {
		t.Fatalf("state = %s, want ASK_POSTAL", s.State)
	}
	if !strings.Contains(reply, "Informe novamente") {
		t.Errorf("reply %q does not ask for the CEP again", reply)
	}
}

func TestConfirmCityDeclineRestartsPostal(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.StateConfirmCity)
	s.Order.CEP = "01001000"
	s.Order.Address = model.Address{City: "São Paulo", Region: "SP"}

	eng.Advance(context.Background(), s, "não")
	if s.State != model.StateAskPostal {
		t.Fatalf("state = %s, want ASK_POSTAL", s.State)
	}
	if !s.Order.Address.Empty() || s.Order.CEP != "" {
		t.Error("decline must clear the delivery fields")
	}
}

func TestConfirmCityAcceptsShortYes(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.StateConfirmCity)
	s.Order.Address = model.Address{City: "São Paulo", Region: "SP"}

	eng.Advance(context.Background(), s, " S ")
	if s.State != model.StateAskStreet {
		t.Fatalf("state = %s, want ASK_STREET", s.State)
	}
}

func TestAskStreetKeepsResolvedOnEmpty(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.StateAskStreet)
	s.Order.Address.Street = "Praça da Sé"

	eng.Advance(context.Background(), s, "")
	if s.State != model.StateAskNumber {
		t.Fatalf("state = %s, want ASK_NUMBER", s.State)
	}
	if s.Order.Address.Street != "Praça da Sé" {
		t.Errorf("street = %q, want resolved value kept", s.Order.Address.Street)
	}
}

func TestAskStreetRepromptsWhenNothingResolved(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.StateAskStreet)

	reply := eng.Advance(context.Background(), s, "   ")
	if s.State != model.StateAskStreet {
		t.Fatalf("state = %s, want ASK_STREET (unchanged)", s.State)
	}
	if s.Order.Address.Street != "" {
		t.Errorf("street = %q, want still empty", s.Order.Address.Street)
	}
	if !strings.Contains(reply, "rua") {
		t.Errorf("reply %q does not re-ask for the street", reply)
	}
}

func TestAskStreetOverride(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.StateAskStreet)
	s.Order.Address.Street = "Praça da Sé"

	eng.Advance(context.Background(), s, "Rua Nova")
	if s.Order.Address.Street != "Rua Nova" {
		t.Errorf("street = %q, want user override", s.Order.Address.Street)
	}
}

func TestAskNumberSkipsDistrictWhenKnown(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.StateAskNumber)
	s.Order.Address = model.Address{Street: "Praça da Sé", District: "Sé", City: "São Paulo", Region: "SP"}

	reply := eng.Advance(context.Background(), s, "100")
	if s.State != model.StateConfirmAddress {
		t.Fatalf("state = %s, want CONFIRM_ADDRESS", s.State)
	}
	if s.Order.HouseNumber != "100" {
		t.Errorf("house number = %q, want 100", s.Order.HouseNumber)
	}
	if !strings.Contains(reply, "Está correto?") {
		t.Errorf("reply %q is not a confirmation prompt", reply)
	}
}

func TestAskNumberAsksDistrictWhenMissing(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.StateAskNumber)
	s.Order.Address = model.Address{Street: "Praça da Sé", City: "São Paulo", Region: "SP"}

	eng.Advance(context.Background(), s, "100")
	if s.State != model.StateAskDistrict {
		t.Fatalf("state = %s, want ASK_DISTRICT", s.State)
	}
}

func TestAskDistrictRejectsEmpty(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.StateAskDistrict)

	eng.Advance(context.Background(), s, "  ")
	if s.State != model.StateAskDistrict {
		t.Fatalf("state = %s, want ASK_DISTRICT (unchanged)", s.State)
	}

	eng.Advance(context.Background(), s, "Centro")
	if s.State != model.StateConfirmAddress {
		t.Fatalf("state = %s, want CONFIRM_ADDRESS", s.State)
	}
}

func fullOrderSession() *model.Session {
	s := sessionAt(model.StateConfirmAddress)
	s.Order = model.Order{
		Medicine:     "dipirona",
		PriceCents:   1290,
		CustomerName: "Maria Silva",
		CPF:          validCPF,
		Phone:        "11933334444",
		CEP:          "01001000",
		Address:      model.Address{Street: "Praça da Sé", District: "Sé", City: "São Paulo", Region: "SP"},
		HouseNumber:  "100",
	}
	return s
}

func TestConfirmAddressCompletesOrder(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := fullOrderSession()

	reply := eng.Advance(context.Background(), s, "sim")
	if s.State != model.StateEnd {
		t.Fatalf("state = %s, want END", s.State)
	}
	if s.Order.OrderID == "" || s.Order.CreatedAt == nil {
		t.Fatal("confirmed order must carry ID and timestamp")
	}
	if !strings.HasPrefix(s.Order.OrderID, "FARMA-") {
		t.Errorf("order ID %q has wrong prefix", s.Order.OrderID)
	}
	if !strings.Contains(reply, s.Order.OrderID) {
		t.Errorf("reply %q does not contain the order ID", reply)
	}
	if !strings.Contains(reply, "Maria Silva") || !strings.Contains(reply, "dipirona") {
		t.Errorf("reply %q is not a full receipt", reply)
	}
}

func TestConfirmAddressDecline(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := fullOrderSession()

	eng.Advance(context.Background(), s, "nao")
	if s.State != model.StateAskPostal {
		t.Fatalf("state = %s, want ASK_POSTAL", s.State)
	}
	if s.Order.OrderID != "" || s.Order.CreatedAt != nil {
		t.Error("declined order must not get an ID")
	}
	if !s.Order.Address.Empty() {
		t.Error("decline must clear the resolved address")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := fullOrderSession()
	eng.Advance(context.Background(), s, "sim")
	orderID := s.Order.OrderID
	created := *s.Order.CreatedAt

	first := eng.Advance(context.Background(), s, "oi de novo")
	second := eng.Advance(context.Background(), s, "mais uma")
	if first != second || first != replyFinished {
		t.Errorf("END replies differ: %q vs %q", first, second)
	}
	if s.State != model.StateEnd {
		t.Fatalf("state = %s, want END", s.State)
	}
	if s.Order.OrderID != orderID || !s.Order.CreatedAt.Equal(created) {
		t.Error("END handler must not mutate the order")
	}
}

func TestUnknownStateResets(t *testing.T) {
	eng := newEngine(&fakeResolver{})
	s := sessionAt(model.State("GARBAGE"))
	s.Order.Medicine = "dipirona"

	eng.Advance(context.Background(), s, "oi")
	if s.State != model.StateInit {
		t.Fatalf("state = %s, want INIT", s.State)
	}
	if s.Order.Medicine != "" {
		t.Error("reset must drop the stale order")
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	eng := newEngine(&fakeResolver{panic: true})
	s := sessionAt(model.StateResolveAddress)
	s.Order.CEP = "01001000"

	reply := eng.Advance(context.Background(), s, "")
	if s.State != model.StateInit {
		t.Fatalf("state = %s, want INIT after panic", s.State)
	}
	if !strings.Contains(reply, "Desculpe") {
		t.Errorf("reply %q is not the apology prompt", reply)
	}
}

func TestNewOrderIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewOrderID(time.Now())
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate order ID %s", id)
		}
		seen[id] = struct{}{}
	}
}
