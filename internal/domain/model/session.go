package model

// State names one step of the intake dialogue. It decides which handler
// processes the next user message. The set is closed; anything else is
// treated as a corrupted session and reset to StateInit.
type State string

const (
	StateInit           State = "INIT"
	StateAskMedicine    State = "ASK_MEDICINE"
	StateAskName        State = "ASK_NAME"
	StateAskID          State = "ASK_ID"
	StateAskPhone       State = "ASK_PHONE"
	StateAskPostal      State = "ASK_POSTAL"
	StateResolveAddress State = "RESOLVE_ADDRESS"
	StateConfirmCity    State = "CONFIRM_CITY"
	StateAskStreet      State = "ASK_STREET"
	StateAskNumber      State = "ASK_NUMBER"
	StateAskDistrict    State = "ASK_DISTRICT"
	StateConfirmAddress State = "CONFIRM_ADDRESS"
	StateEnd            State = "END"
)

// Terminal reports whether the dialogue is finished.
func (s State) Terminal() bool { return s == StateEnd }

// Session is one user's in-progress conversation. It is created and
// owned by the session store; handlers mutate it in place and the
// caller persists it after every turn.
type Session struct {
	ID    string `json:"id"`
	State State  `json:"state"`
	Order Order  `json:"order"`
}

// NewSession returns a fresh session at the initial state.
func NewSession(id string) *Session {
	return &Session{ID: id, State: StateInit}
}
