package mutation

import (
	"encoding/json"

	"github.com/syncbase/ivmcore/internal/syncproto"
)

// ProcessPushResponse handles one decoded pushResponse message (spec
// §4.5). A top-level Error is a push-level fatal (unsupportedPushVersion,
// unsupportedSchemaVersion, http, zeroPusher): it settles nothing itself,
// it only reports through OnFatal — a mutation only actually settles
// through a per-mutation error here, or later through LmidAdvanced once
// the server's poke stream confirms persistence. A plain per-mutation
// success (no Error) is likewise left outstanding for LmidAdvanced; only
// alreadyProcessed/app/oooMutation/unknown settle immediately, since those
// are already terminal regardless of lmid.
func (t *MutationTracker) ProcessPushResponse(body syncproto.PushResponse) {
	if body.Error != nil {
		if t.OnFatal != nil {
			t.OnFatal(&ProtocolError{Code: body.Error.Kind, Message: body.Error.Message})
		}
		return
	}
	for _, m := range body.Mutations {
		t.processMutationResult(m)
	}
}

func (t *MutationTracker) processMutationResult(m syncproto.MutationResult) {
	t.mu.Lock()
	eph, ok := t.byMutation[m.ID]
	t.mu.Unlock()
	if !ok || m.Error == nil {
		return
	}

	var fatal error
	var outcome Outcome
	switch m.Error.Kind {
	case "alreadyProcessed":
		outcome = Outcome{Ephemeral: eph}
	case "app":
		outcome = Outcome{Ephemeral: eph, Err: &AppError{Message: m.Error.Message, Details: decodeDetails(m.Error.Details)}}
	case "oooMutation":
		fatal = &OutOfOrderError{Message: m.Error.Message}
		outcome = Outcome{Ephemeral: eph, Err: fatal}
	default:
		fatal = &ProtocolError{Code: m.Error.Kind, Message: m.Error.Message}
		outcome = Outcome{Ephemeral: eph, Err: fatal}
	}

	t.mu.Lock()
	t.settleLocked(eph, outcome)
	t.mu.Unlock()

	if fatal != nil && t.OnFatal != nil {
		t.OnFatal(fatal)
	}
}

func decodeDetails(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
