package syncproto

import (
	"encoding/json"
	"fmt"
)

// Envelope is a decoded downstream message: Kind names which of the typed
// fields is populated.
type Envelope struct {
	Kind Kind

	Connected    *Connected
	PokeStart    *PokeStart
	PokePart     *PokePart
	PokeEnd      *PokeEnd
	PushResponse *PushResponse
	Error        *ErrorMessage
}

// Decode parses one `[type, payload]` downstream message tuple.
func Decode(data []byte) (*Envelope, error) {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return nil, fmt.Errorf("syncproto: malformed message: %w", err)
	}
	if len(tuple) != 2 {
		return nil, fmt.Errorf("syncproto: expected a [type, payload] tuple, got %d elements", len(tuple))
	}
	var kind string
	if err := json.Unmarshal(tuple[0], &kind); err != nil {
		return nil, fmt.Errorf("syncproto: message type: %w", err)
	}

	env := &Envelope{Kind: Kind(kind)}
	var err error
	switch env.Kind {
	case KindConnected:
		env.Connected = &Connected{}
		err = json.Unmarshal(tuple[1], env.Connected)
	case KindPokeStart:
		env.PokeStart = &PokeStart{}
		err = json.Unmarshal(tuple[1], env.PokeStart)
	case KindPokePart:
		env.PokePart = &PokePart{}
		err = json.Unmarshal(tuple[1], env.PokePart)
	case KindPokeEnd:
		env.PokeEnd = &PokeEnd{}
		err = json.Unmarshal(tuple[1], env.PokeEnd)
	case KindPushResponse:
		env.PushResponse = &PushResponse{}
		err = json.Unmarshal(tuple[1], env.PushResponse)
	case KindError:
		env.Error = &ErrorMessage{}
		err = json.Unmarshal(tuple[1], env.Error)
	default:
		return nil, fmt.Errorf("syncproto: unknown message type %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("syncproto: decoding %q payload: %w", kind, err)
	}
	return env, nil
}
