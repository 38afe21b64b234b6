// Package syncproto decodes the sync downstream wire messages spec §6
// names: two-element `[type, payload]` tuples read off a websocket. Only
// the subset MutationTracker and the rest of the core actually consume is
// modeled (`connected`, `pokeStart`/`pokePart`/`pokeEnd`, `pushResponse`,
// `error`).
//
// Grounded on internal/ast's own tagged-union JSON decoding
// (`UnmarshalCondition`, `Query.UnmarshalJSON`): the same json.RawMessage
// envelope-then-dispatch idiom, applied here to a `[tag, body]` array
// instead of a `{type: "..."}` object, since that's the wire shape spec §6
// actually documents.
package syncproto

import "encoding/json"

// Kind discriminates the downstream message tuple's first element.
type Kind string

const (
	KindConnected    Kind = "connected"
	KindPokeStart    Kind = "pokeStart"
	KindPokePart     Kind = "pokePart"
	KindPokeEnd      Kind = "pokeEnd"
	KindPushResponse Kind = "pushResponse"
	KindError        Kind = "error"
)

// Connected is the payload of a `connected` message.
type Connected struct {
	WSID string `json:"wsid"`
}

// PokeStart begins an incremental state update.
type PokeStart struct {
	PokeID     string          `json:"pokeID"`
	BaseCookie json.RawMessage `json:"baseCookie,omitempty"`
}

// PokePart carries one chunk of a poke's patch, optionally including a
// queries patch and last-mutation-ID advances.
type PokePart struct {
	PokeID                string            `json:"pokeID"`
	GotQueriesPatch       json.RawMessage   `json:"gotQueriesPatch,omitempty"`
	LastMutationIDChanges map[string]uint64 `json:"lastMutationIDChanges,omitempty"`
}

// PokeEnd closes out a poke.
type PokeEnd struct {
	PokeID string          `json:"pokeID"`
	Cookie json.RawMessage `json:"cookie,omitempty"`
}

// MutationError is one mutation result's error payload (spec §6 "Mutation
// wire codes"): kind is one of app, alreadyProcessed, oooMutation, or an
// unrecognized code preserved verbatim.
type MutationError struct {
	Kind    string          `json:"kind"`
	Message string          `json:"message,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// MutationResult is one entry of a successful pushResponse's mutations
// list. Error is nil for a plain success.
type MutationResult struct {
	ID    uint64         `json:"id"`
	Error *MutationError `json:"error,omitempty"`
}

// PushError is a pushResponse's top-level fatal (unsupportedPushVersion,
// unsupportedSchemaVersion, http, zeroPusher).
type PushError struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

// PushResponse is a pushResponse message's payload: either a per-mutation
// result list, or a top-level Error for a fatal push-level failure.
type PushResponse struct {
	ClientID  string           `json:"clientID"`
	Mutations []MutationResult `json:"mutations,omitempty"`
	Error     *PushError       `json:"error,omitempty"`
}

// ErrorMessage is a standalone `error` message, unrelated to a specific
// push (connection-level or protocol-level failures).
type ErrorMessage struct {
	Kind        string          `json:"kind"`
	Origin      string          `json:"origin"`
	Reason      string          `json:"reason"`
	Message     string          `json:"message"`
	Details     json.RawMessage `json:"details,omitempty"`
	MutationIDs []uint64        `json:"mutationIDs,omitempty"`
}
