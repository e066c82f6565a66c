/*
codec.go - Draft snapshot serialization

PURPOSE:
  PolicyDraft carries the branch payload behind the BranchData interface,
  so a plain JSON round-trip cannot rebuild the concrete type. The codec
  wraps the draft in an envelope that records the branch tag next to its
  raw payload and rebuilds it through the dispatch table on decode.

  Both draft stores (memory and SQLite) serialize through this codec, so
  a restored draft is always a true copy of what was saved.
*/
package branch

import (
	"github.com/goccy/go-json"

	"github.com/warp/issuance-engine/wizard"
)

// Codec implements wizard.DraftCodec over the branch dispatch table.
type Codec struct{}

func NewCodec() Codec { return Codec{} }

type envelope struct {
	Draft      *wizard.PolicyDraft `json:"draft"`
	BranchKind string              `json:"branch_kind,omitempty"`
	Branch     json.RawMessage     `json:"branch,omitempty"`
}

func (Codec) Encode(d *wizard.PolicyDraft) ([]byte, error) {
	env := envelope{Draft: d}
	if d.Branch != nil {
		raw, err := json.Marshal(d.Branch)
		if err != nil {
			return nil, err
		}
		env.BranchKind = d.Branch.BranchKind()
		env.Branch = raw
	}
	return json.Marshal(env)
}

func (Codec) Decode(data []byte) (*wizard.PolicyDraft, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Draft == nil {
		env.Draft = &wizard.PolicyDraft{}
	}
	if env.BranchKind != "" {
		payload, err := Decode(env.BranchKind, env.Branch)
		if err != nil {
			return nil, err
		}
		env.Draft.Branch = payload
	}
	return env.Draft, nil
}
