package node

// Tier identifies which source supplied a resolved input value.
type Tier int

const (
	// TierDefault means no source had a value and the caller's default was used.
	TierDefault Tier = iota
	TierConnection
	TierStatic
	TierMetadata
)

func (t Tier) String() string {
	switch t {
	case TierConnection:
		return "connection"
	case TierStatic:
		return "static"
	case TierMetadata:
		return "metadata"
	default:
		return "default"
	}
}

// Candidate is one tier's offer for an input value. OK is false when the
// source has no entry at all; a present nil value is still an offer.
type Candidate struct {
	Value any
	OK    bool
}

// Resolution is the outcome of ResolveInput.
type Resolution struct {
	Value any
	Tier  Tier
}

// UsedDefault reports whether every source missed.
func (r Resolution) UsedDefault() bool { return r.Tier == TierDefault }

// ResolveInput applies the input precedence: live upstream output, then the
// node's static input, then metadata, then def. Static and metadata values are
// template-resolved against vars; upstream values are passed through as-is.
func ResolveInput(upstream, static, metadata Candidate, def any, vars map[string]any) Resolution {
	if upstream.OK {
		return Resolution{Value: upstream.Value, Tier: TierConnection}
	}
	if static.OK {
		return Resolution{Value: ResolveTemplate(static.Value, vars), Tier: TierStatic}
	}
	if metadata.OK {
		return Resolution{Value: ResolveTemplate(metadata.Value, vars), Tier: TierMetadata}
	}
	return Resolution{Value: def, Tier: TierDefault}
}
