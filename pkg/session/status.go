package session

// OutcomeKind enumerates the results the validator can hand to the assembler
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeDenied
	OutcomeFailure
)

// Outcome is the validator's decision for one request
type Outcome struct {
	Kind     OutcomeKind
	Reason   Reason
	Facts    AuthorizationFacts
	Degraded bool
}

// Success builds a successful outcome
func Success(facts AuthorizationFacts, degraded bool) Outcome {
	return Outcome{Kind: OutcomeSuccess, Facts: facts, Degraded: degraded}
}

// Deny builds an outcome for a principal that is known but not authorized
func Deny(reason Reason) Outcome {
	return Outcome{Kind: OutcomeDenied, Reason: reason}
}

// Fail builds an outcome for a validation that could not establish identity
func Fail(reason Reason) Outcome {
	return Outcome{Kind: OutcomeFailure, Reason: reason}
}

// Assemble converts an outcome into the normalized AuthStatus. It never copies
// access or refresh tokens into the result.
func Assemble(rec *CredentialRecord, o Outcome) AuthStatus {
	switch o.Kind {
	case OutcomeSuccess:
		if rec == nil {
			return AuthStatus{Reason: ReasonUnexpectedError}
		}
		return AuthStatus{
			Authenticated: true,
			User:          publicPrincipal(rec, o.Facts),
			Degraded:      o.Degraded,
		}
	case OutcomeDenied, OutcomeFailure:
		reason := o.Reason
		if reason == "" {
			reason = ReasonUnexpectedError
		}
		return AuthStatus{Reason: reason}
	default:
		return AuthStatus{Reason: ReasonUnexpectedError}
	}
}

func publicPrincipal(rec *CredentialRecord, facts AuthorizationFacts) *Principal {
	p := &Principal{
		ID:          rec.ID,
		Provider:    rec.Provider,
		Username:    rec.DisplayName,
		Avatar:      rec.AvatarRef,
		Email:       rec.Email,
		Handle:      rec.Handle,
		Guild:       facts.GuildID,
		HasRole:     facts.HasRole,
		Roles:       append([]string(nil), facts.Roles...),
		Groups:      append([]string(nil), facts.Groups...),
		GroupAccess: facts.GroupAccess,
	}
	if p.Username == "" {
		p.Username = rec.Handle
	}
	if p.Avatar == "" && rec.Provider == ProviderGoogle {
		p.Avatar = FallbackAvatar(p.Username)
	}
	if !rec.ExpiresAt.IsZero() {
		ms := rec.ExpiresAt.UnixMilli()
		p.ExpiresAt = &ms
	}
	return p
}
