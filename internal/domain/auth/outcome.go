package auth

// OutcomeKind tags the result of running one strategy or a whole chain.
type OutcomeKind int

const (
	// OutcomeFailure means no identity was resolved and no redirect was issued.
	OutcomeFailure OutcomeKind = iota
	// OutcomeSuccess means an identity was resolved.
	OutcomeSuccess
	// OutcomeRedirect means the caller must be sent elsewhere; no identity is cached.
	OutcomeRedirect
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRedirect:
		return "redirect"
	default:
		return "failure"
	}
}

// Outcome is a tagged result: exactly one of Success(identity), Redirect(directive) or Failure.
// The zero value is Failure.
type Outcome struct {
	kind     OutcomeKind
	identity Identity
	redirect RedirectDirective
}

// Success resolves id. A zero identity degrades to Failure so that empty results never win the chain.
func Success(id Identity) Outcome {
	if id.IsZero() {
		return Failure()
	}
	return Outcome{kind: OutcomeSuccess, identity: id}
}

// Redirect carries d to the response layer.
func Redirect(d RedirectDirective) Outcome {
	return Outcome{kind: OutcomeRedirect, redirect: d}
}

// RedirectTo is shorthand for Redirect(NewRedirect(location, opts...)).
func RedirectTo(location string, opts ...RedirectOptions) Outcome {
	return Redirect(NewRedirect(location, opts...))
}

// Failure is the negative result.
func Failure() Outcome { return Outcome{} }

func (o Outcome) Kind() OutcomeKind { return o.kind }

func (o Outcome) IsSuccess() bool { return o.kind == OutcomeSuccess }

func (o Outcome) IsRedirect() bool { return o.kind == OutcomeRedirect }

func (o Outcome) IsFailure() bool { return o.kind == OutcomeFailure }

// Identity returns the resolved identity and true for Success outcomes.
func (o Outcome) Identity() (Identity, bool) {
	if o.kind != OutcomeSuccess {
		return Identity{}, false
	}
	return o.identity, true
}

// Redirect returns the directive and true for Redirect outcomes.
func (o Outcome) Redirect() (RedirectDirective, bool) {
	if o.kind != OutcomeRedirect {
		return RedirectDirective{}, false
	}
	return o.redirect, true
}
