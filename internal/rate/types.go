package rate

import "time"

// Window represents a provider rate-limit bucket.
type Window int

const (
	Minute Window = iota
	Hour
	Day
)

func (w Window) String() string {
	switch w {
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	default:
		return "unknown"
	}
}

func (w Window) Duration() time.Duration {
	switch w {
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Headers names the response headers a provider reports its budget in.
// Limit and Remaining apply to Window. An empty name disables that header.
type Headers struct {
	Window     Window
	Limit      string
	Remaining  string
	RetryAfter string
	Reset      string
}

// StandardHeaders returns the X-RateLimit-* mapping for the given window.
func StandardHeaders(window Window) Headers {
	return Headers{
		Window:     window,
		Limit:      "X-RateLimit-Limit",
		Remaining:  "X-RateLimit-Remaining",
		RetryAfter: "Retry-After",
		Reset:      "X-RateLimit-Reset",
	}
}

// Declaration is an immutable description of a provider's request budget.
// Builder methods return modified copies.
type Declaration struct {
	provider    string
	limits      map[Window]int
	budgetFloor map[Window]int
	headers     Headers
}

// Provider creates a new declaration for a provider.
func Provider(name string) Declaration {
	return Declaration{provider: name}
}

func (d Declaration) ProviderName() string {
	return d.provider
}

func (d Declaration) MaxRequestsPer(window Window, limit int) Declaration {
	limits := make(map[Window]int, len(d.limits)+1)
	for w, l := range d.limits {
		limits[w] = l
	}
	limits[window] = limit
	d.limits = limits
	return d
}

func (d Declaration) BudgetFloor(window Window, floor int) Declaration {
	floors := make(map[Window]int, len(d.budgetFloor)+1)
	for w, f := range d.budgetFloor {
		floors[w] = f
	}
	floors[window] = floor
	d.budgetFloor = floors
	return d
}

func (d Declaration) ReadHeaders(headers Headers) Declaration {
	d.headers = headers
	return d
}

func (d Declaration) Limits() map[Window]int {
	return d.limits
}

func (d Declaration) BudgetFloors() map[Window]int {
	return d.budgetFloor
}

func (d Declaration) Headers() Headers {
	return d.headers
}

func (d Declaration) HasLimits() bool {
	return len(d.limits) > 0
}
