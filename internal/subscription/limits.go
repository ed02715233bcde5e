package subscription

// Category is a subscription mode with its own admission limits.
type Category string

const (
	CategoryLTPC         Category = "ltpc"
	CategoryOptionGreeks Category = "option_greeks"
	CategoryFull         Category = "full"
	CategoryFullD30      Category = "full_d30"
)

// Categories lists every known category in a stable order.
var Categories = []Category{CategoryLTPC, CategoryOptionGreeks, CategoryFull, CategoryFullD30}

// Mode returns the wire identifier passed to the capacity reserver.
func (c Category) Mode() string { return string(c) }

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryLTPC, CategoryOptionGreeks, CategoryFull, CategoryFullD30:
		return true
	}
	return false
}

// UserType determines which categories a user may subscribe to and at
// what limits.
type UserType int

const (
	UserNormal UserType = iota
	UserPlus
)

func (t UserType) String() string {
	if t == UserPlus {
		return "plus"
	}
	return "normal"
}

// Limits holds the per-category caps. The individual limit applies while
// the category is the user's only active one; the combined limit applies
// to each category once two or more are active simultaneously.
type Limits struct {
	Individual int
	Combined   int
}

// Connection limits per user type.
const (
	NormalConnections = 2
	PlusConnections   = 5
)

var normalLimits = map[Category]Limits{
	CategoryLTPC:         {Individual: 5000, Combined: 2000},
	CategoryOptionGreeks: {Individual: 3000, Combined: 2000},
	CategoryFull:         {Individual: 2000, Combined: 1500},
}

var plusLimits = map[Category]Limits{
	CategoryLTPC:         {Individual: 5000, Combined: 2000},
	CategoryOptionGreeks: {Individual: 3000, Combined: 2000},
	CategoryFull:         {Individual: 2000, Combined: 1500},
	CategoryFullD30:      {Individual: 50, Combined: 1500},
}

func limitsFor(t UserType) map[Category]Limits {
	if t == UserPlus {
		return plusLimits
	}
	return normalLimits
}

// CategoryAvailable reports whether the category exists for the user type.
func CategoryAvailable(t UserType, c Category) bool {
	_, ok := limitsFor(t)[c]
	return ok
}

// LimitFor returns the caps for a user type and category. The second
// return is false when the category is not available for that type.
func LimitFor(t UserType, c Category) (Limits, bool) {
	l, ok := limitsFor(t)[c]
	return l, ok
}

// ConnectionLimit returns the max simultaneous connections per user type.
func ConnectionLimit(t UserType) int {
	if t == UserPlus {
		return PlusConnections
	}
	return NormalConnections
}
