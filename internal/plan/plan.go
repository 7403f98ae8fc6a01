package plan

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Tier is the runtime entitlement level that daily limits are keyed on.
// It is deliberately separate from Code (the purchasable product): call
// sites must go through the catalog mapping, never infer one from the other.
type Tier string

const (
	TierFree  Tier = "free"
	TierLite  Tier = "lite"
	TierPro   Tier = "pro"
	TierPlus  Tier = "plus"
	TierUltra Tier = "ultra"
)

// Code identifies a purchasable plan.
type Code string

const (
	CodeLiteDay    Code = "LITE_DAY"
	CodeProWeek    Code = "PRO_WEEK"
	CodePlusMonth  Code = "PLUS_MONTH"
	CodeUltraMonth Code = "ULTRA_MONTH"
	CodeFirst100   Code = "FIRST100"
)

// Plan is one catalog entry. BuyerCap > 0 marks a scarcity-gated offer;
// once the cap is exhausted, payments for it are credited as FallbackCode.
type Plan struct {
	Code           Code
	Label          string
	Amount         int // KES
	DurationDays   int
	HoursPerDay    int
	SubjectsPerDay int
	Tier           Tier
	BuyerCap       int
	FallbackCode   Code
}

// Limits are the per-day allowances for a tier. Free users have no minute
// budget; their gate is the lifetime trial session pool.
type Limits struct {
	HoursPerDay        int
	SubjectsPerDay     int
	MarkingsPerDay     int
	TrialTotalSessions int
}

var tierLimits = map[Tier]Limits{
	TierFree:  {HoursPerDay: 0, SubjectsPerDay: 2, MarkingsPerDay: 1, TrialTotalSessions: 2},
	TierLite:  {HoursPerDay: 2, SubjectsPerDay: 2, MarkingsPerDay: 2},
	TierPro:   {HoursPerDay: 2, SubjectsPerDay: 2, MarkingsPerDay: 4},
	TierPlus:  {HoursPerDay: 5, SubjectsPerDay: 3, MarkingsPerDay: 6},
	TierUltra: {HoursPerDay: 8, SubjectsPerDay: 4, MarkingsPerDay: 10},
}

// LimitsFor returns the daily allowances for a tier. Unknown tiers fall
// back to free limits.
func LimitsFor(t Tier) Limits {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[TierFree]
}

// SessionMinutes is the fixed per-session minute allocation charged against
// a paid tier's daily budget. It is a tier property, never user input.
func SessionMinutes(t Tier) int {
	switch t {
	case TierPlus:
		return 100 // 5h/day across 3 subjects
	case TierUltra:
		return 120 // 8h/day across 4 subjects
	default:
		return 60
	}
}

// Catalog is the static, immutable set of purchasable plans.
type Catalog struct {
	plans map[Code]Plan
}

// ErrAmbiguousAmount is returned when two catalog plans share a price
// point; amount-matched payments would be unattributable.
var ErrAmbiguousAmount = errors.New("plan catalog: ambiguous amount")

// NewCatalog returns the production plan catalog.
func NewCatalog() *Catalog {
	c, err := NewCatalogWith(
		Plan{Code: CodeLiteDay, Label: "Lite (Day)", Amount: 50, DurationDays: 1, HoursPerDay: 2, SubjectsPerDay: 2, Tier: TierLite},
		Plan{Code: CodeProWeek, Label: "Pro (Week)", Amount: 300, DurationDays: 7, HoursPerDay: 2, SubjectsPerDay: 2, Tier: TierPro},
		Plan{Code: CodePlusMonth, Label: "Plus (Month)", Amount: 1750, DurationDays: 30, HoursPerDay: 5, SubjectsPerDay: 3, Tier: TierPlus},
		Plan{Code: CodeUltraMonth, Label: "Ultra Plus (Month)", Amount: 2500, DurationDays: 30, HoursPerDay: 8, SubjectsPerDay: 4, Tier: TierUltra},
		Plan{Code: CodeFirst100, Label: "Founder Deal (2 mo)", Amount: 1500, DurationDays: 60, HoursPerDay: 5, SubjectsPerDay: 2, Tier: TierPlus, BuyerCap: 100, FallbackCode: CodePlusMonth},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalogWith builds a catalog from explicit plans and rejects
// duplicate price points up front.
func NewCatalogWith(plans ...Plan) (*Catalog, error) {
	byCode := make(map[Code]Plan, len(plans))
	byAmount := make(map[int]Code, len(plans))
	for _, p := range plans {
		if prev, ok := byAmount[p.Amount]; ok {
			return nil, errors.Join(ErrAmbiguousAmount, errors.New(string(prev)+" vs "+string(p.Code)))
		}
		byAmount[p.Amount] = p.Code
		byCode[p.Code] = p
	}
	return &Catalog{plans: byCode}, nil
}

// ByCode looks up a plan by its code (case-insensitive).
func (c *Catalog) ByCode(code string) (Plan, bool) {
	p, ok := c.plans[Code(strings.ToUpper(strings.TrimSpace(code)))]
	return p, ok
}

// ByAmount looks up a plan by its exact price. A miss means the payment
// must be recorded unmatched, not guessed at.
func (c *Catalog) ByAmount(amount int) (Plan, bool) {
	for _, p := range c.plans {
		if p.Amount == amount {
			return p, true
		}
	}
	return Plan{}, false
}

// All returns every catalog plan.
func (c *Catalog) All() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	return out
}

// ResolveTier derives the effective tier from a stored plan code and
// expiry. Expired or absent plans silently resolve to free. Callers must
// resolve fresh on every check; plans expire mid-session.
func (c *Catalog) ResolveTier(planCode string, expiresAt *time.Time, now time.Time) Tier {
	if planCode == "" {
		return TierFree
	}
	if expiresAt != nil && expiresAt.Before(now) {
		return TierFree
	}
	p, ok := c.ByCode(planCode)
	if !ok {
		return TierFree
	}
	return p.Tier
}

// NormalizeAmount parses gateway amount fields like "2999", "2,999.00" or
// "KES 1 750" into whole KES. Returns false when nothing numeric remains.
func NormalizeAmount(raw string) (int, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return int(math.Round(f)), true
}
