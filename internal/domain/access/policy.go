package access

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"gallery-app/internal/apperr"
)

const modelConf = `
[request_definition]
r = sub, act, uid, owner, vis

[policy_definition]
p = sub, act, scope

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act && (p.scope == "any" || (p.scope == "own" && r.uid != "" && r.uid == r.owner) || (p.scope == "public" && r.vis == "public"))
`

// Scopes: "any" grants on every resource, "own" only where the caller owns
// the resource, "public" only on publicly visible resources.
var defaultRules = [][]string{
	{"anonymous", string(ActionReadArtwork), "public"},

	{"user", string(ActionReadArtwork), "any"},
	{"user", string(ActionCreateOrder), "own"},
	{"user", string(ActionReadOrder), "own"},
	{"user", string(ActionListOwnOrders), "own"},
	{"user", string(ActionCancelOrder), "own"},
	{"user", string(ActionPayOrder), "own"},
}

// Gate decides allow/deny for (caller, action, resource).
type Gate struct {
	enforcer *casbin.SyncedEnforcer
}

func NewGate() (*Gate, error) {
	m, err := model.NewModelFromString(modelConf)
	if err != nil {
		return nil, fmt.Errorf("access model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("access enforcer: %w", err)
	}

	rules := append([][]string{}, defaultRules...)
	for _, a := range Actions {
		rules = append(rules, []string{"admin", string(a), "any"})
	}
	if _, err := e.AddPolicies(rules); err != nil {
		return nil, fmt.Errorf("access policies: %w", err)
	}
	return &Gate{enforcer: e}, nil
}

// MustNewGate panics if the built-in policy cannot be loaded.
func MustNewGate() *Gate {
	g, err := NewGate()
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Gate) Allowed(c Caller, act Action, res Resource) (bool, error) {
	vis := "private"
	if res.Public {
		vis = "public"
	}
	return g.enforcer.Enforce(c.subject(), string(act), c.UserID, res.OwnerID, vis)
}

// Authorize returns nil on allow and a Forbidden error on deny.
func (g *Gate) Authorize(c Caller, act Action, res Resource) error {
	ok, err := g.Allowed(c, act, res)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.Forbidden("%s is not permitted", act)
	}
	return nil
}

// AuthorizeVisible is Authorize for reads of a specific record: a denial is
// reported as NotFound so callers learn nothing about records they may not see.
func (g *Gate) AuthorizeVisible(c Caller, act Action, res Resource, kind, id string) error {
	ok, err := g.Allowed(c, act, res)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.NotFound(kind, id)
	}
	return nil
}
