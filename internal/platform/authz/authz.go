package authz

import (
	"fmt"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/sirupsen/logrus"

	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
)

// Relation は操作者とチェックイン対象者の関係です。
type Relation string

const (
	RelationSelf    Relation = "self"
	RelationManager Relation = "manager"
	RelationAdmin   Relation = "admin"
)

const modelText = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch(r.obj, p.obj)
`

// DefaultPolicy は設定でポリシーが与えられない場合の既定です。
var DefaultPolicy = []string{
	"p, self, employee",
	"p, manager, manager",
	"p, manager, official",
	"p, admin, *",
}

// Actor は認証済みの操作者です。Reports は直属の部下のチームメイト ID です。
type Actor struct {
	ID      string
	Admin   bool
	Reports []string
}

// Service は関係とフィールド群の対応表で権限を判定します。
type Service struct {
	enforcer *casbin.Enforcer
	logger   logrus.FieldLogger
	mu       sync.RWMutex
}

// NewService はポリシー行から Service を生成します。policy が空なら DefaultPolicy を使います。
func NewService(policy []string, logger logrus.FieldLogger) (*Service, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if len(policy) == 0 {
		policy = DefaultPolicy
	}

	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("authz: parse model: %w", err)
	}
	enf, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: failed to initialize enforcer: %w", err)
	}

	for _, line := range policy {
		rule, err := parsePolicyLine(line)
		if err != nil {
			return nil, err
		}
		if _, err := enf.AddPolicy(rule); err != nil {
			return nil, fmt.Errorf("authz: add policy %q: %w", line, err)
		}
	}

	return &Service{enforcer: enf, logger: logger.WithField("component", "authz")}, nil
}

func parsePolicyLine(line string) ([]string, error) {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) != 3 || parts[0] != "p" || parts[1] == "" || parts[2] == "" {
		return nil, fmt.Errorf("authz: invalid policy line %q", line)
	}
	switch Relation(parts[1]) {
	case RelationSelf, RelationManager, RelationAdmin:
	default:
		return nil, fmt.Errorf("authz: unknown relation %q", parts[1])
	}
	return parts[1:], nil
}

// For は操作者に束縛された checkin.Authorizer を返します。
func (s *Service) For(actor Actor) *Context {
	reports := make(map[string]struct{}, len(actor.Reports))
	for _, id := range actor.Reports {
		if id = strings.TrimSpace(id); id != "" {
			reports[id] = struct{}{}
		}
	}
	return &Context{service: s, actor: actor, reports: reports}
}

func (s *Service) allowed(rel Relation, group checkin.FieldGroup) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ok, err := s.enforcer.Enforce(string(rel), string(group))
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"relation": rel,
			"group":    group,
		}).Warn("authz: enforce failed")
		return false
	}
	return ok
}

// Context は 1 リクエスト分の権限判定です。
type Context struct {
	service *Service
	actor   Actor
	reports map[string]struct{}
}

var _ checkin.Authorizer = (*Context)(nil)

// Relations は対象チームメイトに対する操作者の関係を返します。
func (c *Context) Relations(teammateID string) []Relation {
	var rels []Relation
	if c.actor.Admin {
		rels = append(rels, RelationAdmin)
	}
	if c.actor.ID != "" && c.actor.ID == teammateID {
		rels = append(rels, RelationSelf)
	}
	if _, ok := c.reports[teammateID]; ok {
		rels = append(rels, RelationManager)
	}
	return rels
}

// Can はいずれかの関係がフィールド群を許可していれば true を返します。
func (c *Context) Can(group checkin.FieldGroup, checkIn *checkin.CheckIn) bool {
	if checkIn == nil {
		return false
	}
	for _, rel := range c.Relations(checkIn.TeammateID) {
		if c.service.allowed(rel, group) {
			return true
		}
	}
	return false
}

// ActorID は操作者の ID を返します。
func (c *Context) ActorID() string {
	return c.actor.ID
}
