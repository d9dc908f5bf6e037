// Package auth guards the admin endpoints with bearer tokens. Tokens are
// configured as bcrypt hashes and mapped to roles; casbin decides what each
// role may do.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Objects and actions checked by the admin endpoints.
const (
	ObjCache    = "cache"
	ObjSchedule = "schedule"
	ActRead     = "read"
	ActWrite    = "write"
)

// expiryLayout has no colons so it fits in a token entry.
const expiryLayout = "20060102T150405Z"

// Uncached tokens cost one bcrypt comparison per configured token, so
// their verification is rate limited.
const (
	verifyRate  = rate.Limit(5)
	verifyBurst = 10
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrTooManyAttempts = errors.New("too many token verification attempts")
)

// Token is one configured API credential.
type Token struct {
	Name      string
	Role      string
	Hash      []byte
	ExpiresAt *time.Time
}

// Entry renders t in the format ParseTokens reads.
func (t Token) Entry() string {
	e := t.Name + ":" + t.Role + ":" + string(t.Hash)
	if t.ExpiresAt != nil {
		e += ":" + t.ExpiresAt.UTC().Format(expiryLayout)
	}
	return e
}

// ParseTokens reads comma separated "name:role:bcrypt-hash[:expiry]"
// entries, as produced by `kwhmedio token new`.
func ParseTokens(raw string) ([]Token, error) {
	var tokens []Token
	seen := map[string]bool{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("token entry %q: want name:role:hash[:expiry]", entry)
		}
		t := Token{Name: parts[0], Role: parts[1], Hash: []byte(parts[2])}
		if err := validName(t.Name); err != nil {
			return nil, fmt.Errorf("token entry %q: %w", entry, err)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("token %q configured twice", t.Name)
		}
		seen[t.Name] = true
		if !validRole(t.Role) {
			return nil, fmt.Errorf("token %q: unknown role %q", t.Name, t.Role)
		}
		if _, err := bcrypt.Cost(t.Hash); err != nil {
			return nil, fmt.Errorf("token %q: %w", t.Name, err)
		}
		if len(parts) == 4 {
			exp, err := time.Parse(expiryLayout, parts[3])
			if err != nil {
				return nil, fmt.Errorf("token %q: invalid expiry: %w", t.Name, err)
			}
			t.ExpiresAt = &exp
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// validName rejects names that would collide with the entry format or with
// a role name.
func validName(name string) error {
	if name == "" || strings.ContainsAny(name, ":,") || validRole(name) {
		return fmt.Errorf("invalid token name %q", name)
	}
	return nil
}

// subject is the casbin subject of a token, kept apart from role names.
func subject(name string) string {
	return "token:" + name
}

func validRole(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	}
	return false
}

// NewToken generates a raw bearer token for name and the Token to configure
// on the server. The raw value is shown once and never stored.
func NewToken(name, role string, expiresAt *time.Time) (Token, string, error) {
	if err := validName(name); err != nil {
		return Token{}, "", err
	}
	if !validRole(role) {
		return Token{}, "", fmt.Errorf("unknown role %q", role)
	}
	raw := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return Token{}, "", err
	}
	return Token{Name: name, Role: role, Hash: hash, ExpiresAt: expiresAt}, raw, nil
}

type Service struct {
	tokens   []Token
	enforcer *casbin.Enforcer
	now      func() time.Time
	limiter  *rate.Limiter

	// sha256 of raw tokens already checked against bcrypt
	verified sync.Map
}

func NewService(tokens []Token) (*Service, error) {
	m, err := model.NewModelFromString(`
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	policies := [][]string{
		{RoleAdmin, "*", "*"},
		{RoleOperator, ObjCache, ActWrite},
		{RoleOperator, ObjSchedule, ActRead},
		{RoleOperator, ObjSchedule, ActWrite},
		{RoleViewer, ObjSchedule, ActRead},
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, err
		}
	}
	for _, t := range tokens {
		if _, err := e.AddGroupingPolicy(subject(t.Name), t.Role); err != nil {
			return nil, err
		}
	}

	return &Service{
		tokens:   tokens,
		enforcer: e,
		now:      time.Now,
		limiter:  rate.NewLimiter(verifyRate, verifyBurst),
	}, nil
}

// Enabled reports whether any token is configured.
func (s *Service) Enabled() bool {
	return s != nil && len(s.tokens) > 0
}

// Authenticate finds the token whose hash matches raw. Tokens not seen
// before fail with ErrTooManyAttempts once the verification budget is spent.
func (s *Service) Authenticate(raw string) (*Token, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	sum := sha256.Sum256([]byte(raw))
	key := hex.EncodeToString(sum[:])

	if v, ok := s.verified.Load(key); ok {
		return s.checkExpiry(v.(*Token))
	}
	if !s.limiter.Allow() {
		return nil, ErrTooManyAttempts
	}
	for i := range s.tokens {
		t := &s.tokens[i]
		if bcrypt.CompareHashAndPassword(t.Hash, []byte(raw)) == nil {
			s.verified.Store(key, t)
			return s.checkExpiry(t)
		}
	}
	return nil, ErrInvalidToken
}

func (s *Service) checkExpiry(t *Token) (*Token, error) {
	if t.ExpiresAt != nil && !s.now().Before(*t.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return t, nil
}

// Enforce reports whether the token called name may perform act on obj.
func (s *Service) Enforce(name, obj, act string) (bool, error) {
	return s.enforcer.Enforce(subject(name), obj, act)
}
