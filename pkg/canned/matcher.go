package canned

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/harun/kodok/pkg/facts"
)

// CoordinateStore is the subset of the fact store used by coordinate rules.
type CoordinateStore interface {
	PutCoordinate(ctx context.Context, c facts.Coordinate) error
	DeleteCoordinate(ctx context.Context, name string) (bool, error)
	ListCoordinates(ctx context.Context) ([]facts.Coordinate, error)
}

// DefaultSpecialNames trigger the agreement reply when mentioned.
var DefaultSpecialNames = []string{
	"vincent", "sam", "dottore", "itha", "arle", "gabriel",
	"andrew", "kaito", "lucci", "botil", "reigen",
}

type Options struct {
	SpecialNames []string
	// Rand picks game moves and random replies. Defaults to a randomly seeded PCG.
	Rand Intner
}

// Intner is satisfied by *rand.Rand.
type Intner interface {
	IntN(n int) int
}

// Response is the reply produced by a matching rule.
type Response struct {
	Rule string
	Text string
}

type rule struct {
	name    string
	pattern *regexp.Regexp
	handle  func(ctx context.Context, groups []string) (string, error)
}

// Matcher evaluates the canned rules against inbound text.
type Matcher struct {
	coords CoordinateStore
	rules  []rule

	mu  sync.Mutex
	rng Intner
}

func NewMatcher(coords CoordinateStore, opts Options) *Matcher {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.SpecialNames == nil {
		opts.SpecialNames = DefaultSpecialNames
	}

	m := &Matcher{coords: coords, rng: opts.Rand}
	m.rules = []rule{
		{name: "coords_add", pattern: regexp.MustCompile(`^add (\w+) (-?\d+) (-?\d+) dong`), handle: m.addCoordinate},
		{name: "coords_delete", pattern: regexp.MustCompile(`^delete (\w+) pls`), handle: m.deleteCoordinate},
		{name: "coords_list", pattern: regexp.MustCompile(`^coords po o`), handle: m.listCoordinates},
		{name: "rps", pattern: regexp.MustCompile(`^i pick (rock|paper|scissors)`), handle: m.playRPS},
		{name: "compatibility", pattern: regexp.MustCompile(`^affakah saya cocok dengan (.+)`), handle: m.compatibility},
	}
	if p := specialNamePattern(opts.SpecialNames); p != nil {
		m.rules = append(m.rules, rule{name: "special_name", pattern: p, handle: constant("yayayayaya saya setuju")})
	}
	m.rules = append(m.rules, rule{name: "greeting", pattern: regexp.MustCompile(`metal kodok`), handle: constant("halo")})

	return m
}

// specialNamePattern matches any name anywhere in the text, inside longer
// words too.
func specialNamePattern(names []string) *regexp.Regexp {
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(strings.ToLower(n)); n != "" {
			quoted = append(quoted, regexp.QuoteMeta(n))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(` + strings.Join(quoted, "|") + `)`)
}

func constant(text string) func(context.Context, []string) (string, error) {
	return func(context.Context, []string) (string, error) { return text, nil }
}

// Match returns the reply of the first rule matching text, compared
// case-insensitively. ok is false when no rule matches.
func (m *Matcher) Match(ctx context.Context, text string) (resp Response, ok bool, err error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, r := range m.rules {
		groups := r.pattern.FindStringSubmatch(lower)
		if groups == nil {
			continue
		}
		reply, err := r.handle(ctx, groups)
		if err != nil {
			return Response{Rule: r.name}, true, fmt.Errorf("canned rule %s: %w", r.name, err)
		}
		return Response{Rule: r.name, Text: reply}, true, nil
	}
	return Response{}, false, nil
}

func (m *Matcher) addCoordinate(ctx context.Context, groups []string) (string, error) {
	x, err := strconv.Atoi(groups[2])
	if err != nil {
		return "", fmt.Errorf("invalid x %q: %w", groups[2], err)
	}
	z, err := strconv.Atoi(groups[3])
	if err != nil {
		return "", fmt.Errorf("invalid z %q: %w", groups[3], err)
	}
	if err := m.coords.PutCoordinate(ctx, facts.Coordinate{Name: groups[1], X: x, Z: z}); err != nil {
		return "", err
	}
	return fmt.Sprintf("ok siap, coordinate '%s' added: X=%d, Z=%d", groups[1], x, z), nil
}

func (m *Matcher) deleteCoordinate(ctx context.Context, groups []string) (string, error) {
	name := groups[1]
	deleted, err := m.coords.DeleteCoordinate(ctx, name)
	if err != nil {
		return "", err
	}
	if !deleted {
		return fmt.Sprintf("mana ada yang nama nya '%s'", name), nil
	}
	return fmt.Sprintf("Coordinate '%s' deleted. jahat nye..", name), nil
}

func (m *Matcher) listCoordinates(ctx context.Context, _ []string) (string, error) {
	coords, err := m.coords.ListCoordinates(ctx)
	if err != nil {
		return "", err
	}
	if len(coords) == 0 {
		return "masih ga ada coords bro??", nil
	}

	lines := make([]string, 0, len(coords))
	for _, c := range coords {
		lines = append(lines, fmt.Sprintf("%s: X=%d, Z=%d", c.Name, c.X, c.Z))
	}
	return "nyoh:\n" + strings.Join(lines, "\n\n"), nil
}

var rpsMoves = []string{"rock", "paper", "scissors"}

// beats maps a move to the move it defeats.
var beats = map[string]string{
	"rock":     "scissors",
	"paper":    "rock",
	"scissors": "paper",
}

func (m *Matcher) playRPS(_ context.Context, groups []string) (string, error) {
	user := groups[1]
	bot := rpsMoves[m.intN(len(rpsMoves))]

	switch {
	case user == bot:
		return fmt.Sprintf("wah We both picked %s. (tie)", user), nil
	case beats[user] == bot:
		return fmt.Sprintf("kamu pasti curang, literally how did you pick %s while i picked %s. (win)", user, bot), nil
	default:
		return fmt.Sprintf("LOSERRRRRRRR I picked %s, and you picked %s. (lose)", bot, user), nil
	}
}

func (m *Matcher) compatibility(_ context.Context, groups []string) (string, error) {
	name := strings.TrimSpace(groups[1])
	replies := []string{
		":grimacing:",
		fmt.Sprintf("wait you??? with %s????", name),
		"woah uh sure it could work maybe probably....",
		fmt.Sprintf("yikes kamu dapet ide dari mana mau sama %s bro", name),
		fmt.Sprintf("yakin kah?? aku denger %s kemarin sibuk sama yang lain", name),
		"sure!!!! like peanut butter and jelly :yum:",
		fmt.Sprintf("wait u and %s weren't dating already?", name),
		fmt.Sprintf("hohohhohoho you and %s hol up bro let me get some popcorn first", name),
		"welahdalah wes nggak nggak nggak",
		"LMAOOOOOOOOOOOOOOOOOOOOOOOOOOO",
	}
	return replies[m.intN(len(replies))], nil
}

func (m *Matcher) intN(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.IntN(n)
}
