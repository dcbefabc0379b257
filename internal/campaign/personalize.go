package campaign

import (
	"math/rand"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)
	// Matches only groups with no brackets inside, i.e. the innermost ones.
	spintaxRe = regexp.MustCompile(`\[([^\[\]]+)\]`)
)

// Personalizer renders message templates for a single contact.
//
// Templates arrive query-encoded. Rendering decodes them, substitutes
// {keyword} placeholders from the contact's fields, resolves [a|b|c]
// spintax groups and re-encodes the result. Spintax is resolved innermost
// first and repeated until no group is left, so "[Hi|[Hey|Yo]]" works at
// any depth. A group with a single option just loses its brackets.
//
// A Personalizer is safe for concurrent use by several lanes.
type Personalizer struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger *zap.Logger
}

// NewPersonalizer builds a Personalizer. A nil src seeds from the clock.
func NewPersonalizer(src rand.Source, logger *zap.Logger) *Personalizer {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Personalizer{rng: rand.New(src), logger: logger}
}

// Render returns the transport-encoded text. It never fails: undecodable
// templates render to "" and missing keywords substitute "".
func (p *Personalizer) Render(template string, fields map[string]string) string {
	text, err := url.QueryUnescape(template)
	if err != nil {
		p.logger.Error("template decode failed", zap.Error(err))
		return ""
	}

	text = placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := fields[key]
		if !ok {
			p.logger.Warn("placeholder has no value", zap.String("keyword", key))
			return ""
		}
		return v
	})

	text = p.spin(text)
	return url.QueryEscape(text)
}

func (p *Personalizer) spin(text string) string {
	for spintaxRe.MatchString(text) {
		text = spintaxRe.ReplaceAllStringFunc(text, func(m string) string {
			options := strings.Split(m[1:len(m)-1], "|")
			return strings.TrimSpace(options[p.intn(len(options))])
		})
	}
	return text
}

func (p *Personalizer) intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(n)
}

// Between returns a uniformly random duration in [lo, hi].
func (p *Personalizer) Between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + time.Duration(p.rng.Int63n(int64(hi-lo)+1))
}
