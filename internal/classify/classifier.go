package classify

import (
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"autoledger/internal/domain"
)

// defaultFinancialSources are package-style identifiers of common US banking
// and payment apps, admitted without any user configuration.
var defaultFinancialSources = []string{
	"com.chase.sig.android",
	"com.wf.wellsfargomobile",
	"com.bankofamerica.cashpromobile",
	"com.citi.citimobile",
	"com.usaa.mobile.android.usaa",
	"com.konylabs.capitalone",
	"com.discover.mobile",
	"com.americanexpress.android.acctsvcs.us",
	"com.pnc.ecommerce.mobile",
	"com.venmo",
	"com.paypal.android.p2pmobile",
	"com.squareup.cash",
	"com.google.android.apps.walletnfcrel",
	"com.zellepay.zelle",
}

// genericSourceTokens admit unknown source ids that merely look financial.
var genericSourceTokens = []string{"bank", "pay", "wallet", "finance", "money"}

// Classifier decides which source ids are financial and turns raw
// notification text into transaction candidates. The active Ruleset is held
// behind an atomic pointer so rule updates never block classification calls:
// each call reads exactly one snapshot.
type Classifier struct {
	snapshot atomic.Pointer[domain.Ruleset]
	logger   *log.Logger
}

func New(logger *log.Logger) *Classifier {
	c := &Classifier{logger: logger}
	rs := domain.NewRuleset(nil, nil, nil)
	c.snapshot.Store(&rs)
	return c
}

// Update replaces the active ruleset. The previous snapshot stays valid for
// classifications already in flight.
func (c *Classifier) Update(rs domain.Ruleset) {
	c.snapshot.Store(&rs)
	c.logger.Info("classifier rules updated",
		"allowed", len(rs.Allowed), "excluded", len(rs.Excluded), "rules", len(rs.Rules))
}

// Snapshot returns the ruleset that classification calls currently observe.
func (c *Classifier) Snapshot() domain.Ruleset {
	return *c.snapshot.Load()
}

// IsFinancialSource reports whether events from sourceID should be parsed.
// Exclusion wins over everything, including the built-in defaults and the
// generic token fallback.
func (c *Classifier) IsFinancialSource(sourceID string) bool {
	rs := c.snapshot.Load()
	if _, excluded := rs.Excluded[sourceID]; excluded {
		return false
	}
	if _, allowed := rs.Allowed[sourceID]; allowed {
		return true
	}
	for _, def := range defaultFinancialSources {
		if sourceID == def {
			return true
		}
	}
	lower := strings.ToLower(sourceID)
	for _, token := range genericSourceTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// Parse combines title and body and extracts a transaction candidate.
// ok is false when the text carries no recognizable amount; nothing short of
// that aborts extraction, the remaining fields fall back to defaults.
func (c *Classifier) Parse(title, body, sourceID string) (domain.Transaction, bool) {
	var parts []string
	if title != "" {
		parts = append(parts, title)
	}
	if body != "" {
		parts = append(parts, body)
	}
	text := strings.Join(parts, " ")
	if strings.TrimSpace(text) == "" {
		return domain.Transaction{}, false
	}

	amount, ok := extractAmount(text)
	if !ok {
		c.logger.Debug("no amount pattern matched", "source", sourceID)
		return domain.Transaction{}, false
	}

	rs := c.snapshot.Load()
	return domain.Transaction{
		Amount:      amount,
		Description: truncate(text, domain.MaxDescriptionLen),
		Merchant:    extractMerchant(text),
		Type:        determineType(text),
		Category:    determineCategory(text, rs.Rules),
		SourceID:    sourceID,
	}, true
}

func determineCategory(text string, rules []domain.CategoryRule) string {
	lower := strings.ToLower(text)
	for _, rule := range rules {
		if rule.Keyword == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(rule.Keyword)) {
			return rule.Category
		}
	}
	return domain.CategoryDefault
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
