package classify

import (
	"regexp"
	"strconv"
	"strings"

	"autoledger/internal/domain"
)

// Amount patterns, tried in order. The first one that matches decides the
// candidate; a match that fails numeric parse rejects the whole event.
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\s?([\d,]+\.?\d{0,2})`),                   // $123.45 or $ 1,234
	regexp.MustCompile(`USD\s?([\d,]+\.?\d{0,2})`),                  // USD 123.45
	regexp.MustCompile(`(?i)([\d,]+\.?\d{0,2})\s?(?:dollars?|USD)`), // 123.45 dollars
}

// Debit keywords are scanned before credit keywords: text mentioning both
// ("payment received") resolves to DEBIT.
var debitKeywords = []string{
	"spent", "paid", "charged", "debited", "purchase", "purchased", "sent",
	"withdrawn", "withdrawal", "payment", "debit", "charge",
}

var creditKeywords = []string{
	"received", "credited", "deposited", "refund", "cashback",
	"deposit", "credit", "added",
}

func extractAmount(text string) (float64, bool) {
	for _, pattern := range amountPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		raw := strings.ReplaceAll(m[1], ",", "")
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil || amount <= 0 {
			return 0, false
		}
		return amount, true
	}
	return 0, false
}

func determineType(text string) domain.TxnType {
	lower := strings.ToLower(text)
	for _, kw := range debitKeywords {
		if strings.Contains(lower, kw) {
			return domain.TxnDebit
		}
	}
	for _, kw := range creditKeywords {
		if strings.Contains(lower, kw) {
			return domain.TxnCredit
		}
	}
	return domain.TxnUnknown
}

// merchantStrategy returns a candidate merchant label, or ok=false to let the
// next strategy try. Strategies run in order; the final ones are the
// text-before-$ and full-text fallbacks, so extraction always produces
// something.
type merchantStrategy func(text string) (string, bool)

var merchantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:at|to|from|@)\s+([A-Za-z0-9\s&'.\-]+?)(?:\.|,|\s+on|\s+for|\s*$)`),
	regexp.MustCompile(`(?i)(?:merchant|store|shop):\s*([A-Za-z0-9\s&'.\-]+)`),
}

var merchantStrategies = []merchantStrategy{
	patternStrategy(merchantPatterns[0]),
	patternStrategy(merchantPatterns[1]),
	beforeDollarStrategy,
	fullTextStrategy,
}

func patternStrategy(re *regexp.Regexp) merchantStrategy {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return m[1], true
	}
}

func beforeDollarStrategy(text string) (string, bool) {
	idx := strings.IndexByte(text, '$')
	if idx <= 0 {
		return "", false
	}
	prefix := strings.TrimSpace(text[:idx])
	if prefix == "" {
		return "", false
	}
	return prefix, true
}

func fullTextStrategy(text string) (string, bool) {
	return text, true
}

func extractMerchant(text string) string {
	for _, strategy := range merchantStrategies {
		candidate, ok := strategy(text)
		if !ok {
			continue
		}
		merchant := truncate(strings.TrimSpace(candidate), domain.MaxMerchantLen)
		if merchant == "" {
			continue
		}
		return merchant
	}
	return domain.MerchantUnknown
}
