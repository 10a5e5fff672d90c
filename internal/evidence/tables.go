package evidence

import (
	"regexp"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Pattern pairs an uncompiled regex with the severity of a match.
type Pattern struct {
	Expr     string
	Severity domain.Severity
}

// Category is a named group of patterns that all indicate the same
// scam tactic.
type Category struct {
	Name        string
	Description string
	Patterns    []Pattern
}

// Table is an ordered list of categories. Tables are immutable values:
// build one, compile it, pass it in. Never mutate a table after Compile.
type Table []Category

// DefaultTable returns the built-in scam tactic categories.
func DefaultTable() Table {
	return Table{
		{
			Name:        "investment_fraud",
			Description: "Investment and trading fraud",
			Patterns: []Pattern{
				{`guaranteed\s+(?:returns?|profits?|income)`, domain.SeverityCritical},
				{`risk\s*-?\s*free\s+(?:investment|trading|opportunity)`, domain.SeverityCritical},
				{`double\s+your\s+money\s+in\s+\d+\s+(?:days?|weeks?|months?)`, domain.SeverityCritical},
				{`(?:200|300|500|1000)%\s+(?:return|profit|guaranteed)`, domain.SeverityCritical},
				{`(?:ponzi|pyramid)\s+scheme`, domain.SeverityCritical},
				{`binary\s+options\s+trading`, domain.SeverityHigh},
				{`forex\s+trading\s+(?:robot|bot|system)`, domain.SeverityHigh},
				{`insider\s+(?:trading|information)`, domain.SeverityHigh},
				{`pump\s+and\s+dump`, domain.SeverityHigh},
			},
		},
		{
			Name:        "crypto_lure",
			Description: "Cryptocurrency lures",
			Patterns: []Pattern{
				{`(?:bitcoin|ethereum)\s+(?:giveaway|doubler|investment)`, domain.SeverityCritical},
				{`send\s+(?:bitcoin|btc|ethereum|eth)\s+get\s+(?:double|triple)`, domain.SeverityCritical},
				{`crypto\s+(?:mining|investment)\s+(?:guaranteed|profits?)`, domain.SeverityHigh},
				{`rug\s+pull\s+(?:crypto|token)`, domain.SeverityHigh},
				{`defi\s+(?:guaranteed|risk-free)`, domain.SeverityHigh},
				{`nft\s+(?:guaranteed|investment|profits?)`, domain.SeverityMedium},
			},
		},
		{
			Name:        "financial_request",
			Description: "Direct requests for money over irreversible rails",
			Patterns: []Pattern{
				{`western\s+union\s+(?:transfer|money)`, domain.SeverityHigh},
				{`money\s*gram\s+transfer`, domain.SeverityHigh},
				{`gift\s+cards?\s+(?:payment|money|transfer)`, domain.SeverityHigh},
				{`wire\s+(?:me\s+)?(?:the\s+)?money`, domain.SeverityHigh},
				{`send\s+(?:bitcoin|btc|ethereum|eth|crypto|money)\s+to\s+(?:this|my|the)\s+(?:wallet|address|account)`, domain.SeverityHigh},
				{`send\s+(?:me\s+)?\$?\d[\d,]*`, domain.SeverityMedium},
				{`processing\s+fee\s+(?:required|needed)`, domain.SeverityHigh},
				{`tax\s+(?:payment|fee)\s+(?:required|needed)`, domain.SeverityHigh},
			},
		},
		{
			Name:        "romance_exploitation",
			Description: "Romance and social engineering",
			Patterns: []Pattern{
				{`need\s+money\s+for\s+(?:emergency|medical|travel)`, domain.SeverityHigh},
				{`stranded\s+(?:abroad|overseas)\s+need\s+money`, domain.SeverityHigh},
				{`i\s+love\s+you\s+(?:but|and)\s+need`, domain.SeverityMedium},
				{`military\s+(?:deployment|overseas)\s+money`, domain.SeverityMedium},
				{`inheritance\s+money\s+(?:help|transfer)`, domain.SeverityMedium},
			},
		},
		{
			Name:        "phishing",
			Description: "Phishing and account takeover bait",
			Patterns: []Pattern{
				{`verify\s+your\s+(?:account|identity)\s+(?:immediately|now)`, domain.SeverityCritical},
				{`account\s+(?:will\s+be\s+)?(?:suspended|locked|compromised)`, domain.SeverityHigh},
				{`confirm\s+your\s+(?:details|information|payment)`, domain.SeverityHigh},
				{`update\s+your\s+(?:password|payment|billing)`, domain.SeverityHigh},
				{`click\s+here\s+to\s+(?:verify|confirm|update)`, domain.SeverityHigh},
				{`suspicious\s+activity\s+detected`, domain.SeverityHigh},
				{`unauthorized\s+(?:access|transaction|login)`, domain.SeverityMedium},
				{`security\s+alert\s+(?:urgent|immediate)`, domain.SeverityMedium},
			},
		},
		{
			Name:        "authority_impersonation",
			Description: "Impersonation of support desks and agencies",
			Patterns: []Pattern{
				{`microsoft\s+(?:support|security|windows)`, domain.SeverityHigh},
				{`apple\s+support\s+(?:urgent|security)`, domain.SeverityHigh},
				{`(?:irs|tax\s+office)\s+(?:final\s+)?(?:notice|warrant)`, domain.SeverityHigh},
				{`computer\s+(?:infected|virus|malware)`, domain.SeverityHigh},
				{`remote\s+access\s+(?:required|needed)`, domain.SeverityHigh},
				{`firewall\s+(?:breach|compromised)`, domain.SeverityMedium},
				{`trojan\s+(?:detected|virus|malware)`, domain.SeverityMedium},
			},
		},
		{
			Name:        "lottery_prize",
			Description: "Lottery and prize bait",
			Patterns: []Pattern{
				{`you\s+(?:have\s+)?won\s+\$?[\d,]+`, domain.SeverityHigh},
				{`lottery\s+(?:winner|prize|jackpot)`, domain.SeverityHigh},
				{`congratulations\s+you\s+(?:won|were\s+selected)`, domain.SeverityMedium},
				{`claim\s+your\s+(?:prize|winnings|reward)`, domain.SeverityMedium},
			},
		},
		{
			Name:        "employment_lure",
			Description: "Too-good-to-be-true job offers",
			Patterns: []Pattern{
				{`work\s+from\s+home\s+\$\d+`, domain.SeverityMedium},
				{`easy\s+money\s+(?:guaranteed|opportunity)`, domain.SeverityMedium},
				{`envelope\s+stuffing\s+(?:job|work)`, domain.SeverityMedium},
				{`mystery\s+shopper\s+(?:job|opportunity)`, domain.SeverityMedium},
				{`no\s+experience\s+(?:required|needed)\s+high\s+pay`, domain.SeverityMedium},
			},
		},
		{
			Name:        "urgency_pressure",
			Description: "Urgency and pressure tactics",
			Patterns: []Pattern{
				{`act\s+now\s+or\s+(?:miss\s+out|lose)`, domain.SeverityHigh},
				{`act\s+now`, domain.SeverityMedium},
				{`limited\s+time\s+offer\s+expires?`, domain.SeverityMedium},
				{`(?:urgent|immediate)\s+(?:action\s+)?required`, domain.SeverityMedium},
				{`expires?\s+(?:today|tonight|in\s+\d+\s+hours?)`, domain.SeverityMedium},
				{`last\s+(?:chance|opportunity)`, domain.SeverityMedium},
				{`don'?t\s+(?:delay|wait|hesitate)`, domain.SeverityLow},
			},
		},
		{
			Name:        "contact_pressure",
			Description: "Pressure to respond out of band",
			Patterns: []Pattern{
				{`call\s+(?:me\s+)?(?:now|immediately|asap)`, domain.SeverityMedium},
				{`text\s+(?:me\s+)?(?:back|now|asap)`, domain.SeverityMedium},
				{`(?:respond|reply)\s+(?:immediately|asap|now)`, domain.SeverityMedium},
				{`contact\s+(?:me\s+)?(?:immediately|asap)`, domain.SeverityMedium},
			},
		},
		{
			Name:        "suspicious_link",
			Description: "Obfuscated or disposable links",
			Patterns: []Pattern{
				{`(?:bit\.ly|tinyurl\.com|t\.co|goo\.gl)/\S+`, domain.SeverityMedium},
				{`https?://\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`, domain.SeverityHigh},
				{`https?://[^\s/]*xn--\S+`, domain.SeverityHigh},
			},
		},
		{
			Name:        "pii_exposure",
			Description: "Requests for credentials or identity data",
			Patterns: []Pattern{
				{`(?:send|share|give)\s+(?:me\s+)?your\s+(?:password|pin|ssn)`, domain.SeverityCritical},
				{`social\s+security\s+number`, domain.SeverityHigh},
				{`(?:bank|account)\s+(?:number|details)\s+(?:and|with)\s+(?:routing|sort)`, domain.SeverityHigh},
				{`(?:photo|picture|copy)\s+of\s+your\s+(?:id|passport|licen[cs]e)`, domain.SeverityHigh},
			},
		},
	}
}

// compiledPattern is a Pattern with its compiled regex.
type compiledPattern struct {
	re       *regexp.Regexp
	severity domain.Severity
}

// compiledCategory is a Category ready for matching.
type compiledCategory struct {
	name     string
	patterns []compiledPattern
}

// Compile compiles every pattern in the table, case-insensitive.
// Patterns that fail to compile are reported, not skipped: tables are
// static data and a bad pattern is a programming error.
func (t Table) Compile() ([]compiledCategory, error) {
	out := make([]compiledCategory, 0, len(t))
	for _, cat := range t {
		cc := compiledCategory{name: cat.Name}
		for _, p := range cat.Patterns {
			re, err := regexp.Compile("(?i)" + p.Expr)
			if err != nil {
				return nil, err
			}
			cc.patterns = append(cc.patterns, compiledPattern{re: re, severity: p.Severity})
		}
		out = append(out, cc)
	}
	return out, nil
}
