package intent

import (
	"strings"

	"github.com/chainweave/forge/nlp"
)

// triggerSignals are the classification vocabularies. Multi-word signals
// only hit on the substring tier; signals of three characters or fewer only
// count as whole words.
var triggerSignals = map[TriggerType][]string{
	TriggerCron: {
		"every", "schedule", "daily", "hourly", "weekly",
		"periodically", "interval", "recurring", "cron",
		"each day", "each hour", "once a day",
	},
	TriggerHTTP: {
		"webhook", "http", "endpoint", "api call", "when called",
		"incoming request", "on demand", "post request",
	},
	TriggerEVMLog: {
		"event", "emitted", "contract", "log", "topic",
		"onchain event", "when transferred",
	},
}

// triggerOrder fixes tie resolution: cron wins over http wins over evm_log.
var triggerOrder = []TriggerType{TriggerCron, TriggerHTTP, TriggerEVMLog}

// chainKeys map prompt vocabulary to chain tags. Keys of four characters or
// fewer match on word boundaries only; "arb" inside "arbitrary" must not
// elect a chain.
var chainKeys = []struct {
	Key string
	Tag string
}{
	{"ethereum", "ethereum"},
	{"eth", "ethereum"},
	{"mainnet", "ethereum"},
	{"base", "base"},
	{"arbitrum", "arbitrum"},
	{"arb", "arbitrum"},
	{"optimism", "optimism"},
	{"polygon", "polygon"},
	{"matic", "polygon"},
	{"avalanche", "avalanche"},
	{"avax", "avalanche"},
}

// baselineChains are what cross-chain phrasing implies when no explicit
// chain is named alongside it.
var baselineChains = []string{"ethereum", "base"}

const defaultChain = "ethereum"

// collectChains resolves chain mentions in three phases: exact lookup,
// fuzzy per-word lookup against the long keys when nothing matched exactly,
// then the cross-chain baseline expansion. The result is never empty.
func collectChains(doc *nlp.Doc) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(tag string) {
		if !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}

	for _, ck := range chainKeys {
		if len(ck.Key) <= 4 {
			if doc.HasWord(ck.Key) {
				add(ck.Tag)
			}
		} else if strings.Contains(doc.Text, ck.Key) {
			add(ck.Tag)
		}
	}

	if len(out) == 0 {
		for _, tok := range doc.Tokens {
			if len(tok) <= 3 {
				continue
			}
			for _, ck := range chainKeys {
				if len(ck.Key) <= 4 {
					continue
				}
				if nlp.FuzzyMatch(tok, ck.Key) {
					add(ck.Tag)
				}
			}
		}
	}

	if hasPhrase(doc, "cross chain") || hasPhrase(doc, "multi chain") ||
		doc.HasWord("crosschain") || doc.HasWord("multichain") {
		for _, c := range baselineChains {
			add(c)
		}
	}

	if len(out) == 0 {
		out = []string{defaultChain}
	}
	return out
}

// sourceDef binds a data-source tag to its confirming vocabulary. Keywords
// go through the tiered lookup; Phrases match on word boundaries (short or
// multi-word keys); Brands are unambiguous product names that also fill
// Intent.Entities.
type sourceDef struct {
	Tag      string
	Keywords []string
	Phrases  []string
	Brands   []string
}

var sourceDefs = []sourceDef{
	{
		Tag:      "price-feed",
		Keywords: []string{"price", "prices", "ticker", "quote"},
		Phrases:  []string{"exchange rate", "price feed"},
		Brands:   []string{"coingecko", "coinmarketcap", "chainlink", "binance"},
	},
	{
		Tag:      "news-api",
		Keywords: []string{"news", "headline", "headlines", "breaking"},
		Brands:   []string{"newsapi", "reuters"},
	},
	{
		Tag:      "weather-api",
		Keywords: []string{"weather", "temperature", "forecast", "rainfall", "humidity"},
		Brands:   []string{"openweather", "openweathermap"},
	},
	{
		Tag:      "sports-api",
		Keywords: []string{"sports", "football", "soccer", "basketball", "league"},
		Phrases:  []string{"game results"},
		Brands:   []string{"espn", "sportradar"},
	},
	{
		Tag:      "defi-api",
		Keywords: []string{"defi", "liquidity", "yield", "lending", "staking"},
		Phrases:  []string{"tvl", "apy", "apr"},
		Brands:   []string{"uniswap", "aave", "compound", "curve", "defillama"},
	},
	{
		Tag:      "onchain-events",
		Keywords: []string{"onchain", "emitted"},
		Phrases:  []string{"log", "logs", "contract event"},
		Brands:   []string{"etherscan"},
	},
	{
		Tag:      "wallet-balance",
		Keywords: []string{"wallet", "holdings", "portfolio"},
	},
	{
		Tag:      "http-api",
		Keywords: []string{"webhook", "endpoint"},
		Phrases:  []string{"api", "url"},
	},
}

// ambiguousKeywords elect a candidate source but cannot confirm it on their
// own: "pool" may be a liquidity pool or a car pool, "match" a game or a
// string operation. A source elected only through this table is dropped.
var ambiguousKeywords = []struct {
	Word    string
	Sources []string
}{
	{"score", []string{"sports-api"}},
	{"match", []string{"sports-api"}},
	{"game", []string{"sports-api"}},
	{"team", []string{"sports-api"}},
	{"balance", []string{"wallet-balance"}},
	{"address", []string{"wallet-balance"}},
	{"account", []string{"wallet-balance"}},
	{"exchange", []string{"price-feed", "defi-api"}},
	{"market", []string{"price-feed"}},
	{"rate", []string{"price-feed", "defi-api"}},
	{"pool", []string{"defi-api"}},
	{"farm", []string{"defi-api"}},
	{"feed", []string{"price-feed"}},
	{"article", []string{"news-api"}},
	{"media", []string{"news-api"}},
	{"story", []string{"news-api"}},
	{"cold", []string{"weather-api"}},
	{"storm", []string{"weather-api"}},
}

// collectSources gathers candidate data sources, then keeps only those with
// at least one confirming trigger: a brand entity or a non-ambiguous
// keyword. It returns the surviving sources, the dropped candidates and the
// brand entities keyed by source tag, all in first-seen order.
func collectSources(doc *nlp.Doc) (sources, dropped []string, entities map[string][]string) {
	var order []string
	confirmed := make(map[string]bool)
	elect := func(tag string, confirming bool) {
		if _, ok := confirmed[tag]; !ok {
			order = append(order, tag)
		}
		confirmed[tag] = confirmed[tag] || confirming
	}

	for _, def := range sourceDefs {
		for _, kw := range def.Keywords {
			if doc.Match(kw).Matched() {
				elect(def.Tag, true)
			}
		}
		for _, ph := range def.Phrases {
			if hasPhrase(doc, ph) {
				elect(def.Tag, true)
			}
		}
		for _, brand := range def.Brands {
			if doc.Match(brand).Matched() {
				elect(def.Tag, true)
				if entities == nil {
					entities = make(map[string][]string)
				}
				entities[def.Tag] = append(entities[def.Tag], brand)
			}
		}
	}

	for _, amb := range ambiguousKeywords {
		if !doc.Match(amb.Word).Matched() {
			continue
		}
		for _, tag := range amb.Sources {
			elect(tag, false)
		}
	}

	for _, tag := range order {
		if confirmed[tag] {
			sources = append(sources, tag)
		} else {
			dropped = append(dropped, tag)
		}
	}
	return sources, dropped, entities
}

// actionDef binds an action tag to its vocabulary. Generic marks trade
// words that cannot elect the swap action without a confirming token.
type actionDef struct {
	Tag      string
	Keywords []string
	Generic  []string
}

var actionDefs = []actionDef{
	{
		Tag:      "notify",
		Keywords: []string{"alert", "notify", "notification", "warn", "remind", "email", "message"},
	},
	{
		Tag:      "swap",
		Keywords: []string{"swap"},
		Generic:  []string{"buy", "sell", "trade", "exchange"},
	},
	{
		Tag:      "transfer",
		Keywords: []string{"transfer", "send", "withdraw", "deposit"},
	},
	{
		Tag:      "onchain-write",
		Keywords: []string{"record", "write", "store", "publish", "submit", "mint"},
	},
	{
		Tag:      "http-post",
		Keywords: []string{"webhook", "callback", "forward"},
	},
}

// swapConfirmers rescue a swap elected only through generic trade words.
var swapConfirmers = []string{"dex", "amm", "uniswap", "slippage", "router", "liquidity"}

const defaultAction = "onchain-write"

// collectActions runs the tiered lookup over the action vocabularies. A
// swap elected only by generic trade words needs a confirming token or it
// is dropped. The result is never empty.
func collectActions(doc *nlp.Doc) []string {
	var out []string
	for _, def := range actionDefs {
		matched, specific := false, false
		for _, kw := range def.Keywords {
			if doc.Match(kw).Matched() {
				matched, specific = true, true
			}
		}
		for _, kw := range def.Generic {
			if doc.Match(kw).Matched() {
				matched = true
			}
		}
		if !matched {
			continue
		}
		if !specific && !matchesAny(doc, swapConfirmers) {
			continue
		}
		out = append(out, def.Tag)
	}
	if len(out) == 0 {
		out = []string{defaultAction}
	}
	return out
}

func matchesAny(doc *nlp.Doc, terms []string) bool {
	for _, t := range terms {
		if doc.Match(t).Matched() {
			return true
		}
	}
	return false
}

// hasPhrase reports whether phrase appears in the token stream on word
// boundaries. Single-word phrases reduce to a whole-token check.
func hasPhrase(doc *nlp.Doc, phrase string) bool {
	words := strings.Fields(phrase)
	if len(words) == 1 {
		return doc.HasWord(words[0])
	}
	joined := " " + strings.Join(doc.Tokens, " ") + " "
	return strings.Contains(joined, " "+phrase+" ")
}
