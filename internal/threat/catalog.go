// Package threat holds the simulated threat catalog used to brand launches.
package threat

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode"
)

// Severity of a simulated detection.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Threat is a fake detection shown by the scanner.
type Threat struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
}

// Catalog is the fixed set of threats the scanner can "find".
var Catalog = []Threat{
	{Name: "Trojan.Win32.Larp", Type: "trojan", Severity: SeverityCritical},
	{Name: "Backdoor.Rugpull.A", Type: "backdoor", Severity: SeverityCritical},
	{Name: "Ransom.Exit.Liquidity", Type: "ransomware", Severity: SeverityCritical},
	{Name: "Worm.Shill.Gen", Type: "worm", Severity: SeverityHigh},
	{Name: "Spyware.Wallet.Drainer", Type: "spyware", Severity: SeverityCritical},
	{Name: "Adware.Pump.Signal", Type: "adware", Severity: SeverityMedium},
	{Name: "Rootkit.Dev.Wallet", Type: "rootkit", Severity: SeverityHigh},
	{Name: "Keylogger.Seed.Phrase", Type: "keylogger", Severity: SeverityCritical},
	{Name: "PUP.Airdrop.Claim", Type: "pup", Severity: SeverityLow},
	{Name: "Miner.Bonding.Curve", Type: "cryptominer", Severity: SeverityMedium},
	{Name: "Exploit.Sandwich.Bot", Type: "exploit", Severity: SeverityHigh},
	{Name: "Phish.Fake.Mint", Type: "phishing", Severity: SeverityHigh},
	{Name: "Botnet.Reply.Guy", Type: "botnet", Severity: SeverityMedium},
	{Name: "Virus.Paper.Hands", Type: "virus", Severity: SeverityLow},
	{Name: "Hoax.Roadmap.Q3", Type: "hoax", Severity: SeverityLow},
	{Name: "Stealer.Alpha.Leak", Type: "stealer", Severity: SeverityHigh},
}

// Sample returns n distinct threats chosen at random from the catalog.
// n is clamped to [1, len(Catalog)].
func Sample(n int) []Threat {
	if n < 1 {
		n = 1
	}
	if n > len(Catalog) {
		n = len(Catalog)
	}
	idx := rand.Perm(len(Catalog))[:n]
	out := make([]Threat, n)
	for i, j := range idx {
		out[i] = Catalog[j]
	}
	return out
}

// Lookup finds a catalog threat by name, case-insensitively.
func Lookup(name string) (Threat, bool) {
	for _, t := range Catalog {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Threat{}, false
}

// Branding is a suggested token identity derived from a threat.
type Branding struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
}

// Brand derives token fields from t that fit the launch limits
// (name 32, symbol 10, description 500).
func Brand(t Threat) Branding {
	parts := strings.Split(t.Name, ".")

	name := strings.Join(parts, " ")
	if len(name) > 32 {
		name = strings.TrimSpace(name[:32])
	}

	// Symbol from the most specific segment, letters only
	var sym strings.Builder
	for _, r := range parts[len(parts)-1] {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sym.WriteRune(unicode.ToUpper(r))
		}
	}
	symbol := sym.String()
	if len(symbol) < 3 && len(parts) > 1 {
		symbol = strings.ToUpper(parts[len(parts)-2]) + symbol
	}
	if len(symbol) > 10 {
		symbol = symbol[:10]
	}

	desc := fmt.Sprintf("%s detected. Severity: %s. Type: %s. Quarantine failed, so we tokenized it.",
		t.Name, strings.ToUpper(string(t.Severity)), t.Type)

	return Branding{Name: name, Symbol: "$" + symbol, Description: desc}
}
