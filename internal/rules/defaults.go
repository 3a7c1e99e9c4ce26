package rules

import "mailtriage/internal/model"

// DefaultRules returns the built-in category taxonomy. Lower priority is
// matched first. Custom rules from config merge over these via MergeDefs.
func DefaultRules() []RuleDef {
	return []RuleDef{
		{
			Label:         "Work/Dev/GitHub",
			Patterns:      []string{`github\.com`, `notifications@github`, `@reply\.github\.com`},
			Priority:      1,
			Tier:          model.TierImportant,
			TimeSensitive: true,
		},
		{
			Label:         "Work/Dev/Code-Review",
			Patterns:      []string{`coderabb`, `sourcery`, `codacy`, `copilot`},
			Priority:      2,
			Tier:          model.TierImportant,
			TimeSensitive: true,
		},
		{
			Label:         "Work/Dev/Infrastructure",
			Patterns:      []string{`cloudflare`, `vercel`, `netlify`, `digitalocean`, `railway`, `render\.com`, `newrelic`, `backblaze`},
			Priority:      3,
			Tier:          model.TierImportant,
			TimeSensitive: true,
		},
		{
			Label:         "AI/Services",
			Patterns:      []string{`openai`, `anthropic`, `claude`, `perplexity`, `ollama`},
			Priority:      4,
			Tier:          model.TierDelegate,
			TimeSensitive: false,
		},
		{
			Label:         "Finance/Banking",
			Patterns:      []string{`chase`, `capital.?one`, `bankofamerica`, `wellsfargo`, `citi`, `usbank`, `ally`, `pnc`, `loan`, `credit score`, `credit card`, `refinance`, `overdraft`, `credit report`, `collections`, `settlement`, `debt`, `statement`},
			Priority:      7,
			Tier:          model.TierCritical,
			TimeSensitive: true,
		},
		{
			Label:         "Finance/Payments",
			Patterns:      []string{`paypal`, `stripe`, `cash.?app`, `square`, `braintree`, `plaid`, `venmo`, `zelle`, `discover`, `american.?express`, `invoice`, `payment.*due`, `past due`, `overdue`, `declined`, `failed payment`, `autopay`, `renewal`, `subscription`},
			Priority:      8,
			Tier:          model.TierCritical,
			TimeSensitive: true,
		},
		{
			Label:         "Tech/Security",
			Patterns:      []string{`1password`, `security.*alert`, `login.*detected`, `new.*device`, `password.*reset`, `verification.*code`, `unusual activity`, `suspicious`, `two[- ]factor`, `2fa`},
			Priority:      9,
			Tier:          model.TierCritical,
			TimeSensitive: true,
		},
		{
			Label:         "Shopping",
			Patterns:      []string{`amazon`, `ebay`, `etsy`, `walmart`, `target`, `bestbuy`, `costco`, `order.*confirm`, `shipped`, `tracking`},
			Priority:      10,
			Tier:          model.TierDelegate,
			TimeSensitive: false,
		},
		{
			Label:         "Travel",
			Patterns:      []string{`united\.com`, `delta\.com`, `southwest`, `jetblue`, `marriott`, `hilton`, `airbnb`, `booking\.com`, `expedia`, `itinerary`, `boarding.*pass`, `flight.*confirm`},
			Priority:      11,
			Tier:          model.TierImportant,
			TimeSensitive: true,
		},
		{
			Label:         "Entertainment",
			Patterns:      []string{`netflix`, `spotify`, `audible`, `fandango`, `letterboxd`},
			Priority:      12,
			Tier:          model.TierReference,
			TimeSensitive: false,
		},
		{
			Label:         "Professional/Jobs",
			Patterns:      []string{`indeed`, `linkedin.*jobs`, `glassdoor`, `ziprecruiter`, `training overdue`, `compliance`},
			Priority:      14,
			Tier:          model.TierDelegate,
			TimeSensitive: false,
		},
		{
			Label:         "Services/Domain",
			Patterns:      []string{`namecheap`, `godaddy`, `domain.*renew`, `dns`},
			Priority:      15,
			Tier:          model.TierImportant,
			TimeSensitive: true,
		},
		{
			Label:         "Notification",
			Patterns:      []string{`notification`, `alert`, `reminder`, `automatic reply`, `auto-reply`},
			Priority:      16,
			Tier:          model.TierDelegate,
			TimeSensitive: false,
		},
		{
			Label:         "Marketing",
			Patterns:      []string{`unsubscribe`, `newsletter`, `promo`, `special.*offer`, `discount`, `last chance`, `coupon`, `free shipping`, `clearance`},
			Priority:      17,
			Tier:          model.TierReference,
			TimeSensitive: false,
		},
		{
			Label:         "Personal",
			Patterns:      []string{`family`, `\bmom\b`, `\bdad\b`},
			Priority:      18,
			Tier:          model.TierCritical,
			TimeSensitive: true,
		},
		{
			Label:         "Awaiting Reply",
			Patterns:      []string{`awaiting.*reply`, `pending.*response`},
			Priority:      19,
			Tier:          model.TierCritical,
			TimeSensitive: true,
		},
		{
			Label:         "Misc/Other",
			Patterns:      []string{`.*`},
			Priority:      CatchAllPriority,
			Tier:          model.TierReference,
			TimeSensitive: false,
		},
	}
}
