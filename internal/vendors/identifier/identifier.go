// Package identifier derives a vendor identity from recognized document
// text using an ordered list of auditable heuristics.
package identifier

import (
	"regexp"
	"strings"
)

// Signals are the vendor clues found in document text. Any field may be
// empty; Name carries the winning identification strategy's result.
type Signals struct {
	Name     string
	Strategy string
	Email    string
	Phone    string
	Website  string
	Address  string
}

// Strategy names, in evaluation order.
const (
	StrategyLabel       = "label"
	StrategyLegalSuffix = "legal_suffix"
	StrategyHeaderLine  = "header_line"
	StrategyEmailDomain = "email_domain"
)

var (
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

	emailRe       = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneLabelRe  = regexp.MustCompile(`(?i)(?:Phone|Tel|Mobile|Cell|Ph)[:.\-\s]+([+\d()\-\s]{7,20})`)
	phoneStrictRe = regexp.MustCompile(`(?:\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	urlRe         = regexp.MustCompile(`(?:https?://)?(?:www\.)?[a-zA-Z0-9-]+\.[a-zA-Z]{2,}(?:/[^\s]*)?`)

	vendorLabelRe  = regexp.MustCompile(`(?i)(?:Vendor|Supplier|Billed by|Sold by|Payable to)[:\s\-]+([A-Za-z0-9&.,\-\s]{3,50})`)
	legalSuffixRe  = regexp.MustCompile(`(?i)\b(Inc|LLC|Ltd|GmbH|BV|B\.V\.|Co\.|Company|Corp|Corporation|S\.A\.|S\.L\.|AG|Pty|Pvt|Private|Plc)\b`)
	recipientRe    = regexp.MustCompile(`(?i)(Bill|Ship|Sold)\s+To:`)
	nameNoiseSplit = regexp.MustCompile(`,|\||-|—|:|Tel|Ph`)

	addressKeywordRe = regexp.MustCompile(`(?i)\b(Street|St|Road|Rd|Avenue|Ave|Lane|Ln|Drive|Dr|Blvd|Boulevard|Way|Plaza|Square|Sq|P\.O\.\s*Box|Suite|Floor|Unit)\b`)
	zipRe            = regexp.MustCompile(`\b([A-Z]{1,2}\d[A-Z\d]?\s*\d[A-Z]{2}|[A-Z]{2}-\d{4}|\d{5}(-\d{4})?|\d{4}\s?[A-Z]{2})\b`)
	dateLikeRe       = regexp.MustCompile(`^20[2-3]\d`)

	knownTLDs = []string{".com", ".net", ".org", ".io", ".co", ".us", ".eu", ".de"}
)

// Normalize produces the vendor dedup key: lower-case with everything
// but letters and digits removed. "Fresh Farms, Inc." and
// "FRESH FARMS INC" collapse to the same key.
func Normalize(name string) string {
	return nonAlnumRe.ReplaceAllString(strings.ToLower(name), "")
}

// Extract scans the text for vendor signals. The name strategies run in
// a fixed priority order and the first hit wins; Strategy records which
// one fired so the decision stays auditable.
func Extract(text string) Signals {
	var s Signals
	if text == "" {
		return s
	}

	lines := splitLines(text)

	s.Email = findEmail(text)
	s.Phone = findPhone(text, lines)
	s.Website = findWebsite(lines)
	s.Address = findAddress(lines)

	if name := byLabel(lines); name != "" {
		s.Name, s.Strategy = name, StrategyLabel
	} else if name := byLegalSuffix(lines); name != "" {
		s.Name, s.Strategy = name, StrategyLegalSuffix
	} else if name := byHeaderLine(lines); name != "" {
		s.Name, s.Strategy = name, StrategyHeaderLine
	} else if name := byEmailDomain(s.Email); name != "" {
		s.Name, s.Strategy = name, StrategyEmailDomain
	}

	return s
}

func splitLines(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
	lines := make([]string, 0, len(raw))
	for _, ln := range raw {
		if trimmed := strings.TrimSpace(ln); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

func findEmail(text string) string {
	return emailRe.FindString(text)
}

func findPhone(text string, lines []string) string {
	// Labelled numbers in the header are the best match.
	for _, line := range head(lines, 30) {
		if m := phoneLabelRe.FindStringSubmatch(line); m != nil {
			raw := strings.TrimSpace(m[1])
			if digitCount(raw) >= 7 {
				return raw
			}
		}
	}

	// Strict format scan across the first part of the text.
	scan := text
	if len(scan) > 2000 {
		scan = scan[:2000]
	}
	for _, cand := range phoneStrictRe.FindAllString(scan, -1) {
		// Skip matches that look like ISO dates.
		if !dateLikeRe.MatchString(cand) {
			return cand
		}
	}
	return ""
}

func findWebsite(lines []string) string {
	for _, line := range lines {
		for _, url := range urlRe.FindAllString(line, -1) {
			clean := strings.ToLower(url)
			if strings.Contains(clean, "@") {
				continue
			}
			for _, tld := range knownTLDs {
				if strings.Contains(clean, tld) {
					return url
				}
			}
		}
	}
	return ""
}

func findAddress(lines []string) string {
	// Header and footer lines carry addresses.
	search := head(lines, 40)
	if len(lines) > 10 {
		search = append(search, lines[len(lines)-10:]...)
	}

	for i, line := range search {
		if addressKeywordRe.MatchString(line) {
			block := line
			if i+1 < len(search) {
				next := search[i+1]
				if zipRe.MatchString(next) || len(next) < 50 {
					block += ", " + next
				}
			}
			return block
		}
		if zipRe.MatchString(line) && i > 0 && len(search[i-1]) < 60 {
			return search[i-1] + ", " + line
		}
	}
	return ""
}

func byLabel(lines []string) string {
	header := strings.Join(head(lines, 15), " ")
	m := vendorLabelRe.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	// Stop at a double space: OCR columns bleed into the match.
	name := strings.SplitN(m[1], "  ", 2)[0]
	return strings.TrimSpace(name)
}

func byLegalSuffix(lines []string) string {
	for _, line := range head(lines, 20) {
		if recipientRe.MatchString(line) {
			continue
		}
		if !legalSuffixRe.MatchString(line) {
			continue
		}
		cand := strings.TrimSpace(nameNoiseSplit.Split(line, 2)[0])
		if len(cand) > 2 && len(cand) < 60 && !isDigits(cand) {
			return cand
		}
	}
	return ""
}

func byHeaderLine(lines []string) string {
	for _, line := range head(lines, 10) {
		if len(line) <= 2 || len(line) >= 50 {
			continue
		}
		if line != strings.ToUpper(line) || isDigits(line) {
			continue
		}
		if strings.Contains(line, "INVOICE") || strings.Contains(line, "ORDER") {
			continue
		}
		return line
	}
	return ""
}

func byEmailDomain(email string) string {
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return ""
	}
	domain := email[at+1:]
	if dot := strings.IndexByte(domain, '.'); dot > 0 {
		return domain[:dot]
	}
	return ""
}

func head(lines []string, n int) []string {
	if len(lines) < n {
		return lines
	}
	return lines[:n]
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func isDigits(s string) bool {
	stripped := strings.ReplaceAll(s, " ", "")
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
