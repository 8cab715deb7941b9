package extractor

import (
	"regexp"
	"strings"
)

const CategoryUncategorized = "uncategorized"

var (
	parenRe     = regexp.MustCompile(`\([^)]*\)`)
	sizeBlockRe = regexp.MustCompile(`\b\d+(\.\d+)?\s*(x\s*\d+(\.\d+)?\s*)?(lb|lbs|oz|fl oz|ml|l|g|kg|ea|ct|pcs?|pack|case|cs|bn|bag)s?\b`)
	packOfRe    = regexp.MustCompile(`\b(pack|case|box|bag)\s+of\s+\d+\b`)
	numberRe    = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	cleanRe     = regexp.MustCompile(`[^\w\s\+\&]`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// CleanDescription reduces a raw line item description to the words
// that identify the product: first line only, lowercase, with
// parentheticals, size and packaging blocks and bare numbers removed.
func CleanDescription(raw string) string {
	s := raw
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = parenRe.ReplaceAllString(s, " ")
	s = sizeBlockRe.ReplaceAllString(s, " ")
	s = packOfRe.ReplaceAllString(s, " ")
	s = numberRe.ReplaceAllString(s, " ")
	s = cleanRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// specialLines are charge lines that are not products.
var specialLines = map[string]string{
	"tax":            "fees",
	"sales tax":      "fees",
	"fuel surcharge": "fees",
	"delivery fee":   "fees",
	"deposit":        "fees",
}

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"produce", []string{"tomato", "lettuce", "onion", "pepper", "carrot", "potato", "apple", "banana", "lemon", "lime", "orange", "avocado", "cucumber", "celery", "spinach", "kale", "broccoli", "cauliflower", "mushroom", "garlic", "ginger", "cilantro", "parsley", "basil", "berry", "berries", "grape", "melon", "cabbage", "squash", "zucchini"}},
	{"dairy", []string{"milk", "cream", "butter", "cheese", "yogurt", "mozzarella", "cheddar", "parmesan", "ricotta", "sour cream", "half & half", "half and half"}},
	{"meat", []string{"beef", "chicken", "pork", "turkey", "lamb", "bacon", "sausage", "ham", "steak", "brisket", "ribs", "ground", "veal"}},
	{"seafood", []string{"salmon", "tuna", "shrimp", "cod", "tilapia", "crab", "lobster", "clam", "oyster", "mussel", "scallop", "fish"}},
	{"bakery", []string{"bread", "roll", "bun", "bagel", "croissant", "tortilla", "pita", "baguette", "dough", "muffin", "pastry"}},
	{"beverages", []string{"juice", "soda", "water", "coffee", "tea", "cola", "lemonade", "beer", "wine", "kombucha"}},
	{"dry goods", []string{"flour", "sugar", "rice", "pasta", "bean", "lentil", "oat", "cereal", "salt", "spice", "oil", "vinegar", "sauce", "syrup", "honey", "ketchup", "mustard", "mayo", "canned", "grain", "quinoa", "noodle"}},
	{"frozen", []string{"frozen", "ice cream", "gelato", "sorbet"}},
	{"cleaning", []string{"bleach", "sanitizer", "detergent", "soap", "degreaser", "cleaner", "disinfectant", "wipes"}},
	{"paper goods", []string{"napkin", "towel", "plate", "cup", "lid", "straw", "foil", "wrap", "container", "bag", "glove", "cutlery", "utensil"}},
}

// Categorize assigns a category to a line item description by keyword
// lookup against the cleaned description. Unmatched descriptions fall
// back to "uncategorized".
func Categorize(description string) string {
	cleaned := CleanDescription(description)
	if cleaned == "" {
		return CategoryUncategorized
	}
	if cat, ok := specialLines[cleaned]; ok {
		return cat
	}
	for _, group := range categoryKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(cleaned, kw) {
				return group.category
			}
		}
	}
	return CategoryUncategorized
}
