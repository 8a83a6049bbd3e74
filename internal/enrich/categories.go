package enrich

// FallbackCategory is assigned when classification cannot produce a
// usable label.
const FallbackCategory = "Uncategorized"

// Categories is the fixed label set articles are classified into.
var Categories = []string{
	"Politics", "Government", "Elections", "Diplomacy", "Military",
	"Sports", "Football", "Basketball", "Cricket", "Tennis", "Olympics",
	"Technology", "AI", "Cybersecurity", "Gadgets", "Space",
	"Business", "Economy", "Finance", "Stock Market", "Startups", "Real Estate",
	"Health", "Medicine", "COVID-19", "Mental Health", "Nutrition", "Fitness",
	"Entertainment", "Movies", "Music", "Celebrities", "TV Shows", "Gaming",
	"Science", "Physics", "Biology", "Astronomy", "Genetics",
	"World", "Geopolitics", "International Relations", "Conflict", "War",
	"Crime", "Law", "Justice", "Police", "Terrorism", "Cybercrime",
	"Environment", "Climate Change", "Wildlife", "Sustainability", "Energy",
	"Education", "Higher Education", "Online Learning", "Research", "Universities",
	"Lifestyle", "Travel", "Fashion", "Food", "Personal Finance", "Parenting",
	"Weather", "Natural Disasters", "Hurricanes", "Floods", "Earthquakes",
}

var categorySet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Categories))
	for _, c := range Categories {
		m[c] = struct{}{}
	}
	return m
}()

// IsCategory reports whether label is a member of the fixed set.
func IsCategory(label string) bool {
	_, ok := categorySet[label]
	return ok
}
