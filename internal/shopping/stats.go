package shopping

// ComputeStats counts total, purchased and pending items.
func ComputeStats(items []Item) Stats {
	s := Stats{Total: len(items)}
	for _, it := range items {
		if it.IsPurchased {
			s.Purchased++
		}
	}
	s.Pending = s.Total - s.Purchased
	return s
}

// GroupByRecipe groups items by RecipeID, in order of first appearance.
func GroupByRecipe(items []Item) []Group {
	var groups []Group
	pos := map[string]int{}
	for _, it := range items {
		i, ok := pos[it.RecipeID]
		if !ok {
			i = len(groups)
			pos[it.RecipeID] = i
			groups = append(groups, Group{RecipeID: it.RecipeID, RecipeTitle: it.RecipeTitle})
		}
		if groups[i].RecipeTitle == "" {
			groups[i].RecipeTitle = it.RecipeTitle
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}

// Filter returns the items whose IsPurchased equals purchased.
func Filter(items []Item, purchased bool) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.IsPurchased == purchased {
			out = append(out, it)
		}
	}
	return out
}
