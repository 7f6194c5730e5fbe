package anthropic

// BuildCachedSystemBlocks returns a single system block with a 1-hour cache
// breakpoint. The oracle reuses the same instructions for every source of an
// item, so the prefix stays warm across a run.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: "1h"}}}
}
