package archive

// Well-known metadata member paths inside a package archive's "info/" tree.
// These are the only members the extractor ever asks the reader for; no
// other archive content is ever touched.
const (
	MemberIndexJSON      = "info/index.json"
	MemberAbout          = "info/about.json"
	MemberRecipeRendered = "info/recipe/meta.yaml.rendered"
	MemberRecipeFallback = "info/recipe/meta.yaml"
	MemberRecipeLog      = "info/recipe_log.json"
	MemberRunExports     = "info/run_exports.json"
	MemberPaths          = "info/paths.json"
	MemberIcon           = "info/icon.png"
)

// DefaultMembers is the full set of members the extractor requests from
// every archive. info/paths.json is included even though its contents are
// never cached verbatim: the extractor derives post_install from it and
// discards the rest.
func DefaultMembers() []string {
	return []string{
		MemberIndexJSON,
		MemberAbout,
		MemberRecipeRendered,
		MemberRecipeFallback,
		MemberRecipeLog,
		MemberRunExports,
		MemberPaths,
		MemberIcon,
	}
}
