// Package enhancer rewrites raw search queries before they are embedded.
//
// Expansion is additive: abbreviations are expanded in both directions
// ("db" and "database"), up to two synonyms are added per known term, and
// compound identifiers such as getUserData are split into their parts. The
// original text always stays at the front of the enhanced query and the
// number of added terms is capped, so enhancing an enhanced query cannot
// grow it without bound.
//
// The enhancer also reports filter hints (language, category, tags) found
// in the query. Callers decide whether to apply them.
package enhancer
