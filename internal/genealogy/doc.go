// Package genealogy holds the family graph: members, typed relationships and
// dated life events. It answers the ancestor and sibling queries the pattern
// engine walks, and never fails a query because of a stale identifier.
package genealogy
