package serialize

import "fmt"

// Migration upgrades a document written at one schema version to the next.
type Migration func(doc *Document) (*Document, error)

// registry maps a document's starting version to the migration that
// upgrades it by exactly one version. Migrate chains through the registry
// until it reaches CurrentVersion.
var registry = map[int]Migration{
	0: migrateV0toV1,
}

// RegisterMigration installs a migration from a starting version, for
// callers extending the schema beyond CurrentVersion. Not safe to call
// concurrently with Decode.
func RegisterMigration(fromVersion int, m Migration) {
	registry[fromVersion] = m
}

// Migrate chains doc through every registered migration until it reaches
// CurrentVersion, or fails with an unregistered intermediate version.
func Migrate(doc *Document) (*Document, error) {
	cur := doc
	seen := map[int]bool{}
	for cur.Version < CurrentVersion {
		if seen[cur.Version] {
			return nil, fmt.Errorf("migrate: cycle detected at version %d", cur.Version)
		}
		seen[cur.Version] = true
		m, ok := registry[cur.Version]
		if !ok {
			return nil, fmt.Errorf("migrate: no migration registered from version %d", cur.Version)
		}
		next, err := m(cur)
		if err != nil {
			return nil, fmt.Errorf("migrate from version %d: %w", cur.Version, err)
		}
		cur = next
	}
	return cur, nil
}

// migrateV0toV1 accepts the untagged legacy document shape, which is
// identical to v1 except for the missing version tag, read-only per §4.12.
func migrateV0toV1(doc *Document) (*Document, error) {
	next := *doc
	next.Version = 1
	return &next, nil
}
